// ABOUTME: Tests for the per-room sequence allocator
// ABOUTME: Validates the concurrency permutation property and the fail-safe floor

package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderhub/wanderhub-chat/internal/backplane"
)

func TestAllocator_Next(t *testing.T) {
	bp := backplane.NewMock()
	alloc := NewAllocator(bp, nil)

	n, err := alloc.Next(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = alloc.Next(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAllocator_Next_RoomsIndependent(t *testing.T) {
	bp := backplane.NewMock()
	alloc := NewAllocator(bp, nil)

	for i := 0; i < 5; i++ {
		_, err := alloc.Next(context.Background(), "room-a")
		require.NoError(t, err)
	}

	n, err := alloc.Next(context.Background(), "room-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAllocator_Next_Concurrent(t *testing.T) {
	// 1,000 concurrent allocations for one room must return, when sorted,
	// exactly 1..1000 with no duplicates and no gaps.
	bp := backplane.NewMock()
	alloc := NewAllocator(bp, nil)

	const n = 1_000
	results := make([]int64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			seq, err := alloc.Next(context.Background(), "busy-room")
			assert.NoError(t, err)
			results[i] = seq
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i := 0; i < n; i++ {
		require.Equal(t, int64(i+1), results[i], "sequence at position %d", i)
	}
}

func TestAllocator_Next_ZeroResultFloor(t *testing.T) {
	bp := backplane.NewMock()
	zero := int64(0)
	bp.IncrResult = &zero
	alloc := NewAllocator(bp, nil)

	n, err := alloc.Next(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAllocator_Next_ErrorPropagates(t *testing.T) {
	bp := backplane.NewMock()
	bp.FailIncr = true
	alloc := NewAllocator(bp, nil)

	_, err := alloc.Next(context.Background(), "room-1")
	assert.Error(t, err)
}
