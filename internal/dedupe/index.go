// ABOUTME: Bounded TTL index of processed message hashes with batch eviction
// ABOUTME: Oldest-first eviction via a doubly-linked list, 20% of the bound per overflow

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Default sizing for the processed-message index.
const (
	// DefaultTTL is how long a processed record suppresses duplicates.
	DefaultTTL = 30 * time.Minute

	// DefaultMaxSize bounds the number of tracked hashes.
	DefaultMaxSize = 10_000

	// Eviction batch: 20% of the bound, clamped to [minEvict, maxEvict].
	evictFraction = 0.20
	minEvict      = 1_000
	maxEvict      = 2_000
)

// Record describes one processed message.
type Record struct {
	ID          string
	Topic       string
	Hash        string
	ProcessedAt time.Time
}

// indexEntry pairs a record with its position in the insertion-order list.
type indexEntry struct {
	record  Record
	element *list.Element
}

// Index is a thread-safe, TTL-based, size-bounded map of content hashes to
// processed-message records. When an insert pushes the index past its bound
// it evicts a batch of the oldest entries rather than one at a time, so
// steady overload does not turn every insert into an eviction.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*indexEntry
	order   *list.List // hashes in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
}

// NewIndex creates an index with the given TTL and size bound.
func NewIndex(ttl time.Duration, maxSize int) *Index {
	return &Index{
		entries: make(map[string]*indexEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Lookup returns the unexpired record for hash, if any.
func (ix *Index) Lookup(hash string) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entry, ok := ix.entries[hash]
	if !ok {
		return Record{}, false
	}
	if time.Since(entry.record.ProcessedAt) >= ix.ttl {
		return Record{}, false
	}
	return entry.record, true
}

// Insert records a processed message under its hash. If the hash is already
// present the record is replaced and refreshed. Inserting past the bound
// triggers a batch eviction of the oldest entries.
func (ix *Index) Insert(rec Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if entry, exists := ix.entries[rec.Hash]; exists {
		entry.record = rec
		ix.order.MoveToBack(entry.element)
		return
	}

	if len(ix.entries) >= ix.maxSize {
		ix.evictBatchLocked()
	}

	elem := ix.order.PushBack(rec.Hash)
	ix.entries[rec.Hash] = &indexEntry{record: rec, element: elem}
}

// evictBatchLocked removes the oldest entries. Must be called with mu held.
func (ix *Index) evictBatchLocked() {
	n := int(float64(ix.maxSize) * evictFraction)
	if n < minEvict {
		n = minEvict
	}
	if n > maxEvict {
		n = maxEvict
	}

	for i := 0; i < n; i++ {
		front := ix.order.Front()
		if front == nil {
			return
		}
		hash, _ := front.Value.(string)
		ix.order.Remove(front)
		delete(ix.entries, hash)
	}
}

// Sweep removes all expired entries and returns how many were dropped.
// The caller drives the cadence; the index runs no goroutine of its own.
func (ix *Index) Sweep() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	now := time.Now()
	dropped := 0
	for elem := ix.order.Front(); elem != nil; {
		next := elem.Next()
		hash, _ := elem.Value.(string)
		entry := ix.entries[hash]
		if now.Sub(entry.record.ProcessedAt) >= ix.ttl {
			ix.order.Remove(elem)
			delete(ix.entries, hash)
			dropped++
		}
		elem = next
	}
	return dropped
}

// Len returns the number of tracked hashes, expired entries included.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
