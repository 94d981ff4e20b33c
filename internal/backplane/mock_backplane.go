// ABOUTME: In-memory Backplane implementation for tests
// ABOUTME: Records publishes, supports injected failures and manual message pushes

package backplane

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// PublishedMessage records one call to Publish on the mock.
type PublishedMessage struct {
	Channel string
	Payload []byte
}

// Mock is an in-memory Backplane for tests. The zero value is not usable;
// create one with NewMock.
type Mock struct {
	mu        sync.Mutex
	counters  map[string]int64
	sets      map[string]map[string]struct{}
	published []PublishedMessage
	attempts  int
	handlers  []MessageHandler
	delCalls  [][]string

	// FailPublishes makes the next N Publish calls fail.
	FailPublishes int
	// FailIncr makes every Incr call fail when set.
	FailIncr bool
	// IncrResult overrides the counter result when non-nil (for simulating
	// a backplane that returns no value).
	IncrResult *int64
}

// NewMock creates an empty mock backplane.
func NewMock() *Mock {
	return &Mock{
		counters: make(map[string]int64),
		sets:     make(map[string]map[string]struct{}),
	}
}

// Publish records the message, or fails if a failure is queued.
func (m *Mock) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.FailPublishes > 0 {
		m.FailPublishes--
		return errors.New("simulated publish failure")
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.published = append(m.published, PublishedMessage{Channel: channel, Payload: cp})
	return nil
}

// Incr increments the in-memory counter at key.
func (m *Mock) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailIncr {
		return 0, errors.New("simulated incr failure")
	}
	if m.IncrResult != nil {
		return *m.IncrResult, nil
	}
	m.counters[key]++
	return m.counters[key], nil
}

// SAdd adds members to the in-memory set at key.
func (m *Mock) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

// SRem removes members from the in-memory set at key.
func (m *Mock) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(set, member)
	}
	return nil
}

// Del removes keys and records the call.
func (m *Mock) Del(ctx context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.delCalls = append(m.delCalls, keys)
	var existed int64
	for _, key := range keys {
		if _, ok := m.sets[key]; ok {
			existed++
			delete(m.sets, key)
		}
		if _, ok := m.counters[key]; ok {
			existed++
			delete(m.counters, key)
		}
	}
	return existed, nil
}

// PSubscribe registers the handler for Deliver calls.
func (m *Mock) PSubscribe(ctx context.Context, handler MessageHandler, patterns ...string) (io.Closer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers = append(m.handlers, handler)
	return nopCloser{}, nil
}

// Deliver pushes a message through every registered subscription handler,
// simulating an inbound backplane push.
func (m *Mock) Deliver(channel string, payload []byte) {
	m.mu.Lock()
	handlers := make([]MessageHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(channel, payload)
	}
}

// Published returns a copy of all recorded publishes.
func (m *Mock) Published() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PublishedMessage, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedTo returns the payloads published to one channel.
func (m *Mock) PublishedTo(channel string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	for _, p := range m.published {
		if p.Channel == channel {
			out = append(out, p.Payload)
		}
	}
	return out
}

// PublishAttempts returns how many times Publish was called, failed calls
// included.
func (m *Mock) PublishAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// DelCalls returns the key slices passed to Del, in call order.
func (m *Mock) DelCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]string, len(m.delCalls))
	copy(out, m.delCalls)
	return out
}

// SetMembers returns the members of the set at key, for assertions.
func (m *Mock) SetMembers(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out
}

// CounterValue returns the current value of the counter at key.
func (m *Mock) CounterValue(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counters[key]
}

// PublishCountMatching counts publishes whose channel has the given prefix.
func (m *Mock) PublishCountMatching(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, p := range m.published {
		if strings.HasPrefix(p.Channel, prefix) {
			count++
		}
	}
	return count
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
