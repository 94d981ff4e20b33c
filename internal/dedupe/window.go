// ABOUTME: Short per-topic content window suppressing rapid republishes
// ABOUTME: Independent of the processed-message index and its TTL

package dedupe

import (
	"sync"
	"time"
)

// DefaultWindow is the span during which an identical (topic, content) pair
// counts as a duplicate.
const DefaultWindow = 5 * time.Second

// Window tracks the last time each (topic, hash) pair was seen and reports
// whether a new sighting falls inside the dedup window.
type Window struct {
	mu   sync.Mutex
	seen map[string]time.Time
	span time.Duration
}

// NewWindow creates a window with the given span.
func NewWindow(span time.Duration) *Window {
	return &Window{
		seen: make(map[string]time.Time),
		span: span,
	}
}

// Observe marks the (topic, hash) pair as seen now and reports whether it
// was already seen inside the window. Check and mark are a single step so
// two concurrent observers cannot both pass.
func (w *Window) Observe(topic, hash string) bool {
	key := topic + "\x00" + hash
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	last, ok := w.seen[key]
	w.seen[key] = now
	return ok && now.Sub(last) < w.span
}

// Sweep removes entries older than the window span and returns how many
// were dropped.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	dropped := 0
	for key, last := range w.seen {
		if now.Sub(last) >= w.span {
			delete(w.seen, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked pairs.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
