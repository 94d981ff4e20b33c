// Package sequence allocates per-room monotonic message sequence numbers
// from the shared backplane counter, used to order persisted history.
package sequence
