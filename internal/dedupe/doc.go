// Package dedupe provides the duplicate-suppression state for chat fan-out:
// a bounded, TTL-based index of processed message hashes and a short
// per-topic content window that catches rapid republishes.
package dedupe
