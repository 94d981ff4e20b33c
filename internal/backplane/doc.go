// Package backplane wraps the shared Redis infrastructure that fans chat
// events across independently running instances: pub/sub channels, atomic
// counters, and the per-instance bookkeeping sets.
package backplane
