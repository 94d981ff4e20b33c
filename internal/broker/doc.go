// Package broker republishes chat events across independently scaled
// instances through the shared backplane. It suppresses duplicate publishes
// and deliveries, retries transient publish failures with backoff, tracks
// per-instance room and user interest, and dispatches inbound backplane
// pushes to the local transport layer and registered listeners.
package broker
