// Package txn provides the unit-of-work abstraction whose commit can defer
// side effects until data is durably persisted. Deferred publishes ride a
// commit hook, not a durable outbox: a crash between the commit and the
// hook running loses the event. That window is a documented limitation.
package txn
