// Package store persists chat messages and per-user unread counts. The
// fan-out subsystem consumes it through the narrow MessageStore interface;
// the storage format is an implementation detail of this package.
package store
