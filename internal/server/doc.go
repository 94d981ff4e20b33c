// Package server assembles the chat subsystem: backplane, store, broker,
// session registry, hub, and the HTTP surface, with one Run loop owning
// start-up order and graceful shutdown.
package server
