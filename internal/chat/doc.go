// Package chat implements the message send path: render, sequence,
// persist, then fan out through the broker once the enclosing unit of work
// commits. It also runs the application-level second pass over inbound
// room traffic, keeping unread counters current.
package chat
