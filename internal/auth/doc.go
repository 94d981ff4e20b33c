// Package auth verifies the signed tokens that identify users on the
// WebSocket handshake. The account and login domain lives elsewhere; this
// package only answers "which user is this connection".
package auth
