// Package transport is the WebSocket edge: it upgrades authenticated
// connections into sessions, tracks which local sessions watch which
// rooms, and delivers broker fan-out to them. The hub is the broker's
// transport forwarder; the handler translates client frames into chat
// service and registry calls.
package transport
