// Package signaling implements the relay's WebSocket surface: room
// membership, lifecycle notifications, and per-room fan-out of
// offer/answer/candidate/transcript events.
//
// Negotiation payloads are opaque to this package; events are routed by room
// ID and sender identity only.
package signaling
