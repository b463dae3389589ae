// Package session provides the message channels that signing protocol
// instances use to talk to counterparties.
//
// A Session is one end of an ordered, bidirectional channel between two
// parties. Messages are delivered in the order they were sent and are
// copied on send, so parties never share mutable state.
//
// Network is an in-process transport: each registered party has an
// Acceptor that runs in its own goroutine for every inbound session.
package session
