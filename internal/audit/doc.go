// Package audit implements async dispatch of security events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, fan-out, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, user, session, IP and metadata.
//
// This package owns buffering and delivery. It does not decide which events
// to emit.
package audit
