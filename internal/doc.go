// Package internal contains helpers that are private to authguard: secure
// random generation, token hashing, log redaction and device identifiers.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: cache-backed attempt limiters and replay guards
package internal
