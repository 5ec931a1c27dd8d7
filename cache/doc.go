// Package cache defines the key-value port every stateful authguard component
// is built on, together with its two implementations.
//
// # Implementations
//
//   - [Redis] talks to a shared Redis deployment through go-redis. It is the
//     only implementation that is safe when more than one service instance
//     serves the same users.
//   - [Memory] keeps everything in a process-local map. Revocation markers,
//     refresh-token records, replay markers and attempt counters written by one
//     process are invisible to every other process, so a multi-instance
//     deployment backed by Memory silently loses revocation and rotation
//     guarantees across instances. Use it for tests, single-instance tools, and
//     development only.
//
// The choice is made explicitly by the caller; nothing in this package checks
// for a Redis server and falls back on its own.
//
// # Atomicity
//
// Each single call is atomic per key. Multi-step flows built on top (refresh
// rotation, backup-code consumption) rely on [Store.Delete] reporting whether the
// key existed and on [Store.SetIfAbsent] as a claim primitive, never on locks.
package cache
