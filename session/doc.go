// Package session stores login sessions in a [cache.Store].
//
// # Layout
//
// Each session is a JSON document under "session:{id}" whose cache TTL tracks
// ExpiresAt. A per-user set "user_sessions:{user_id}" indexes session IDs for
// bulk termination. The two are not updated transactionally: the index may
// briefly reference a session that already expired, and [Store.Get] cleans
// such entries up lazily.
//
// # What this package must NOT do
//
//   - Import authguard or jwt (no upward imports).
//   - Interpret access or refresh tokens.
//
// [cache.Store]: github.com/MrEthical07/authguard/cache.Store
package session
