// Package limiters provides cache-backed attempt limiters and replay guards.
//
// # Limiters
//
//   - [AttemptLimiter]: fixed-window failure counter. Used for MFA attempts
//     (5 per window) and account lockout (MaxLoginAttempts per lockout period).
//   - [ReplayGuard]: single-use claim markers with a TTL. Used for TOTP replay
//     protection and backup-code consumption.
//
// Both types are nil-safe: a nil receiver never limits and never rejects.
//
// # What this package must NOT do
//
//   - Import authguard or any component package other than cache.
//   - Make policy decisions beyond counting and claiming; callers decide
//     consequences.
package limiters
