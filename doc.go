// Package authguard is an authentication, session and MFA engine: signed
// access and refresh tokens, cache-backed sessions, refresh rotation, token
// revocation, TOTP with backup codes, device anomaly tracking and single-use
// password reset tokens.
//
// A [Manager] is assembled with [Builder]:
//
//	m, err := authguard.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithUserRepository(repo).
//		WithLogger(logger).
//		Build()
//
// Manager methods are safe to call from concurrent goroutines. All shared
// state lives in the [cache.Store]; the Manager holds no per-key locks.
// Multi-step flows rely on ordering instead: rotation deletes the old refresh
// record before issuing, and single-use transitions go through an atomic
// claim.
//
// # Failure policy
//
// Revocation checks fail closed: if the marker cannot be read the token is
// rejected with [ErrRevocationCheckFailed]. Device and anomaly checks fail
// open and are logged. Security event delivery never affects a request.
//
// # Errors
//
// Every returned error matches one of the sentinels in this package through
// errors.Is. [KindOf] maps any error to a closed [ErrorKind].
package authguard
