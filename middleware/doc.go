// Package middleware adapts [authguard.Manager] token verification to
// net/http handlers.
//
// [Guard] reads the Authorization bearer token, verifies it and stores the
// claims on the request context. [RequireRole] and [RequireMFA] layer on top
// of Guard and only inspect claims already verified.
//
// The package makes no authentication decisions of its own and never touches
// the cache directly.
package middleware
