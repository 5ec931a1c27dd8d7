// Package jwt encodes and decodes the HS256 access and refresh tokens issued
// by authguard.
//
// Access and refresh tokens are signed with distinct secrets and carry a typ
// claim, so a token of one kind never verifies as the other. Decoding checks
// the signature before expiry: a forged token reports [ErrInvalidSignature]
// even when it is also expired.
package jwt
