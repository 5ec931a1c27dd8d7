package authguard

import (
	"errors"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/jwt"
	"github.com/MrEthical07/authguard/mfa"
	"github.com/MrEthical07/authguard/reset"
	"github.com/MrEthical07/authguard/session"
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, wrong token
	// kinds and tokens without a subject.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for a well-signed token past its exp.
	ErrExpiredToken = errors.New("token expired")
	// ErrRevokedToken is returned once a revocation marker exists for the token.
	ErrRevokedToken = errors.New("token revoked")
	// ErrRevocationCheckFailed means the revocation state could not be read.
	// The token is rejected.
	ErrRevocationCheckFailed = errors.New("revocation check failed")
	// ErrInvalidRefreshToken covers unknown, already rotated and malformed
	// refresh tokens, including the loser of a concurrent rotation.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrRateLimited         = errors.New("rate limited")
	ErrInvalidMFACode      = errors.New("invalid mfa code")
	ErrInvalidBackupCode   = errors.New("invalid backup code")
	ErrMFARequired         = errors.New("mfa required")
	ErrMFANotEnabled       = errors.New("mfa not enabled")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the failed-login counter for the
	// identifier is at its limit.
	ErrAccountLocked    = errors.New("account locked")
	ErrAccountInactive  = errors.New("account not active")
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrNoUserRepository is returned by flows that need to resolve users when
	// the Builder was not given a repository.
	ErrNoUserRepository = errors.New("user repository not configured")
)

// ErrorKind is the closed set of error categories the engine produces.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindInvalidToken
	KindExpiredToken
	KindRevokedToken
	KindInvalidRefreshToken
	KindSessionNotFound
	KindRateLimited
	KindInvalidMFACode
	KindInvalidBackupCode
	KindMFARequired
	KindMFANotEnabled
	KindInvalidResetToken
	KindInvalidCredentials
	KindAccountLocked
	KindAccountInactive
	KindUnavailable
	KindInternal
)

var kindNames = [...]string{
	KindNone:                "none",
	KindInvalidToken:        "invalid_token",
	KindExpiredToken:        "expired_token",
	KindRevokedToken:        "revoked_token",
	KindInvalidRefreshToken: "invalid_refresh_token",
	KindSessionNotFound:     "session_not_found",
	KindRateLimited:         "rate_limited",
	KindInvalidMFACode:      "invalid_mfa_code",
	KindInvalidBackupCode:   "invalid_backup_code",
	KindMFARequired:         "mfa_required",
	KindMFANotEnabled:       "mfa_not_enabled",
	KindInvalidResetToken:   "invalid_reset_token",
	KindInvalidCredentials:  "invalid_credentials",
	KindAccountLocked:       "account_locked",
	KindAccountInactive:     "account_inactive",
	KindUnavailable:         "unavailable",
	KindInternal:            "internal",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var kindTable = []struct {
	kind ErrorKind
	errs []error
}{
	{KindRevokedToken, []error{ErrRevokedToken}},
	{KindUnavailable, []error{ErrRevocationCheckFailed, ErrCacheUnavailable, cache.ErrUnavailable, mfa.ErrUnavailable, reset.ErrUnavailable}},
	{KindExpiredToken, []error{ErrExpiredToken, jwt.ErrExpired}},
	{KindInvalidRefreshToken, []error{ErrInvalidRefreshToken}},
	{KindInvalidToken, []error{ErrInvalidToken, jwt.ErrMalformed, jwt.ErrInvalidSignature}},
	{KindSessionNotFound, []error{ErrSessionNotFound, ErrSessionExpired, session.ErrNotFound}},
	{KindRateLimited, []error{ErrRateLimited, mfa.ErrRateLimited, reset.ErrRateLimited}},
	{KindInvalidMFACode, []error{ErrInvalidMFACode, mfa.ErrInvalidMFACode, mfa.ErrCodeReplayed, mfa.ErrNoPendingSetup}},
	{KindInvalidBackupCode, []error{ErrInvalidBackupCode, mfa.ErrInvalidBackupCode}},
	{KindMFARequired, []error{ErrMFARequired}},
	{KindMFANotEnabled, []error{ErrMFANotEnabled, mfa.ErrMFANotEnabled}},
	{KindInvalidResetToken, []error{ErrInvalidResetToken, reset.ErrInvalidResetToken}},
	{KindInvalidCredentials, []error{ErrInvalidCredentials}},
	{KindAccountLocked, []error{ErrAccountLocked}},
	{KindAccountInactive, []error{ErrAccountInactive}},
}

// KindOf classifies err. nil maps to KindNone and anything unrecognised to
// KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, row := range kindTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.kind
			}
		}
	}
	return KindInternal
}

// mappedError exposes a package-level cause under one of the sentinels above
// so callers can match either.
type mappedError struct {
	public error
	cause  error
}

func (e *mappedError) Error() string   { return e.cause.Error() }
func (e *mappedError) Unwrap() []error { return []error{e.public, e.cause} }

func mapAs(public, cause error) error {
	if cause == nil {
		return nil
	}
	return &mappedError{public: public, cause: cause}
}
