// Package mfa implements TOTP enrollment and verification with backup codes.
//
// # Keys
//
//	mfa_setup:{user_id}         pending enrollment, 1h
//	mfa_backup_codes:{user_id}  set of backup-code hashes, 1y
//	mfa_used:{user_id}:{code}   TOTP replay marker, (2*Skew+1) periods
//	mfa_backup_used:{user_id}:{hash}  backup-code claim marker
//	mfa_attempts:{user_id}      failed-attempt counter
//
// A TOTP code is accepted at most once: after it validates, the replay marker
// is claimed with [cache.Store.SetIfAbsent] and a second presentation inside
// the marker TTL fails with [ErrCodeReplayed]. Backup codes are single use in
// the same way, and are removed from the stored set once claimed.
//
// Failed attempts are counted per user in a fixed window. Once MaxAttempts
// failures were recorded every verification returns [ErrRateLimited] until the
// window closes, whether or not the presented code is correct.
//
// [cache.Store.SetIfAbsent]: github.com/MrEthical07/authguard/cache.Store
package mfa
