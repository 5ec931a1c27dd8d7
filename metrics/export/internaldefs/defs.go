package internaldefs

import (
	"github.com/MrEthical07/authguard"
)

// Def names one engine metric for export.
type Def struct {
	ID   authguard.MetricID
	Name string
	Help string
}

var CounterDefs = []Def{
	{authguard.MetricLoginSuccess, "authguard_login_success_total", "Successful logins."},
	{authguard.MetricLoginFailure, "authguard_login_failure_total", "Failed logins."},
	{authguard.MetricLoginLocked, "authguard_login_locked_total", "Logins refused by account lockout."},
	{authguard.MetricMFARequired, "authguard_mfa_required_total", "Logins that stopped for an MFA code."},
	{authguard.MetricTokenIssued, "authguard_token_issued_total", "Access tokens issued."},
	{authguard.MetricTokenVerified, "authguard_token_verified_total", "Access tokens accepted."},
	{authguard.MetricTokenRejected, "authguard_token_rejected_total", "Access tokens rejected."},
	{authguard.MetricTokenRevoked, "authguard_token_revoked_total", "Tokens revoked."},
	{authguard.MetricRevocationCheckFailed, "authguard_revocation_check_failed_total", "Tokens rejected because revocation state was unreadable."},
	{authguard.MetricRefreshSuccess, "authguard_refresh_success_total", "Successful refresh rotations."},
	{authguard.MetricRefreshFailure, "authguard_refresh_failure_total", "Failed refresh rotations."},
	{authguard.MetricRefreshRaceLost, "authguard_refresh_race_lost_total", "Rotations that lost to a concurrent rotation."},
	{authguard.MetricSessionCreated, "authguard_session_created_total", "Sessions created."},
	{authguard.MetricSessionTerminated, "authguard_session_terminated_total", "Sessions terminated."},
	{authguard.MetricMFASuccess, "authguard_mfa_success_total", "Accepted TOTP codes."},
	{authguard.MetricMFAFailure, "authguard_mfa_failure_total", "Rejected TOTP codes."},
	{authguard.MetricMFAReplay, "authguard_mfa_replay_total", "TOTP codes rejected as replays."},
	{authguard.MetricBackupCodeUsed, "authguard_backup_code_used_total", "Backup codes consumed."},
	{authguard.MetricBackupCodeFailed, "authguard_backup_code_failed_total", "Rejected backup codes."},
	{authguard.MetricRateLimitHit, "authguard_rate_limit_hit_total", "Requests refused by a rate limit."},
	{authguard.MetricPasswordResetRequest, "authguard_password_reset_request_total", "Password reset tokens issued."},
	{authguard.MetricPasswordResetConsumed, "authguard_password_reset_consumed_total", "Password reset tokens redeemed."},
	{authguard.MetricPasswordResetInvalid, "authguard_password_reset_invalid_total", "Password reset redemptions refused."},
	{authguard.MetricDeviceNew, "authguard_device_new_total", "Logins from a previously unseen device."},
	{authguard.MetricSuspiciousActivity, "authguard_suspicious_activity_total", "Logins flagged as suspicious."},
	{authguard.MetricDegradedCheck, "authguard_degraded_check_total", "Advisory checks skipped on cache failure."},
}

var HistogramDefs = []Def{
	{authguard.MetricVerifyLatency, "authguard_verify_latency_seconds", "Access token verification latency."},
}

// AuditDropped is exported next to the engine counters.
var AuditDropped = Def{Name: "authguard_audit_dropped_total", Help: "Audit events dropped under backpressure."}

// Bucket upper bounds in seconds, matching the engine's millisecond
// buckets. Suffixes are the same bounds in a form usable in metric names.
var (
	HistogramBounds      = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}
	HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}
)

// Cumulative turns the engine's per-bucket counts into running totals. Short
// or missing input reads as zero.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
