package authguard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a LintWarning. Higher is worse.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is a configuration that is valid but risky.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of warnings produced by Config.Lint.
type LintResult []LintWarning

func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the warnings at or above min into one error, or returns nil
// when there are none. Useful as a startup gate.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(hits))
	for _, w := range hits {
		msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return errors.New("config lint: " + strings.Join(msgs, "; "))
}

// Lint reports settings that pass Validate but weaken the deployment.
// Lint never fails; it only advises.
func (c *Config) Lint() LintResult {
	var r LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		r = append(r, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT leeway %s lets expired tokens through for over a minute", c.JWT.Leeway)
	}
	if c.JWT.AccessTokenExpire > time.Hour {
		add("access_ttl_long", LintWarn, "access tokens live %s; revocation is the only way to cut them short", c.JWT.AccessTokenExpire)
	}
	if c.JWT.RefreshTokenExpire > 30*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh tokens live %s", c.JWT.RefreshTokenExpire)
	}
	if c.Session.Expire < c.JWT.RefreshTokenExpire {
		add("session_shorter_than_refresh", LintInfo,
			"sessions end after %s, before refresh tokens (%s); rotation fails once the session is gone",
			c.Session.Expire, c.JWT.RefreshTokenExpire)
	}
	if c.Lockout.MaxLoginAttempts == 0 {
		sev := LintWarn
		if c.Security.ProductionMode {
			sev = LintHigh
		}
		add("lockout_disabled", sev, "failed password logins are not limited")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintWarn, "security events are not delivered to an audit sink")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2 memory %d KiB is below 64 MiB", c.Password.Memory)
	}
	if c.Security.ProductionMode && !c.Security.RequireSharedCache {
		add("shared_cache_not_required", LintHigh,
			"production mode accepts a process-local cache; revocations would not reach other instances")
	}
	return r
}
