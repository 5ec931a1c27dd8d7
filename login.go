package authguard

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/internal/limiters"
	"github.com/MrEthical07/authguard/session"
	"github.com/MrEthical07/authguard/user"
)

// LoginRequest is a password login. Identifier is an email address or a
// username. MFACode accepts either a TOTP code or a backup code.
type LoginRequest struct {
	Identifier string
	Password   string
	MFACode    string
	RememberMe bool
	Request    RequestContext
}

// ProviderLoginRequest is a login through an external identity provider.
type ProviderLoginRequest struct {
	Provider   OAuthProvider
	Code       string
	MFACode    string
	RememberMe bool
	Request    RequestContext
}

// LoginResult describes a completed login. Device findings are advisory and
// never block the login.
type LoginResult struct {
	User             *user.User
	Session          *session.Session
	Tokens           *TokenPair
	NewDevice        bool
	DeviceAlert      string
	Suspicious       bool
	SuspiciousReason string
}

// Authenticate runs the password login flow: lockout check, credential
// verification, status gate, device checks, MFA step, then session and
// token issuance. ErrMFARequired means the credentials were correct and
// the call must be repeated with MFACode.
func (m *Manager) Authenticate(ctx context.Context, in LoginRequest) (*LoginResult, error) {
	if m.users == nil {
		return nil, ErrNoUserRepository
	}
	req := normalizeRequest(in.Request)
	ident := strings.ToLower(strings.TrimSpace(in.Identifier))
	if ident == "" || in.Password == "" {
		m.passwords.Burn(in.Password)
		return nil, ErrInvalidCredentials
	}

	if err := m.lockout.Check(ctx, ident); err != nil {
		if errors.Is(err, limiters.ErrLimited) {
			m.metricInc(MetricLoginLocked)
			m.events.LogLoginAttempt(ctx, ident, false, req, KindAccountLocked.String())
			return nil, ErrAccountLocked
		}
		return nil, mapAs(ErrCacheUnavailable, err)
	}

	u, err := m.lookupUser(ctx, ident)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return nil, err
		}
		m.passwords.Burn(in.Password)
		return nil, m.loginFailed(ctx, ident, req, ErrInvalidCredentials)
	}

	ok, err := m.passwords.Verify(in.Password, u.PasswordHash)
	if err != nil {
		m.log.Error("stored password hash unreadable", zap.String("user_id", redact(u.ID)), zap.Error(err))
	}
	if !ok {
		return nil, m.loginFailed(ctx, ident, req, ErrInvalidCredentials)
	}
	if !u.Status.CanAuthenticate() {
		m.events.LogLoginAttempt(ctx, ident, false, req, KindAccountInactive.String())
		return nil, ErrAccountInactive
	}

	res, err := m.completeLogin(ctx, u, req, in.MFACode, in.RememberMe, "")
	if err != nil {
		if !errors.Is(err, ErrMFARequired) {
			m.events.LogLoginAttempt(ctx, ident, false, req, KindOf(err).String())
		}
		return nil, err
	}
	if err := m.lockout.Reset(ctx, ident); err != nil {
		m.log.Warn("login attempt counter reset failed", zap.Error(err))
	}
	m.events.LogLoginAttempt(ctx, ident, true, req, "")
	return res, nil
}

// AuthenticateWithProvider logs in a user vouched for by an external
// provider. The provider must report a verified email that matches an
// existing account; accounts are never created here.
func (m *Manager) AuthenticateWithProvider(ctx context.Context, in ProviderLoginRequest) (*LoginResult, error) {
	if m.users == nil {
		return nil, ErrNoUserRepository
	}
	if in.Provider == nil {
		return nil, errors.New("provider required")
	}
	req := normalizeRequest(in.Request)
	name := in.Provider.Name()

	identity, err := in.Provider.Exchange(ctx, in.Code)
	if err != nil {
		m.metricInc(MetricLoginFailure)
		m.events.LogLoginAttempt(ctx, name, false, req, "provider_exchange_failed")
		return nil, mapAs(ErrInvalidCredentials, err)
	}
	if identity == nil || identity.Email == "" || !identity.EmailVerified {
		m.metricInc(MetricLoginFailure)
		m.events.LogLoginAttempt(ctx, name, false, req, "provider_email_unverified")
		return nil, ErrInvalidCredentials
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	u, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			m.metricInc(MetricLoginFailure)
			m.events.LogLoginAttempt(ctx, email, false, req, "provider_user_unknown")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.Status.CanAuthenticate() {
		m.events.LogLoginAttempt(ctx, email, false, req, KindAccountInactive.String())
		return nil, ErrAccountInactive
	}

	res, err := m.completeLogin(ctx, u, req, in.MFACode, in.RememberMe, name)
	if err != nil {
		return nil, err
	}
	m.events.LogLoginAttempt(ctx, email, true, req, "")
	return res, nil
}

func (m *Manager) lookupUser(ctx context.Context, ident string) (*user.User, error) {
	if strings.Contains(ident, "@") {
		return m.users.GetByEmail(ctx, ident)
	}
	return m.users.GetByUsername(ctx, ident)
}

func (m *Manager) loginFailed(ctx context.Context, ident string, req RequestContext, cause error) error {
	m.metricInc(MetricLoginFailure)
	m.events.LogLoginAttempt(ctx, ident, false, req, KindOf(cause).String())

	limited, err := m.lockout.RecordFailure(ctx, ident)
	if err != nil {
		m.log.Warn("login failure not recorded", zap.String("identifier", redact(ident)), zap.Error(err))
		return cause
	}
	if limited {
		m.metricInc(MetricLoginLocked)
		m.events.LogSecurityEvent(ctx, EventAccountLocked, ident, map[string]string{
			"outcome": "failure",
			"ip":      req.IPAddress,
		})
	}
	return cause
}

// completeLogin runs the steps shared by every login path once the user is
// authenticated.
func (m *Manager) completeLogin(ctx context.Context, u *user.User, req RequestContext, mfaCode string, rememberMe bool, provider string) (*LoginResult, error) {
	res := &LoginResult{User: u}
	m.checkDevice(ctx, u, req, res)

	if u.MFAEnabled {
		if strings.TrimSpace(mfaCode) == "" {
			m.metricInc(MetricMFARequired)
			return nil, ErrMFARequired
		}
		if err := m.verifyLoginCode(ctx, u, mfaCode); err != nil {
			return nil, err
		}
	}

	sess, err := m.CreateSession(ctx, u.ID, req)
	if err != nil {
		return nil, err
	}
	pair, err := m.issuePair(ctx, u, RefreshTokenRecord{
		SessionID:    sess.ID,
		RememberMe:   rememberMe,
		MFAVerified:  u.MFAEnabled,
		AuthProvider: provider,
	})
	if err != nil {
		if _, terr := m.sessions.Terminate(ctx, sess.ID); terr != nil {
			m.log.Warn("session rollback failed", zap.String("session_id", redact(sess.ID)), zap.Error(terr))
		}
		return nil, err
	}

	m.metricInc(MetricLoginSuccess)
	res.Session = sess
	res.Tokens = pair
	return res, nil
}

// verifyLoginCode accepts a six digit TOTP code or a backup code.
func (m *Manager) verifyLoginCode(ctx context.Context, u *user.User, code string) error {
	code = strings.TrimSpace(code)
	if isTOTPCode(code) {
		return m.VerifyMFA(ctx, u, code)
	}
	return m.VerifyBackupCode(ctx, u, code)
}

func isTOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// checkDevice records the device and login attempt. Findings are attached
// to res and reported as security events; cache failures are already
// logged by the tracker and only counted here.
func (m *Manager) checkDevice(ctx context.Context, u *user.User, req RequestContext, res *LoginResult) {
	if m.devices == nil {
		return
	}

	dr := m.devices.ValidateDevice(ctx, u.ID, req.DeviceID, req.IPAddress)
	verdict := m.devices.DetectSuspicious(ctx, u.ID, req.IPAddress, req.DeviceID)
	if dr.Degraded || verdict.Degraded {
		m.metricInc(MetricDegradedCheck)
	}

	// A degraded result confirms neither a known nor a new device.
	if !dr.Known && !dr.Degraded {
		res.NewDevice = true
		res.DeviceAlert = dr.Alert
		m.metricInc(MetricDeviceNew)
		m.events.LogSecurityEvent(ctx, EventNewDevice, u.ID, map[string]string{
			"device_id": redact(req.DeviceID),
			"ip":        req.IPAddress,
			"reason":    dr.Alert,
		})
	}
	if verdict.Suspicious {
		res.Suspicious = true
		res.SuspiciousReason = verdict.Reason
		m.metricInc(MetricSuspiciousActivity)
		m.events.LogSecurityEvent(ctx, EventSuspiciousActivity, u.ID, map[string]string{
			"reason": verdict.Reason,
			"ip":     req.IPAddress,
		})
	}
}

// Logout revokes accessToken and terminates the session it belongs to.
// Already revoked or expired tokens are accepted so logout is idempotent.
func (m *Manager) Logout(ctx context.Context, accessToken string) error {
	claims, err := m.codec.Inspect(accessToken)
	if err != nil {
		return mapAs(ErrInvalidToken, err)
	}
	if err := m.RevokeToken(ctx, accessToken); err != nil {
		return err
	}
	if claims.SessionID != "" {
		if _, err := m.TerminateSession(ctx, claims.SessionID); err != nil {
			return err
		}
	}
	m.events.LogSecurityEvent(ctx, EventLogout, claims.Subject, map[string]string{
		"session_id": redact(claims.SessionID),
	})
	return nil
}
