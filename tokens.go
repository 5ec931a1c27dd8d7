package authguard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/jwt"
	"github.com/MrEthical07/authguard/session"
	"github.com/MrEthical07/authguard/user"
)

// Cache key prefixes. Keys embed the literal token string.
const (
	accessMirrorPrefix = "token:"
	refreshPrefix      = "refresh_token:"
	revokedPrefix      = "revoked_token:"
)

// AccessTokenOptions tunes a single access token. A zero TTL uses
// JWT.AccessTokenExpire.
type AccessTokenOptions struct {
	TTL          time.Duration
	SessionID    string
	MFAVerified  bool
	AuthProvider string
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionID    string `json:"session_id,omitempty"`
}

// RefreshTokenRecord is cached under refresh_token:{token} until the token
// is rotated or revoked.
type RefreshTokenRecord struct {
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	RememberMe   bool      `json:"remember_me"`
	CreatedAt    time.Time `json:"created_at"`
	MFAVerified  bool      `json:"mfa_verified,omitempty"`
	AuthProvider string    `json:"auth_provider,omitempty"`
}

func claimsFor(u *user.User) jwt.Claims {
	c := jwt.Claims{
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role.String(),
		Status:   u.Status.String(),
	}
	c.Subject = u.ID
	return c
}

// CreateAccessToken signs an access token for u and mirrors its claims in
// the cache for the verification fast path. A failed mirror write is logged
// and does not fail issuance.
func (m *Manager) CreateAccessToken(ctx context.Context, u *user.User, opts AccessTokenOptions) (string, error) {
	if u == nil || u.ID == "" {
		return "", errors.New("access token requires a user id")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.config.JWT.AccessTokenExpire
	}

	claims := claimsFor(u)
	claims.SessionID = opts.SessionID
	claims.MFAVerified = opts.MFAVerified
	claims.AuthProvider = opts.AuthProvider

	token, err := m.codec.EncodeAccess(claims, ttl)
	if err != nil {
		return "", err
	}
	m.metricInc(MetricTokenIssued)
	m.mirror(ctx, token)
	return token, nil
}

func (m *Manager) mirror(ctx context.Context, token string) {
	claims, err := m.codec.DecodeAccess(token)
	if err != nil {
		return
	}
	ttl := claims.Remaining(m.now())
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, accessMirrorPrefix+token, string(data), ttl); err != nil {
		m.log.Warn("access token mirror write failed", zap.String("jti", redact(claims.ID)), zap.Error(err))
	}
}

// CreateRefreshToken signs a refresh token bound to sessionID and records it
// for rotation. rememberMe selects the longer lifetime.
func (m *Manager) CreateRefreshToken(ctx context.Context, u *user.User, sessionID string, rememberMe bool) (string, error) {
	return m.createRefreshToken(ctx, u, RefreshTokenRecord{SessionID: sessionID, RememberMe: rememberMe})
}

func (m *Manager) createRefreshToken(ctx context.Context, u *user.User, rec RefreshTokenRecord) (string, error) {
	if u == nil || u.ID == "" {
		return "", errors.New("refresh token requires a user id")
	}
	ttl := m.config.JWT.RefreshTokenExpire
	if rec.RememberMe {
		ttl = m.config.JWT.RememberMeRefreshExpire
	}

	claims := claimsFor(u)
	claims.SessionID = rec.SessionID
	claims.MFAVerified = rec.MFAVerified
	claims.AuthProvider = rec.AuthProvider
	token, err := m.codec.EncodeRefresh(claims, ttl)
	if err != nil {
		return "", err
	}

	rec.UserID = u.ID
	rec.CreatedAt = m.now()
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	if err := m.cache.Set(ctx, refreshPrefix+token, string(data), ttl); err != nil {
		return "", mapAs(ErrCacheUnavailable, err)
	}
	return token, nil
}

// VerifyToken validates an access token. The cached claim mirror is tried
// first, then the signature. Either way the revocation marker is checked;
// if it cannot be read the token is rejected.
func (m *Manager) VerifyToken(ctx context.Context, token string) (*jwt.Claims, error) {
	start := m.now()
	defer func() {
		if m.metrics.LatencyEnabled() {
			m.metrics.Observe(MetricVerifyLatency, m.now().Sub(start))
		}
	}()

	claims, err := m.decodeAccess(ctx, token)
	if err != nil {
		m.metricInc(MetricTokenRejected)
		return nil, err
	}

	revoked, err := m.cache.Exists(ctx, revokedPrefix+token)
	if err != nil {
		m.metricInc(MetricRevocationCheckFailed)
		m.log.Warn("revocation check failed; rejecting token",
			zap.String("jti", redact(claims.ID)), zap.Error(err))
		m.events.LogSecurityEvent(ctx, EventRevocationCheckFailed, claims.Subject, map[string]string{"outcome": "failure"})
		return nil, mapAs(ErrRevocationCheckFailed, err)
	}
	if revoked {
		m.metricInc(MetricTokenRejected)
		return nil, ErrRevokedToken
	}
	if claims.Subject == "" {
		m.metricInc(MetricTokenRejected)
		return nil, ErrInvalidToken
	}

	if m.config.Session.TouchOnVerify && claims.SessionID != "" {
		if _, err := m.sessions.Touch(ctx, claims.SessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
			m.log.Warn("session touch failed", zap.String("session_id", redact(claims.SessionID)), zap.Error(err))
		}
	}
	m.metricInc(MetricTokenVerified)
	return claims, nil
}

func (m *Manager) decodeAccess(ctx context.Context, token string) (*jwt.Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	raw, ok, err := m.cache.Get(ctx, accessMirrorPrefix+token)
	if err != nil {
		m.log.Debug("access mirror read failed; decoding", zap.Error(err))
	}
	if ok {
		var claims jwt.Claims
		if err := json.Unmarshal([]byte(raw), &claims); err == nil {
			if claims.Remaining(m.now()) <= 0 {
				return nil, ErrExpiredToken
			}
			return &claims, nil
		}
	}

	claims, err := m.codec.DecodeAccess(token)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrExpired):
		return nil, mapAs(ErrExpiredToken, err)
	default:
		return nil, mapAs(ErrInvalidToken, err)
	}
}

// RefreshAccessToken rotates a refresh token. The old record is deleted
// before anything is issued; a caller whose delete finds nothing lost a race
// against a concurrent rotation and gets ErrInvalidRefreshToken.
func (m *Manager) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := m.refresh(ctx, refreshToken)
	if err != nil {
		m.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrInvalidRefreshToken) || errors.Is(err, ErrSessionNotFound) {
			m.events.LogSecurityEvent(ctx, EventRefreshRejected, "", map[string]string{
				"outcome": "failure",
				"reason":  KindOf(err).String(),
			})
		}
		return nil, err
	}
	m.metricInc(MetricRefreshSuccess)
	return pair, nil
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := m.codec.DecodeRefresh(refreshToken)
	if err != nil {
		return nil, mapAs(ErrInvalidRefreshToken, err)
	}

	key := refreshPrefix + refreshToken
	raw, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		return nil, mapAs(ErrCacheUnavailable, err)
	}
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	var rec RefreshTokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.UserID != claims.Subject {
		return nil, ErrInvalidRefreshToken
	}

	if rec.SessionID != "" {
		if _, err := m.sessions.Get(ctx, rec.SessionID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				if _, derr := m.cache.Delete(ctx, key); derr != nil {
					m.log.Warn("orphaned refresh record cleanup failed", zap.Error(derr))
				}
				return nil, ErrSessionNotFound
			}
			return nil, mapSessionErr(err)
		}
	}

	deleted, err := m.cache.Delete(ctx, key)
	if err != nil {
		return nil, mapAs(ErrCacheUnavailable, err)
	}
	if !deleted {
		m.metricInc(MetricRefreshRaceLost)
		m.log.Warn("refresh token already rotated", zap.String("user_id", redact(rec.UserID)))
		return nil, ErrInvalidRefreshToken
	}

	u, err := m.refreshSubject(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, err := m.issuePair(ctx, u, rec)
	if err != nil {
		return nil, err
	}
	m.events.LogSecurityEvent(ctx, EventTokenRotation, u.ID, map[string]string{
		"session_id": redact(rec.SessionID),
		"ip":         requestFromContext(ctx).IPAddress,
	})
	return pair, nil
}

// refreshSubject re-reads the user when a repository is configured so a
// deactivated account cannot keep rotating. Without one the claims are
// trusted.
func (m *Manager) refreshSubject(ctx context.Context, claims *jwt.Claims) (*user.User, error) {
	if m.users == nil {
		role, _ := user.ParseRole(claims.Role)
		status, err := user.ParseStatus(claims.Status)
		if err != nil || !status.CanAuthenticate() {
			return nil, ErrAccountInactive
		}
		return &user.User{
			ID:       claims.Subject,
			Email:    claims.Email,
			Username: claims.Username,
			Role:     role,
			Status:   status,
		}, nil
	}

	u, err := m.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !u.Status.CanAuthenticate() {
		return nil, ErrAccountInactive
	}
	return u, nil
}

func (m *Manager) issuePair(ctx context.Context, u *user.User, rec RefreshTokenRecord) (*TokenPair, error) {
	access, err := m.CreateAccessToken(ctx, u, AccessTokenOptions{
		SessionID:    rec.SessionID,
		MFAVerified:  rec.MFAVerified,
		AuthProvider: rec.AuthProvider,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := m.createRefreshToken(ctx, u, rec)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(m.config.JWT.AccessTokenExpire / time.Second),
		SessionID:    rec.SessionID,
	}, nil
}

// RevokeToken blocks token for the rest of its lifetime. Either token kind
// is accepted. Expired tokens are already unusable and are left alone.
func (m *Manager) RevokeToken(ctx context.Context, token string) error {
	claims, err := m.codec.Inspect(token)
	if err != nil {
		return mapAs(ErrInvalidToken, err)
	}

	remaining := claims.Remaining(m.now())
	if remaining <= 0 {
		return nil
	}
	if err := m.cache.Set(ctx, revokedPrefix+token, "1", remaining); err != nil {
		return mapAs(ErrCacheUnavailable, err)
	}

	for _, k := range []string{accessMirrorPrefix + token, refreshPrefix + token} {
		if _, err := m.cache.Delete(ctx, k); err != nil {
			m.log.Warn("revoked token cleanup failed", zap.String("jti", redact(claims.ID)), zap.Error(err))
		}
	}

	m.metricInc(MetricTokenRevoked)
	m.events.LogTokenRevoked(ctx, claims.Subject, claims.ID, "revoked")
	m.log.Info("token revoked",
		zap.String("user_id", redact(claims.Subject)),
		zap.String("jti", redact(claims.ID)),
		zap.Duration("remaining", remaining))
	return nil
}
