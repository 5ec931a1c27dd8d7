package authguard

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/reset"
	"github.com/MrEthical07/authguard/user"
)

func mapResetErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reset.ErrRateLimited):
		return mapAs(ErrRateLimited, err)
	case errors.Is(err, reset.ErrInvalidResetToken):
		return mapAs(ErrInvalidResetToken, err)
	case errors.Is(err, reset.ErrUnavailable):
		return mapAs(ErrCacheUnavailable, err)
	default:
		return err
	}
}

// GeneratePasswordResetToken issues a single-use reset token for email. The
// token is returned for delivery; only its hash is stored.
func (m *Manager) GeneratePasswordResetToken(ctx context.Context, email string) (string, error) {
	token, err := m.resets.Generate(ctx, email)
	if err != nil {
		if errors.Is(err, reset.ErrRateLimited) {
			m.metricInc(MetricRateLimitHit)
		}
		return "", mapResetErr(err)
	}
	m.metricInc(MetricPasswordResetRequest)
	m.events.LogPasswordResetRequested(ctx, email, requestFromContext(ctx))
	return token, nil
}

// VerifyPasswordResetToken returns the record behind token, or nil when the
// token is unknown, expired or already consumed.
func (m *Manager) VerifyPasswordResetToken(ctx context.Context, token string) (*reset.Record, error) {
	rec, err := m.resets.Verify(ctx, token)
	return rec, mapResetErr(err)
}

// ConsumePasswordResetToken redeems token exactly once. When a user
// repository is configured the account's sessions are terminated as well.
func (m *Manager) ConsumePasswordResetToken(ctx context.Context, token string) (*reset.Record, error) {
	rec, err := m.resets.Consume(ctx, token)
	if err != nil {
		m.metricInc(MetricPasswordResetInvalid)
		return nil, mapResetErr(err)
	}
	m.metricInc(MetricPasswordResetConsumed)

	var userID string
	if m.users != nil {
		u, err := m.users.GetByEmail(ctx, rec.Email)
		switch {
		case err == nil:
			userID = u.ID
			if _, err := m.TerminateAllUserSessions(ctx, u.ID); err != nil {
				m.log.Warn("post-reset session cleanup incomplete", zap.Error(err))
			}
		case errors.Is(err, user.ErrNotFound):
		default:
			m.log.Warn("post-reset user lookup failed", zap.Error(err))
		}
	}
	// userID stays empty without a repository; the email goes in metadata.
	m.events.LogSecurityEvent(ctx, EventPasswordResetConsumed, userID, map[string]string{
		"email": redact(rec.Email),
	})
	return rec, nil
}
