package authguard

import (
	"context"
	"errors"

	"github.com/MrEthical07/authguard/mfa"
	"github.com/MrEthical07/authguard/user"
)

func (m *Manager) mapMFAErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mfa.ErrRateLimited):
		m.metricInc(MetricRateLimitHit)
		return mapAs(ErrRateLimited, err)
	case errors.Is(err, mfa.ErrCodeReplayed):
		m.metricInc(MetricMFAReplay)
		return mapAs(ErrInvalidMFACode, err)
	case errors.Is(err, mfa.ErrInvalidMFACode), errors.Is(err, mfa.ErrNoPendingSetup):
		return mapAs(ErrInvalidMFACode, err)
	case errors.Is(err, mfa.ErrInvalidBackupCode):
		return mapAs(ErrInvalidBackupCode, err)
	case errors.Is(err, mfa.ErrMFANotEnabled):
		return mapAs(ErrMFANotEnabled, err)
	case errors.Is(err, mfa.ErrUnavailable):
		return mapAs(ErrCacheUnavailable, err)
	default:
		return err
	}
}

// SetupMFA stages an enrollment for u. The returned secret, QR code and
// backup codes are shown once; nothing is active until ConfirmMFASetup.
func (m *Manager) SetupMFA(ctx context.Context, u *user.User) (*mfa.Enrollment, error) {
	enrollment, err := m.mfa.Setup(ctx, u)
	if err != nil {
		return nil, m.mapMFAErr(err)
	}
	m.events.LogSecurityEvent(ctx, EventMFASetupStarted, u.ID, nil)
	return enrollment, nil
}

// ConfirmMFASetup activates a staged enrollment and returns the secret the
// caller must persist on the user record along with MFAEnabled.
func (m *Manager) ConfirmMFASetup(ctx context.Context, u *user.User, code string) (string, error) {
	secret, err := m.mfa.VerifySetup(ctx, u, code)
	if err != nil {
		m.metricInc(MetricMFAFailure)
		return "", m.mapMFAErr(err)
	}
	m.metricInc(MetricMFASuccess)
	m.events.LogSecurityEvent(ctx, EventMFAEnabled, u.ID, nil)
	return secret, nil
}

// VerifyMFA checks a TOTP code. A code is accepted at most once.
func (m *Manager) VerifyMFA(ctx context.Context, u *user.User, code string) error {
	if err := m.mfa.VerifyToken(ctx, u, code); err != nil {
		m.metricInc(MetricMFAFailure)
		mapped := m.mapMFAErr(err)
		typ := EventMFAFailure
		if errors.Is(err, mfa.ErrCodeReplayed) {
			typ = EventMFAReplay
		}
		m.events.LogSecurityEvent(ctx, typ, u.ID, map[string]string{
			"outcome": "failure",
			"reason":  KindOf(mapped).String(),
		})
		return mapped
	}
	m.metricInc(MetricMFASuccess)
	return nil
}

// VerifyBackupCode consumes one backup code.
func (m *Manager) VerifyBackupCode(ctx context.Context, u *user.User, code string) error {
	if err := m.mfa.VerifyBackupCode(ctx, u, code); err != nil {
		m.metricInc(MetricBackupCodeFailed)
		mapped := m.mapMFAErr(err)
		m.events.LogSecurityEvent(ctx, EventMFAFailure, u.ID, map[string]string{
			"outcome": "failure",
			"reason":  KindOf(mapped).String(),
			"method":  "backup_code",
		})
		return mapped
	}
	m.metricInc(MetricBackupCodeUsed)
	m.events.LogSecurityEvent(ctx, EventBackupCodeUsed, u.ID, nil)
	return nil
}

func (m *Manager) RegenerateBackupCodes(ctx context.Context, u *user.User) ([]string, error) {
	codes, err := m.mfa.RegenerateBackupCodes(ctx, u)
	if err != nil {
		return nil, m.mapMFAErr(err)
	}
	m.events.LogSecurityEvent(ctx, EventBackupCodesRegen, u.ID, nil)
	return codes, nil
}

func (m *Manager) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	n, err := m.mfa.RemainingBackupCodes(ctx, userID)
	return n, m.mapMFAErr(err)
}

// DisableMFA clears cached MFA state for userID. The caller clears the
// secret and MFAEnabled on the user record.
func (m *Manager) DisableMFA(ctx context.Context, userID string) error {
	if err := m.mfa.Disable(ctx, userID); err != nil {
		return m.mapMFAErr(err)
	}
	m.events.LogSecurityEvent(ctx, EventMFADisabled, userID, nil)
	return nil
}
