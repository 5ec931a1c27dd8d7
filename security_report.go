package authguard

import "time"

// SecurityReport summarises the effective security posture for startup logs
// and health endpoints.
type SecurityReport struct {
	ProductionMode     bool
	SharedCache        bool
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RememberMeTTL      time.Duration
	SessionTTL         time.Duration
	Argon2             PasswordConfigReport
	MFAAttemptLimit    int
	MFAAttemptWindow   time.Duration
	LockoutActive      bool
	DeviceTracking     bool
	PasswordResetLimit int
	AuditEnabled       bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (m *Manager) SecurityReport() SecurityReport {
	if m == nil {
		return SecurityReport{}
	}
	c := m.config
	return SecurityReport{
		ProductionMode:   c.Security.ProductionMode,
		SharedCache:      m.cache.Shared(),
		SigningAlgorithm: "HS256",
		AccessTTL:        c.JWT.AccessTokenExpire,
		RefreshTTL:       c.JWT.RefreshTokenExpire,
		RememberMeTTL:    c.JWT.RememberMeRefreshExpire,
		SessionTTL:       c.Session.Expire,
		Argon2: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		MFAAttemptLimit:    c.MFA.MaxAttempts,
		MFAAttemptWindow:   c.MFA.AttemptWindow,
		LockoutActive:      m.lockout != nil,
		DeviceTracking:     m.devices != nil,
		PasswordResetLimit: c.PasswordReset.MaxRequests,
		AuditEnabled:       m.audit != nil,
	}
}
