package authguard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/device"
	"github.com/MrEthical07/authguard/internal/audit"
	"github.com/MrEthical07/authguard/internal/limiters"
	"github.com/MrEthical07/authguard/jwt"
	"github.com/MrEthical07/authguard/mfa"
	"github.com/MrEthical07/authguard/password"
	"github.com/MrEthical07/authguard/reset"
	"github.com/MrEthical07/authguard/session"
	"github.com/MrEthical07/authguard/user"
)

// Manager is the security facade: token issuance and verification, refresh
// rotation, revocation, sessions, password reset, MFA and login flows. It is
// safe for concurrent use; all shared state lives in the cache.
type Manager struct {
	config    Config
	cache     cache.Store
	codec     *jwt.Codec
	sessions  *session.Store
	resets    *reset.Flow
	mfa       *mfa.Engine
	devices   *device.Tracker
	passwords *password.Argon2
	lockout   *limiters.AttemptLimiter
	users     user.Repository
	events    safeEvents
	audit     *audit.Dispatcher
	metrics   *Metrics
	log       *zap.Logger
	now       func() time.Time
}

// Close drains pending security events. The cache is owned by the caller.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.audit.Close()
}

// Ping reports whether the cache backend answers.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.cache.Ping(ctx); err != nil {
		return mapAs(ErrCacheUnavailable, err)
	}
	return nil
}

func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return m.metrics.Snapshot()
}

// AuditDropped counts events lost to a full dispatcher buffer.
func (m *Manager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}

// MFA exposes the engine for secret, QR and backup-code generation outside
// the orchestrated flows.
func (m *Manager) MFA() *mfa.Engine {
	return m.mfa
}

// HashPassword hashes plain with the configured Argon2id parameters. The
// caller persists the result.
func (m *Manager) HashPassword(plain string) (string, error) {
	return m.passwords.Hash(plain)
}

func (m *Manager) metricInc(id MetricID) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Inc(id)
}
