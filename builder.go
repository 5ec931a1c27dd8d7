package authguard

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/device"
	"github.com/MrEthical07/authguard/internal/limiters"
	"github.com/MrEthical07/authguard/jwt"
	"github.com/MrEthical07/authguard/mfa"
	"github.com/MrEthical07/authguard/password"
	"github.com/MrEthical07/authguard/reset"
	"github.com/MrEthical07/authguard/session"
	"github.com/MrEthical07/authguard/user"
)

// Builder assembles a Manager. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	cache  cache.Store
	redis  redis.UniversalClient
	logger *zap.Logger
	users  user.Repository
	events SecurityEvents
	sink   AuditSink
	now    func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCache selects the cache backend. The choice is explicit: a process
// local store is accepted but logged as unsafe for multi-instance use.
func (b *Builder) WithCache(store cache.Store) *Builder {
	b.cache = store
	return b
}

// WithRedis is shorthand for WithCache with a cache.Redis namespaced by
// Config.Security.CacheKeyPrefix. WithCache takes precedence when both are set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithUserRepository(repo user.Repository) *Builder {
	b.users = repo
	return b
}

// WithSecurityEvents replaces the audit-backed event pipeline with a custom
// receiver.
func (b *Builder) WithSecurityEvents(events SecurityEvents) *Builder {
	b.events = events
	return b
}

// WithAuditSink sets where the default event pipeline delivers. Without one
// events go to the logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the wall clock for every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store := b.cache
	if store == nil && b.redis != nil {
		store = cache.NewRedis(b.redis, cfg.Security.CacheKeyPrefix)
	}
	if store == nil {
		return nil, errors.New("cache store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	if !store.Shared() {
		if cfg.Security.RequireSharedCache {
			return nil, errors.New("a shared cache is required but the configured store is process-local")
		}
		logger.Warn("process-local cache selected; revocations, sessions and replay markers are not shared across instances")
	}

	codec, err := jwt.NewCodec(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	ph, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:    cloneConfig(cfg),
		cache:     store,
		codec:     codec,
		passwords: ph,
		users:     b.users,
		metrics:   NewMetrics(cfg.Metrics),
		log:       logger,
		now:       now,
	}

	m.sessions = session.NewStore(store, session.Config{TTL: cfg.Session.Expire, Now: now})
	m.resets = reset.NewFlow(store, reset.Config{
		TTL:           cfg.PasswordReset.Expire,
		UsedRetention: cfg.PasswordReset.UsedRetention,
		MaxRequests:   cfg.PasswordReset.MaxRequests,
		RequestWindow: cfg.PasswordReset.RequestWindow,
		Now:           now,
	})
	m.mfa = mfa.New(store, cfg.mfaConfig(now), logger)
	if cfg.Device.Enabled {
		m.devices = device.NewTracker(store, cfg.deviceConfig(now), logger)
	}
	if cfg.Lockout.MaxLoginAttempts > 0 {
		m.lockout = limiters.NewAttemptLimiter(store, limiters.AttemptConfig{
			Prefix:      "login_attempts_failed",
			MaxAttempts: cfg.Lockout.MaxLoginAttempts,
			Window:      cfg.Lockout.AccountLockout,
		})
	}

	events := b.events
	if events == nil {
		sink := b.sink
		if sink == nil {
			sink = NewZapSink(logger)
		}
		m.audit = newAuditDispatcher(cfg.Audit, sink, now)
		events = newAuditEvents(m.audit, now)
	}
	m.events = safeEvents{next: events, log: logger}

	b.built = true
	return m, nil
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
		MinLength:   c.Password.MinLength,
	}
}

func (c *Config) mfaConfig(now func() time.Time) mfa.Config {
	return mfa.Config{
		Issuer:           c.MFA.Issuer,
		Period:           c.MFA.TokenInterval,
		Skew:             c.MFA.Skew,
		BackupCodeCount:  c.MFA.BackupCodeCount,
		BackupCodeLength: c.MFA.BackupCodeLength,
		SetupTTL:         c.MFA.SetupExpire,
		BackupCodeTTL:    c.MFA.BackupCodeExpire,
		ReplayTTL:        c.MFA.ReplayWindow,
		MaxAttempts:      c.MFA.MaxAttempts,
		AttemptWindow:    c.MFA.AttemptWindow,
		Now:              now,
	}
}

func (c *Config) deviceConfig(now func() time.Time) device.Config {
	return device.Config{
		MaxDevices:       c.Device.MaxDevices,
		RegistryTTL:      c.Device.RegistryExpire,
		LogSize:          c.Device.AttemptLogSize,
		LogTTL:           c.Device.AttemptLogExpire,
		Window:           c.Device.Window,
		MaxAttempts:      c.Device.MaxAttempts,
		MaxIPs:           c.Device.MaxIPs,
		MaxRecentDevices: c.Device.MaxRecentDevices,
		MaxDevicesPerIP:  c.Device.MaxDevicesPerIP,
		Now:              now,
	}
}
