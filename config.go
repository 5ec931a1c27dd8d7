package authguard

import (
	"errors"
	"fmt"
	"time"
)

const minSecretLength = 32

// Config is the full engine configuration. Build it from DefaultConfig or
// LoadConfigFromEnv and treat it as immutable once passed to the Builder.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	PasswordReset PasswordResetConfig
	MFA           MFAConfig
	Lockout       LockoutConfig
	Device        DeviceConfig
	Password      PasswordConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes. Access and refresh tokens
// are signed with distinct HS256 secrets.
type JWTConfig struct {
	AccessSecret            []byte
	RefreshSecret           []byte
	Issuer                  string
	AccessTokenExpire       time.Duration
	RefreshTokenExpire      time.Duration
	RememberMeRefreshExpire time.Duration
	Leeway                  time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	Expire time.Duration
	// TouchOnVerify refreshes the session's last-activity timestamp on every
	// successful VerifyToken carrying a session_id.
	TouchOnVerify bool
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

type PasswordResetConfig struct {
	Expire        time.Duration
	UsedRetention time.Duration
	MaxRequests   int
	RequestWindow time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig configures TOTP and backup codes. AttemptWindow bounds the
// failed-attempt counter; MaxAttempts failures inside it block further
// verification until the window ends.
type MFAConfig struct {
	Issuer           string
	TokenInterval    time.Duration
	Skew             uint
	BackupCodeCount  int
	BackupCodeLength int
	SetupExpire      time.Duration
	BackupCodeExpire time.Duration
	ReplayWindow     time.Duration
	MaxAttempts      int
	AttemptWindow    time.Duration
}

// AcceptanceWindow is how long a single TOTP code can keep validating: its
// own step plus Skew steps on either side. Replay markers must outlive it.
func (c MFAConfig) AcceptanceWindow() time.Duration {
	return time.Duration(2*c.Skew+1) * c.TokenInterval
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	MaxLoginAttempts int
	AccountLockout   time.Duration
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig configures the known-device registry and the anomaly
// thresholds evaluated over Window.
type DeviceConfig struct {
	Enabled          bool
	MaxDevices       int
	RegistryExpire   time.Duration
	AttemptLogSize   int
	AttemptLogExpire time.Duration
	Window           time.Duration
	MaxAttempts      int
	MaxIPs           int
	MaxRecentDevices int
	MaxDevicesPerIP  int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries Argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	ProductionMode bool
	// RequireSharedCache makes Build fail instead of warn when the cache is
	// process-local.
	RequireSharedCache bool
	// CacheKeyPrefix namespaces every key when the Builder constructs the
	// Redis store itself from a URL.
	CacheKeyPrefix string
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:                  "authguard",
			AccessTokenExpire:       30 * time.Minute,
			RefreshTokenExpire:      30 * 24 * time.Hour,
			RememberMeRefreshExpire: 90 * 24 * time.Hour,
		},
		Session: SessionConfig{
			Expire:        24 * time.Hour,
			TouchOnVerify: false,
		},
		PasswordReset: PasswordResetConfig{
			Expire:        15 * time.Minute,
			UsedRetention: 5 * time.Minute,
			MaxRequests:   5,
			RequestWindow: time.Hour,
		},
		MFA: MFAConfig{
			Issuer:           "authguard",
			TokenInterval:    30 * time.Second,
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
			SetupExpire:      time.Hour,
			BackupCodeExpire: 365 * 24 * time.Hour,
			ReplayWindow:     90 * time.Second,
			MaxAttempts:      5,
			AttemptWindow:    15 * time.Minute,
		},
		Lockout: LockoutConfig{
			MaxLoginAttempts: 5,
			AccountLockout:   30 * time.Minute,
		},
		Device: DeviceConfig{
			Enabled:          true,
			MaxDevices:       10,
			RegistryExpire:   90 * 24 * time.Hour,
			AttemptLogSize:   100,
			AttemptLogExpire: 24 * time.Hour,
			Window:           time.Hour,
			MaxAttempts:      10,
			MaxIPs:           5,
			MaxRecentDevices: 3,
			MaxDevicesPerIP:  3,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			ProductionMode: false,
			CacheKeyPrefix: "ag",
		},
	}
}

// DefaultConfig returns the production defaults. Secrets are left empty and
// must be supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration problem. Build calls it and
// refuses to start on error.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	// JWT
	if len(c.JWT.AccessSecret) < minSecretLength {
		return fmt.Errorf("JWT access secret must be at least %d bytes", minSecretLength)
	}
	if len(c.JWT.RefreshSecret) < minSecretLength {
		return fmt.Errorf("JWT refresh secret must be at least %d bytes", minSecretLength)
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT access and refresh secrets must differ")
	}
	if c.JWT.AccessTokenExpire <= 0 {
		return errors.New("JWT AccessTokenExpire must be > 0")
	}
	if c.JWT.RefreshTokenExpire <= c.JWT.AccessTokenExpire {
		return errors.New("JWT RefreshTokenExpire must be greater than AccessTokenExpire")
	}
	if c.JWT.RememberMeRefreshExpire < c.JWT.RefreshTokenExpire {
		return errors.New("JWT RememberMeRefreshExpire must be >= RefreshTokenExpire")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.Expire <= 0 {
		return errors.New("Session Expire must be > 0")
	}

	// Password reset
	if c.PasswordReset.Expire <= 0 {
		return errors.New("PasswordReset Expire must be > 0")
	}
	if c.PasswordReset.UsedRetention < 0 {
		return errors.New("PasswordReset UsedRetention must be >= 0")
	}
	if c.PasswordReset.MaxRequests < 0 {
		return errors.New("PasswordReset MaxRequests must be >= 0")
	}
	if c.PasswordReset.MaxRequests > 0 && c.PasswordReset.RequestWindow <= 0 {
		return errors.New("PasswordReset RequestWindow must be > 0 when MaxRequests is set")
	}

	// MFA
	if c.MFA.TokenInterval < time.Second {
		return errors.New("MFA TokenInterval must be >= 1s")
	}
	if c.MFA.Skew > 2 {
		return errors.New("MFA Skew must be <= 2 steps")
	}
	if c.MFA.BackupCodeCount <= 0 || c.MFA.BackupCodeCount > 20 {
		return errors.New("MFA BackupCodeCount must be between 1 and 20")
	}
	if c.MFA.BackupCodeLength < 8 {
		return errors.New("MFA BackupCodeLength must be >= 8")
	}
	if c.MFA.MaxAttempts <= 0 || c.MFA.AttemptWindow <= 0 {
		return errors.New("MFA MaxAttempts and AttemptWindow must be > 0")
	}
	if c.MFA.ReplayWindow < c.MFA.AcceptanceWindow() {
		return errors.New("MFA ReplayWindow must cover (2*Skew+1) token intervals")
	}

	// Lockout
	if c.Lockout.MaxLoginAttempts < 0 {
		return errors.New("Lockout MaxLoginAttempts must be >= 0")
	}
	if c.Lockout.MaxLoginAttempts > 0 && c.Lockout.AccountLockout <= 0 {
		return errors.New("Lockout AccountLockout must be > 0 when MaxLoginAttempts is set")
	}

	// Device
	if c.Device.Enabled {
		if c.Device.MaxDevices <= 0 || c.Device.AttemptLogSize <= 0 {
			return errors.New("Device MaxDevices and AttemptLogSize must be > 0")
		}
		if c.Device.Window <= 0 || c.Device.Window > c.Device.AttemptLogExpire {
			return errors.New("Device Window must be > 0 and fit inside AttemptLogExpire")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return c.passwordConfig().Validate()
}
