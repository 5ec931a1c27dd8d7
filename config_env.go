package authguard

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvConfig holds the raw environment values. Durations keep the units of
// their variable names.
type EnvConfig struct {
	AccessTokenExpireMinutes      int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES"     envDefault:"30"`
	RefreshTokenExpireDays        int    `env:"REFRESH_TOKEN_EXPIRE_DAYS"       envDefault:"30"`
	RememberMeRefreshExpireDays   int    `env:"REMEMBER_ME_REFRESH_EXPIRE_DAYS" envDefault:"90"`
	SessionExpireHours            int    `env:"SESSION_EXPIRE_HOURS"            envDefault:"24"`
	PasswordResetExpireMinutes    int    `env:"PASSWORD_RESET_EXPIRE_MINUTES"   envDefault:"15"`
	MFATokenInterval              int    `env:"MFA_TOKEN_INTERVAL"              envDefault:"30"`
	MaxLoginAttempts              int    `env:"MAX_LOGIN_ATTEMPTS"              envDefault:"5"`
	AccountLockoutMinutes         int    `env:"ACCOUNT_LOCKOUT_MINUTES"         envDefault:"30"`
	JWTSecretKey                  string `env:"JWT_SECRET_KEY"`
	JWTRefreshSecretKey           string `env:"JWT_REFRESH_SECRET_KEY"`
	MFAIssuer                     string `env:"MFA_ISSUER"                      envDefault:"authguard"`
	RedisURL                      string `env:"REDIS_URL"`
	ProductionMode                bool   `env:"AUTHGUARD_PRODUCTION"            envDefault:"false"`
	MFAAttemptWindowMinutes       int    `env:"MFA_ATTEMPT_WINDOW_MINUTES"      envDefault:"15"`
	PasswordResetRetentionMinutes int    `env:"PASSWORD_RESET_RETENTION_MINUTES" envDefault:"5"`
}

// LoadConfigFromEnv reads optional dotenv files, then the process
// environment, and maps the result onto DefaultConfig. Variables already set
// in the environment win over dotenv values. With no files given, ./.env is
// loaded when present.
//
// The returned Config is not validated; Build does that.
func LoadConfigFromEnv(files ...string) (Config, EnvConfig, error) {
	if err := loadDotenv(files); err != nil {
		return Config{}, EnvConfig{}, err
	}

	raw, err := env.ParseAs[EnvConfig]()
	if err != nil {
		return Config{}, EnvConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	return raw.Config(), raw, nil
}

func loadDotenv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load dotenv files: %w", err)
	}
	return nil
}

// Config applies the environment values on top of DefaultConfig.
func (e EnvConfig) Config() Config {
	cfg := defaultConfig()

	cfg.JWT.AccessSecret = []byte(e.JWTSecretKey)
	cfg.JWT.RefreshSecret = []byte(e.JWTRefreshSecretKey)
	cfg.JWT.AccessTokenExpire = time.Duration(e.AccessTokenExpireMinutes) * time.Minute
	cfg.JWT.RefreshTokenExpire = time.Duration(e.RefreshTokenExpireDays) * 24 * time.Hour
	cfg.JWT.RememberMeRefreshExpire = time.Duration(e.RememberMeRefreshExpireDays) * 24 * time.Hour

	cfg.Session.Expire = time.Duration(e.SessionExpireHours) * time.Hour

	cfg.PasswordReset.Expire = time.Duration(e.PasswordResetExpireMinutes) * time.Minute
	cfg.PasswordReset.UsedRetention = time.Duration(e.PasswordResetRetentionMinutes) * time.Minute

	cfg.MFA.Issuer = e.MFAIssuer
	cfg.MFA.TokenInterval = time.Duration(e.MFATokenInterval) * time.Second
	if floor := cfg.MFA.AcceptanceWindow(); cfg.MFA.ReplayWindow < floor {
		cfg.MFA.ReplayWindow = floor
	}
	cfg.MFA.AttemptWindow = time.Duration(e.MFAAttemptWindowMinutes) * time.Minute

	cfg.Lockout.MaxLoginAttempts = e.MaxLoginAttempts
	cfg.Lockout.AccountLockout = time.Duration(e.AccountLockoutMinutes) * time.Minute

	cfg.Security.ProductionMode = e.ProductionMode
	return cfg
}
