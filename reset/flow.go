// Package reset issues and redeems single-use password-reset tokens.
//
// Only the sha256 of a token is used as a cache key. A consumed token keeps
// its record (marked used) for UsedRetention so abuse can be investigated,
// but from the moment of consumption Verify treats it exactly like a token
// that never existed.
package reset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/internal"
	"github.com/MrEthical07/authguard/internal/limiters"
)

var (
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	ErrRateLimited       = errors.New("too many reset requests")
	ErrUnavailable       = errors.New("reset backend unavailable")
)

const tokenBytes = 32

type Config struct {
	TTL           time.Duration
	UsedRetention time.Duration
	// MaxRequests caps Generate calls per email within RequestWindow.
	// Zero disables the cap.
	MaxRequests   int
	RequestWindow time.Duration
	Now           func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TTL:           15 * time.Minute,
		UsedRetention: 5 * time.Minute,
		MaxRequests:   5,
		RequestWindow: time.Hour,
	}
}

// Record is what a reset token resolves to.
type Record struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

type Flow struct {
	store    cache.Store
	cfg      Config
	requests *limiters.AttemptLimiter
	claims   *limiters.ReplayGuard
}

func NewFlow(store cache.Store, cfg Config) *Flow {
	d := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = d.TTL
	}
	if cfg.UsedRetention <= 0 {
		cfg.UsedRetention = d.UsedRetention
	}
	if cfg.RequestWindow <= 0 {
		cfg.RequestWindow = d.RequestWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	f := &Flow{
		store:  store,
		cfg:    cfg,
		claims: limiters.NewReplayGuard(store, "password_reset_used", cfg.TTL),
	}
	if cfg.MaxRequests > 0 {
		f.requests = limiters.NewAttemptLimiter(store, limiters.AttemptConfig{
			Prefix:      "password_reset_requests",
			MaxAttempts: cfg.MaxRequests,
			Window:      cfg.RequestWindow,
		})
	}
	return f
}

func key(token string) string {
	return "password_reset:" + internal.HashToken(token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Generate issues a token for email, valid for TTL.
func (f *Flow) Generate(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", errors.New("reset requires an email")
	}
	if f.requests != nil {
		if err := f.requests.Check(ctx, email); err != nil {
			if errors.Is(err, limiters.ErrLimited) {
				return "", ErrRateLimited
			}
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if _, err := f.requests.RecordFailure(ctx, email); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	token, err := internal.RandomToken(tokenBytes)
	if err != nil {
		return "", err
	}
	now := f.cfg.Now()
	rec := Record{Email: email, CreatedAt: now, ExpiresAt: now.Add(f.cfg.TTL)}
	if err := f.save(ctx, token, rec, f.cfg.TTL); err != nil {
		return "", err
	}
	return token, nil
}

// Verify returns the record behind token, or nil when the token is unknown,
// expired or already used. All three cases take the same path.
func (f *Flow) Verify(ctx context.Context, token string) (*Record, error) {
	rec, err := f.load(ctx, token)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Used || !f.cfg.Now().Before(rec.ExpiresAt) {
		return nil, nil
	}
	return rec, nil
}

// Consume marks token used. Exactly one caller succeeds; every other call,
// concurrent or later, gets ErrInvalidResetToken.
func (f *Flow) Consume(ctx context.Context, token string) (*Record, error) {
	rec, err := f.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrInvalidResetToken
	}

	won, err := f.claims.Claim(ctx, internal.HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !won {
		return nil, ErrInvalidResetToken
	}

	rec.Used = true
	if err := f.save(ctx, token, *rec, f.cfg.UsedRetention); err != nil {
		return nil, err
	}
	if f.requests != nil {
		_ = f.requests.Reset(ctx, rec.Email)
	}
	return rec, nil
}

func (f *Flow) load(ctx context.Context, token string) (*Record, error) {
	if token == "" {
		return nil, nil
	}
	raw, ok, err := f.store.Get(ctx, key(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, nil
	}
	return &rec, nil
}

func (f *Flow) save(ctx context.Context, token string, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := f.store.Set(ctx, key(token), string(data), ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
