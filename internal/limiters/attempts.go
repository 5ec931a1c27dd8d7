package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authguard/cache"
)

var (
	ErrLimited     = errors.New("attempt limit reached")
	ErrUnavailable = errors.New("limiter backend unavailable")
)

// AttemptConfig holds the thresholds for one [AttemptLimiter].
type AttemptConfig struct {
	// Prefix namespaces the counter keys, e.g. "mfa_attempts".
	Prefix      string
	MaxAttempts int
	Window      time.Duration
}

// AttemptLimiter counts failures per subject in a fixed window that starts
// with the first failure.
type AttemptLimiter struct {
	store  cache.Store
	config AttemptConfig
}

func NewAttemptLimiter(store cache.Store, cfg AttemptConfig) *AttemptLimiter {
	return &AttemptLimiter{store: store, config: cfg}
}

func (l *AttemptLimiter) key(subject string) string {
	return l.config.Prefix + ":" + subject
}

// Check returns ErrLimited once MaxAttempts failures were recorded in the
// current window.
func (l *AttemptLimiter) Check(ctx context.Context, subject string) error {
	count, err := l.Count(ctx, subject)
	if err != nil {
		return err
	}
	if l != nil && l.config.MaxAttempts > 0 && count >= l.config.MaxAttempts {
		return ErrLimited
	}
	return nil
}

// RecordFailure increments the counter and reports whether the subject is
// now limited.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, subject string) (bool, error) {
	if l == nil || l.store == nil || subject == "" {
		return false, nil
	}
	count, err := l.store.Incr(ctx, l.key(subject), l.config.Window)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return l.config.MaxAttempts > 0 && count >= int64(l.config.MaxAttempts), nil
}

// Count returns the failures recorded in the current window.
func (l *AttemptLimiter) Count(ctx context.Context, subject string) (int, error) {
	if l == nil || l.store == nil || subject == "" {
		return 0, nil
	}
	raw, ok, err := l.store.Get(ctx, l.key(subject))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt counter: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Reset clears the counter, e.g. after a successful attempt.
func (l *AttemptLimiter) Reset(ctx context.Context, subject string) error {
	if l == nil || l.store == nil || subject == "" {
		return nil
	}
	if _, err := l.store.Delete(ctx, l.key(subject)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RetryAfter reports how long until the current window closes.
func (l *AttemptLimiter) RetryAfter(ctx context.Context, subject string) (time.Duration, error) {
	if l == nil || l.store == nil || subject == "" {
		return 0, nil
	}
	d, err := l.store.TTL(ctx, l.key(subject))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return d, nil
}
