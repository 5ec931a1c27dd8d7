package limiters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authguard/cache"
)

// ReplayGuard hands out single-use claims. A claim succeeds exactly once per
// key until its TTL lapses, even under concurrent callers.
type ReplayGuard struct {
	store  cache.Store
	prefix string
	ttl    time.Duration
}

func NewReplayGuard(store cache.Store, prefix string, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{store: store, prefix: prefix, ttl: ttl}
}

func (g *ReplayGuard) key(parts []string) string {
	return g.prefix + ":" + strings.Join(parts, ":")
}

// Claim reports true when the caller is the first to present parts.
func (g *ReplayGuard) Claim(ctx context.Context, parts ...string) (bool, error) {
	if g == nil || g.store == nil {
		return true, nil
	}
	ok, err := g.store.SetIfAbsent(ctx, g.key(parts), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// Seen reports whether parts were already claimed.
func (g *ReplayGuard) Seen(ctx context.Context, parts ...string) (bool, error) {
	if g == nil || g.store == nil {
		return false, nil
	}
	ok, err := g.store.Exists(ctx, g.key(parts))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// Release drops a claim so the value may be presented again.
func (g *ReplayGuard) Release(ctx context.Context, parts ...string) error {
	if g == nil || g.store == nil {
		return nil
	}
	if _, err := g.store.Delete(ctx, g.key(parts)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
