package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/internal"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrCorrupt  = errors.New("session record corrupt")
)

const sessionTokenBytes = 32

// Config controls session lifetime.
type Config struct {
	TTL time.Duration
	Now func() time.Time
}

// Store is safe for concurrent use when the underlying cache is.
type Store struct {
	cache cache.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewStore(c cache.Store, cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Store{cache: c, ttl: cfg.TTL, now: cfg.Now}
}

func key(id string) string {
	return "session:" + id
}

func userKey(userID string) string {
	return "user_sessions:" + userID
}

// Create issues a new active session for userID.
func (s *Store) Create(ctx context.Context, userID string, req RequestContext) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session requires a user id")
	}
	token, err := internal.RandomToken(sessionTokenBytes)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Token:        token,
		ExpiresAt:    now.Add(s.ttl),
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		DeviceInfo:   req.DeviceInfo,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}

	if err := s.save(ctx, sess, s.ttl); err != nil {
		return nil, err
	}
	if err := s.cache.AddToSet(ctx, userKey(userID), sess.ID, s.ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key(sess.ID), string(data), ttl)
}

func (s *Store) load(ctx context.Context, id string) (*Session, error) {
	raw, ok, err := s.cache.Get(ctx, key(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &sess, nil
}

// Get returns the session, terminating it first when it has expired.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) || !sess.IsActive {
		if _, err := s.terminate(ctx, sess); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

// Extend moves the expiry to now+d and refreshes the cache TTL.
func (s *Store) Extend(ctx context.Context, id string, d time.Duration) (*Session, error) {
	if d <= 0 {
		return nil, errors.New("extension must be positive")
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess.ExpiresAt = now.Add(d)
	sess.LastActivity = now
	if err := s.save(ctx, sess, d); err != nil {
		return nil, err
	}
	if err := s.cache.AddToSet(ctx, userKey(sess.UserID), sess.ID, d); err != nil {
		return nil, err
	}
	return sess, nil
}

// Touch records activity without changing the expiry.
func (s *Store) Touch(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess.LastActivity = now
	if err := s.save(ctx, sess, sess.ExpiresAt.Sub(now)); err != nil {
		return nil, err
	}
	return sess, nil
}

// Terminate deletes the session and drops it from the user index. It reports
// whether a session was actually removed; terminating twice is not an error.
func (s *Store) Terminate(ctx context.Context, id string) (bool, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if !errors.Is(err, ErrCorrupt) {
			return false, err
		}
		// Unreadable record: remove the key, the index entry ages out.
		return s.cache.Delete(ctx, key(id))
	}
	return s.terminate(ctx, sess)
}

func (s *Store) terminate(ctx context.Context, sess *Session) (bool, error) {
	existed, err := s.cache.Delete(ctx, key(sess.ID))
	if err != nil {
		return false, err
	}
	if err := s.cache.RemoveFromSet(ctx, userKey(sess.UserID), sess.ID); err != nil {
		return existed, err
	}
	return existed, nil
}

// TerminateAll terminates every indexed session of userID. It is best-effort:
// sessions already terminated stay terminated when a later one fails, and
// every failure is returned joined.
func (s *Store) TerminateAll(ctx context.Context, userID string) (int, error) {
	ids, err := s.cache.Members(ctx, userKey(userID))
	if err != nil {
		return 0, err
	}

	count := 0
	var errs []error
	for _, id := range ids {
		existed, err := s.cache.Delete(ctx, key(id))
		if err != nil {
			errs = append(errs, fmt.Errorf("terminate %s: %w", internal.Redact(id), err))
			continue
		}
		if err := s.cache.RemoveFromSet(ctx, userKey(userID), id); err != nil {
			errs = append(errs, fmt.Errorf("unindex %s: %w", internal.Redact(id), err))
		}
		if existed {
			count++
		}
	}
	return count, errors.Join(errs...)
}

// ListForUser returns the user's live sessions, pruning stale index entries.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.cache.Members(ctx, userKey(userID))
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.cache.RemoveFromSet(ctx, userKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}
