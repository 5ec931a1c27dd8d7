package authguard

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/user"
)

const testPassword = "correct-horse-battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memRepo struct {
	mu    sync.Mutex
	users map[string]user.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[string]user.User)}
}

func (r *memRepo) put(u *user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
}

func (r *memRepo) find(match func(user.User) bool) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			out := u
			return &out, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *memRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	return r.find(func(u user.User) bool { return u.ID == id })
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	return r.find(func(u user.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *memRepo) GetByUsername(_ context.Context, username string) (*user.User, error) {
	return r.find(func(u user.User) bool { return strings.EqualFold(u.Username, username) })
}

type recordedEvent struct {
	Kind    string
	UserID  string
	Success bool
	Details map[string]string
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) add(ev recordedEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingEvents) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingEvents) find(kind string) *recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].Kind == kind {
			ev := r.events[i]
			return &ev
		}
	}
	return nil
}

func (r *recordingEvents) LogLoginAttempt(_ context.Context, identifier string, success bool, _ RequestContext, reason string) {
	r.add(recordedEvent{Kind: "login", UserID: identifier, Success: success, Details: map[string]string{"reason": reason}})
}

func (r *recordingEvents) LogSessionCreated(_ context.Context, userID, sessionID string, _ RequestContext) {
	r.add(recordedEvent{Kind: EventSessionCreated, UserID: userID, Success: true})
}

func (r *recordingEvents) LogSessionTerminated(_ context.Context, sessionID, reason string) {
	r.add(recordedEvent{Kind: EventSessionTerminated, Details: map[string]string{"reason": reason}})
}

func (r *recordingEvents) LogTokenRevoked(_ context.Context, userID, tokenID, reason string) {
	r.add(recordedEvent{Kind: EventTokenRevoked, UserID: userID})
}

func (r *recordingEvents) LogPasswordResetRequested(_ context.Context, email string, _ RequestContext) {
	r.add(recordedEvent{Kind: EventPasswordResetRequest, UserID: email})
}

func (r *recordingEvents) LogSecurityEvent(_ context.Context, eventType, userID string, details map[string]string) {
	r.add(recordedEvent{Kind: eventType, UserID: userID, Details: details})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-access-secret-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-refresh-secret-0123456789")
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
	return cfg
}

type testEnv struct {
	m      *Manager
	clock  *testClock
	store  cache.Store
	repo   *memRepo
	events *recordingEvents
}

func buildEnv(t *testing.T, store cache.Store, clock *testClock, mutate ...func(*Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	env := &testEnv{
		clock:  clock,
		store:  store,
		repo:   newMemRepo(),
		events: &recordingEvents{},
	}
	m, err := New().
		WithConfig(cfg).
		WithCache(store).
		WithClock(clock.Now).
		WithUserRepository(env.repo).
		WithSecurityEvents(env.events).
		Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	t.Cleanup(m.Close)
	env.m = m
	return env
}

func newMemoryEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	clock := newTestClock()
	return buildEnv(t, cache.NewMemory(clock.Now), clock, mutate...)
}

func newRedisEnv(t *testing.T, mutate ...func(*Config)) (*testEnv, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return buildEnv(t, cache.NewRedis(rdb, "test"), newTestClock(), mutate...), mr
}

// addUser stores an active user whose password is testPassword.
func (e *testEnv) addUser(t *testing.T, id, username string) *user.User {
	t.Helper()
	hash, err := e.m.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &user.User{
		ID:           id,
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: hash,
		Role:         user.RoleUser,
		Status:       user.StatusActive,
	}
	e.repo.put(u)
	return u
}

func browser(ip string) RequestContext {
	return RequestContext{IPAddress: ip, UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/131.0"}
}
