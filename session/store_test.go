package session

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authguard/cache"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newMemoryTestStore(t *testing.T) (*Store, *cache.Memory, *clock) {
	t.Helper()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	mem := cache.NewMemory(clk.Now)
	return NewStore(mem, Config{TTL: 24 * time.Hour, Now: clk.Now}), mem, clk
}

func newRedisTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(cache.NewRedis(rdb, ""), Config{TTL: time.Hour}), mr
}

func TestCreateStoresSessionAndIndex(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", RequestContext{IPAddress: "10.0.0.1", UserAgent: "curl/8"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" || sess.Token == "" || !sess.IsActive {
		t.Fatalf("incomplete session: %+v", sess)
	}
	if !mr.Exists("session:" + sess.ID) {
		t.Fatal("expected session key")
	}
	if ttl := mr.TTL("session:" + sess.ID); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
	members, err := mr.Members("user_sessions:u-1")
	if err != nil || len(members) != 1 || members[0] != sess.ID {
		t.Fatalf("unexpected index %v (%v)", members, err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IPAddress != "10.0.0.1" || got.UserID != "u-1" {
		t.Fatalf("session did not round trip: %+v", got)
	}
}

func TestGetLazilyExpires(t *testing.T) {
	store, mem, clk := newMemoryTestStore(t)
	ctx := context.Background()
	sess, err := store.Create(ctx, "u-1", RequestContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Rewrite the record with a past expiry but a live cache TTL, the way a
	// record outlives its expiry when the clocks of two writers disagree.
	sess.ExpiresAt = clk.now.Add(-time.Second)
	if err := store.save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, _ := mem.Exists(ctx, "session:"+sess.ID); ok {
		t.Fatal("expired session should have been terminated")
	}
	members, _ := mem.Members(ctx, "user_sessions:u-1")
	if len(members) != 0 {
		t.Fatalf("expected index to be cleaned, got %v", members)
	}
}

func TestExtendAndTouch(t *testing.T) {
	store, mem, clk := newMemoryTestStore(t)
	ctx := context.Background()
	sess, err := store.Create(ctx, "u-1", RequestContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clk.now = clk.now.Add(23 * time.Hour)
	ext, err := store.Extend(ctx, sess.ID, 48*time.Hour)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if !ext.ExpiresAt.Equal(clk.now.Add(48 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", ext.ExpiresAt)
	}
	if ttl, _ := mem.TTL(ctx, "session:"+sess.ID); ttl != 48*time.Hour {
		t.Fatalf("expected ttl refresh, got %v", ttl)
	}

	clk.now = clk.now.Add(time.Hour)
	touched, err := store.Touch(ctx, sess.ID)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !touched.LastActivity.Equal(clk.now) || !touched.ExpiresAt.Equal(ext.ExpiresAt) {
		t.Fatalf("touch changed the wrong fields: %+v", touched)
	}

	if _, err := store.Extend(ctx, "missing", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTerminateIdempotent(t *testing.T) {
	store, _, _ := newMemoryTestStore(t)
	ctx := context.Background()
	sess, err := store.Create(ctx, "u-1", RequestContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := store.Terminate(ctx, sess.ID)
	if err != nil || !removed {
		t.Fatalf("first terminate: %v %v", removed, err)
	}
	removed, err = store.Terminate(ctx, sess.ID)
	if err != nil || removed {
		t.Fatalf("second terminate: %v %v", removed, err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTerminateAllAndList(t *testing.T) {
	store, _, _ := newMemoryTestStore(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := store.Create(ctx, "u-1", RequestContext{})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, sess.ID)
	}
	other, _ := store.Create(ctx, "u-2", RequestContext{})

	list, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, s := range list {
		got = append(got, s.ID)
	}
	sort.Strings(got)
	sort.Strings(ids)
	if len(got) != 3 || got[0] != ids[0] || got[2] != ids[2] {
		t.Fatalf("unexpected list %v, want %v", got, ids)
	}

	n, err := store.TerminateAll(ctx, "u-1")
	if err != nil || n != 3 {
		t.Fatalf("terminate all: %d %v", n, err)
	}
	if _, err := store.Get(ctx, other.ID); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
	n, err = store.TerminateAll(ctx, "u-1")
	if err != nil || n != 0 {
		t.Fatalf("second terminate all: %d %v", n, err)
	}
}

// flakyStore fails Delete for one key so partial failure can be observed.
type flakyStore struct {
	cache.Store
	failKey string
}

func (f *flakyStore) Delete(ctx context.Context, key string) (bool, error) {
	if key == f.failKey {
		return false, cache.ErrUnavailable
	}
	return f.Store.Delete(ctx, key)
}

func TestTerminateAllBestEffort(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	flaky := &flakyStore{Store: cache.NewMemory(clk.Now)}
	store := NewStore(flaky, Config{TTL: time.Hour, Now: clk.Now})
	ctx := context.Background()

	a, _ := store.Create(ctx, "u-1", RequestContext{})
	b, _ := store.Create(ctx, "u-1", RequestContext{})
	flaky.failKey = "session:" + a.ID

	n, err := store.TerminateAll(ctx, "u-1")
	if n != 1 {
		t.Fatalf("expected one terminated session, got %d", n)
	}
	if !errors.Is(err, cache.ErrUnavailable) {
		t.Fatalf("expected joined backend error, got %v", err)
	}
	if _, err := store.Get(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("successful termination must not be rolled back: %v", err)
	}
}

func TestShortExtendKeepsIndexForOtherSessions(t *testing.T) {
	store, _, clk := newMemoryTestStore(t)
	ctx := context.Background()

	a, err := store.Create(ctx, "u-1", RequestContext{})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := store.Create(ctx, "u-1", RequestContext{})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := store.Extend(ctx, b.ID, time.Hour); err != nil {
		t.Fatalf("extend b: %v", err)
	}

	clk.now = clk.now.Add(2 * time.Hour)
	if _, err := store.Get(ctx, a.ID); err != nil {
		t.Fatalf("session a should still be live: %v", err)
	}

	n, err := store.TerminateAll(ctx, "u-1")
	if err != nil {
		t.Fatalf("terminate all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the live session to be terminated, got %d", n)
	}
	if _, err := store.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("session a survived TerminateAll: %v", err)
	}
}

func TestShortExtendKeepsIndexOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewStore(cache.NewRedis(rdb, ""), Config{TTL: 24 * time.Hour})
	ctx := context.Background()

	a, err := store.Create(ctx, "u-1", RequestContext{})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := store.Create(ctx, "u-1", RequestContext{})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := store.Extend(ctx, b.ID, time.Hour); err != nil {
		t.Fatalf("extend b: %v", err)
	}
	if ttl := mr.TTL("user_sessions:u-1"); ttl < 23*time.Hour {
		t.Fatalf("index ttl shrank to %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	n, err := store.TerminateAll(ctx, "u-1")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 terminated, got %d (%v)", n, err)
	}
	if mr.Exists("session:" + a.ID) {
		t.Fatal("session a survived TerminateAll")
	}
}
