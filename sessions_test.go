package authguard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()

	sess, err := env.m.CreateSession(ctx, "user-1", browser("10.1.1.1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.DeviceInfo == "" || sess.IPAddress != "10.1.1.1" {
		t.Fatalf("request context not recorded: %+v", sess)
	}
	if !sess.ExpiresAt.Equal(env.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", sess.ExpiresAt)
	}

	got, err := env.m.GetSession(ctx, sess.ID)
	if err != nil || got.ID != sess.ID {
		t.Fatalf("get: %v, %v", got, err)
	}

	env.clock.Advance(20 * time.Hour)
	extended, err := env.m.ExtendSession(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if !extended.ExpiresAt.Equal(env.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("extend should use the configured lifetime, got %v", extended.ExpiresAt)
	}

	env.clock.Advance(10 * time.Hour)
	if _, err := env.m.GetSession(ctx, sess.ID); err != nil {
		t.Fatalf("extended session should still be live: %v", err)
	}

	ok, err := env.m.TerminateSession(ctx, sess.ID)
	if err != nil || !ok {
		t.Fatalf("terminate: %v, %v", ok, err)
	}
	ok, err = env.m.TerminateSession(ctx, sess.ID)
	if err != nil || ok {
		t.Fatalf("second terminate should report absence: %v, %v", ok, err)
	}
	if _, err := env.m.GetSession(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()

	sess, err := env.m.CreateSession(ctx, "user-1", browser("10.1.1.1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.clock.Advance(24*time.Hour + time.Second)
	if _, err := env.m.GetSession(ctx, sess.ID); KindOf(err) != KindSessionNotFound {
		t.Fatalf("expected KindSessionNotFound, got %v", err)
	}
}

func TestTerminateAllUserSessions(t *testing.T) {
	env, _ := newRedisEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.m.CreateSession(ctx, "user-1", browser("10.1.1.1")); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other, err := env.m.CreateSession(ctx, "user-2", browser("10.1.1.2"))
	if err != nil {
		t.Fatalf("create other: %v", err)
	}

	list, err := env.m.ListUserSessions(ctx, "user-1")
	if err != nil || len(list) != 3 {
		t.Fatalf("list: %d, %v", len(list), err)
	}

	n, err := env.m.TerminateAllUserSessions(ctx, "user-1")
	if err != nil || n != 3 {
		t.Fatalf("terminate all: %d, %v", n, err)
	}
	list, err = env.m.ListUserSessions(ctx, "user-1")
	if err != nil || len(list) != 0 {
		t.Fatalf("sessions left after terminate all: %d, %v", len(list), err)
	}
	if _, err := env.m.GetSession(ctx, other.ID); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
}

func TestTouchOnVerify(t *testing.T) {
	env := newMemoryEnv(t, func(c *Config) { c.Session.TouchOnVerify = true })
	ctx := context.Background()
	u := env.addUser(t, "user-1", "alice")

	sess, err := env.m.CreateSession(ctx, u.ID, browser("10.1.1.1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	token, err := env.m.CreateAccessToken(ctx, u, AccessTokenOptions{SessionID: sess.ID})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	env.clock.Advance(time.Minute)
	if _, err := env.m.VerifyToken(ctx, token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err := env.m.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastActivity.Equal(env.clock.Now()) {
		t.Fatalf("last activity not touched: %v", got.LastActivity)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatal("touch must not move the expiry")
	}
}
