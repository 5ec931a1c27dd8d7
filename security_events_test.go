package authguard

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authguard/cache"
)

func TestAuditPipelineDeliversRedactedEvents(t *testing.T) {
	clock := newTestClock()
	repo := newMemRepo()
	sink := NewChannelSink(64)

	m, err := New().
		WithConfig(testConfig()).
		WithCache(cache.NewMemory(clock.Now)).
		WithClock(clock.Now).
		WithUserRepository(repo).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer m.Close()

	env := &testEnv{m: m, clock: clock, repo: repo}
	env.addUser(t, "user-0123456789", "alice")

	if _, err := m.Authenticate(context.Background(), LoginRequest{
		Identifier: "alice",
		Password:   testPassword,
		Request:    browser("10.9.9.9"),
	}); err != nil {
		t.Fatalf("login: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.Type != EventSessionCreated {
				continue
			}
			if ev.UserID == "user-0123456789" || !strings.HasPrefix(ev.UserID, "user-012") {
				t.Fatalf("user id should be redacted, got %q", ev.UserID)
			}
			if ev.IP != "10.9.9.9" || !ev.Success {
				t.Fatalf("unexpected event: %+v", ev)
			}
			if !ev.Timestamp.Equal(clock.Now()) {
				t.Fatalf("event not stamped with the engine clock: %v", ev.Timestamp)
			}
			return
		case <-deadline:
			t.Fatal("session_created event not delivered")
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestJSONWriterSinkOutcome(t *testing.T) {
	clock := newTestClock()
	out := &syncBuffer{}

	m, err := New().
		WithConfig(testConfig()).
		WithCache(cache.NewMemory(clock.Now)).
		WithClock(clock.Now).
		WithAuditSink(NewJSONWriterSink(out)).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := m.RevokeToken(context.Background(), "not-a-token"); err == nil {
		t.Fatal("garbage must not revoke")
	}
	if _, err := m.RefreshAccessToken(context.Background(), "not-a-token"); err == nil {
		t.Fatal("garbage must not refresh")
	}
	// Close drains the queue.
	m.Close()

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected a refresh_rejected event")
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(strings.Split(line, "\n")[0]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventRefreshRejected || ev.Success {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Reason != KindInvalidRefreshToken.String() {
		t.Fatalf("reason: %q", ev.Reason)
	}
}

type panickingEvents struct{ recordingEvents }

func (p *panickingEvents) LogLoginAttempt(context.Context, string, bool, RequestContext, string) {
	panic("sink exploded")
}

func (p *panickingEvents) LogSessionCreated(context.Context, string, string, RequestContext) {
	panic("sink exploded")
}

func TestPanickingSecurityEventsDoNotFailRequests(t *testing.T) {
	clock := newTestClock()
	repo := newMemRepo()
	m, err := New().
		WithConfig(testConfig()).
		WithCache(cache.NewMemory(clock.Now)).
		WithClock(clock.Now).
		WithUserRepository(repo).
		WithSecurityEvents(&panickingEvents{}).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer m.Close()

	env := &testEnv{m: m, clock: clock, repo: repo}
	env.addUser(t, "user-1", "alice")

	res, err := m.Authenticate(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("login must survive a panicking event receiver: %v", err)
	}
	if _, err := m.VerifyToken(context.Background(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestNormalizeRequestDerivesDevice(t *testing.T) {
	req := normalizeRequest(browser("10.0.0.1"))
	if req.DeviceID == "" || req.DeviceInfo == "" {
		t.Fatalf("device not derived: %+v", req)
	}
	again := normalizeRequest(browser("10.0.0.2"))
	if again.DeviceID != req.DeviceID {
		t.Fatal("device id must depend on the user agent only")
	}

	ctx := WithUserAgent(WithClientIP(context.Background(), "10.0.0.3"), "curl/8.0")
	fromCtx := requestFromContext(ctx)
	if fromCtx.IPAddress != "10.0.0.3" || fromCtx.UserAgent != "curl/8.0" || fromCtx.DeviceID == "" {
		t.Fatalf("context request: %+v", fromCtx)
	}
}
