package authguard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/mfa"
	"github.com/MrEthical07/authguard/user"
)

func TestAuthenticateByUsernameAndEmail(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.addUser(t, "user-1", "alice")

	first, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword, Request: browser("10.0.0.1")})
	if err != nil {
		t.Fatalf("login by username: %v", err)
	}
	if !first.NewDevice || first.DeviceAlert == "" {
		t.Fatalf("first login should flag a new device: %+v", first)
	}
	if first.Tokens == nil || first.Session == nil {
		t.Fatalf("login must issue a session and tokens: %+v", first)
	}
	if first.Tokens.SessionID != first.Session.ID {
		t.Fatalf("token pair bound to wrong session")
	}

	second, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "Alice@Example.com", Password: testPassword, Request: browser("10.0.0.1")})
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if second.NewDevice {
		t.Fatal("same browser should be a known device")
	}

	claims, err := env.m.VerifyToken(ctx, second.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.Subject != "user-1" || claims.SessionID != second.Session.ID {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if env.m.MetricsSnapshot().Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("expected two successful logins in metrics")
	}
}

func TestAuthenticateWrongPasswordAndUnknownUser(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.addUser(t, "user-1", "alice")

	_, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: "wrong-password"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	_, err = env.m.Authenticate(ctx, LoginRequest{Identifier: "nobody", Password: testPassword})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
	_, err = env.m.Authenticate(ctx, LoginRequest{Identifier: "", Password: ""})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty input: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateLockoutAndRecovery(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.addUser(t, "user-1", "alice")

	for i := 0; i < 5; i++ {
		if _, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: "nope-nope"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if env.events.count(EventAccountLocked) != 1 {
		t.Fatalf("expected one lockout event, got %d", env.events.count(EventAccountLocked))
	}

	_, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked even with the right password, got %v", err)
	}

	env.clock.Advance(31 * time.Minute)
	if _, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword}); err != nil {
		t.Fatalf("lockout should lapse: %v", err)
	}
}

func TestAuthenticateSuccessClearsFailures(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.addUser(t, "user-1", "alice")

	for round := 0; round < 2; round++ {
		for i := 0; i < 4; i++ {
			_, _ = env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: "nope-nope"})
		}
		if _, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword}); err != nil {
			t.Fatalf("round %d: login should still succeed: %v", round, err)
		}
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	env := newMemoryEnv(t)
	u := env.addUser(t, "user-1", "alice")
	u.Status = user.StatusBlocked
	env.repo.put(u)

	_, err := env.m.Authenticate(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestAuthenticateWithoutRepository(t *testing.T) {
	clock := newTestClock()
	m, err := New().WithConfig(testConfig()).WithCache(cache.NewMemory(clock.Now)).WithClock(clock.Now).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer m.Close()
	if _, err := m.Authenticate(context.Background(), LoginRequest{Identifier: "a", Password: "b"}); !errors.Is(err, ErrNoUserRepository) {
		t.Fatalf("expected ErrNoUserRepository, got %v", err)
	}
}

// enrollMFA runs setup and confirmation and stores the result on the user.
func enrollMFA(t *testing.T, env *testEnv, u *user.User) *mfa.Enrollment {
	t.Helper()
	ctx := context.Background()
	enrollment, err := env.m.SetupMFA(ctx, u)
	if err != nil {
		t.Fatalf("setup mfa: %v", err)
	}
	code, err := env.m.MFA().CurrentCode(enrollment.Secret)
	if err != nil {
		t.Fatalf("current code: %v", err)
	}
	secret, err := env.m.ConfirmMFASetup(ctx, u, code)
	if err != nil {
		t.Fatalf("confirm mfa: %v", err)
	}
	u.MFAEnabled = true
	u.MFASecret = secret
	env.repo.put(u)
	// Step past the confirmation code so the next one is fresh.
	env.clock.Advance(30 * time.Second)
	return enrollment
}

func TestAuthenticateRequiresMFAAndRejectsReplay(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "user-1", "alice")
	enrollMFA(t, env, u)

	_, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword})
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("expected ErrMFARequired, got %v", err)
	}

	code, err := env.m.MFA().CurrentCode(u.MFASecret)
	if err != nil {
		t.Fatalf("current code: %v", err)
	}
	res, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword, MFACode: code})
	if err != nil {
		t.Fatalf("login with mfa: %v", err)
	}
	claims, err := env.m.VerifyToken(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !claims.MFAVerified {
		t.Fatal("access token should record mfa verification")
	}

	_, err = env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword, MFACode: code})
	if !errors.Is(err, mfa.ErrCodeReplayed) || !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	if env.events.count(EventMFAReplay) != 1 {
		t.Fatalf("expected one replay event, got %d", env.events.count(EventMFAReplay))
	}
}

func TestAuthenticateWithBackupCode(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "user-1", "alice")
	enrollment := enrollMFA(t, env, u)

	code := enrollment.BackupCodes[0]
	if _, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword, MFACode: code}); err != nil {
		t.Fatalf("backup code login: %v", err)
	}
	left, err := env.m.BackupCodesRemaining(ctx, u.ID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if left != len(enrollment.BackupCodes)-1 {
		t.Fatalf("expected %d codes left, got %d", len(enrollment.BackupCodes)-1, left)
	}

	_, err = env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword, MFACode: code})
	if !errors.Is(err, ErrInvalidBackupCode) {
		t.Fatalf("reused backup code: expected ErrInvalidBackupCode, got %v", err)
	}
}

type fakeProvider struct {
	identity *ProviderIdentity
	err      error
}

func (p fakeProvider) Name() string { return "fake" }

func (p fakeProvider) Exchange(context.Context, string) (*ProviderIdentity, error) {
	return p.identity, p.err
}

func TestAuthenticateWithProvider(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.addUser(t, "user-1", "alice")

	res, err := env.m.AuthenticateWithProvider(ctx, ProviderLoginRequest{
		Provider: fakeProvider{identity: &ProviderIdentity{Subject: "g-1", Email: "alice@example.com", EmailVerified: true}},
		Code:     "auth-code",
		Request:  browser("10.0.0.2"),
	})
	if err != nil {
		t.Fatalf("provider login: %v", err)
	}
	claims, err := env.m.VerifyToken(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AuthProvider != "fake" {
		t.Fatalf("expected auth provider on claims, got %q", claims.AuthProvider)
	}

	cases := map[string]fakeProvider{
		"unverified": {identity: &ProviderIdentity{Email: "alice@example.com"}},
		"unknown":    {identity: &ProviderIdentity{Email: "bob@example.com", EmailVerified: true}},
		"exchange":   {err: errors.New("upstream down")},
	}
	for name, p := range cases {
		_, err := env.m.AuthenticateWithProvider(ctx, ProviderLoginRequest{Provider: p, Code: "x"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}
}

func TestLogoutRevokesTokenAndSession(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.addUser(t, "user-1", "alice")

	res, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.m.Logout(ctx, res.Tokens.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.m.VerifyToken(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrRevokedToken) {
		t.Fatalf("expected ErrRevokedToken after logout, got %v", err)
	}
	if _, err := env.m.GetSession(ctx, res.Session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := env.m.RefreshAccessToken(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("refresh after logout: expected ErrSessionNotFound, got %v", err)
	}
	if err := env.m.Logout(ctx, res.Tokens.AccessToken); err != nil {
		t.Fatalf("second logout should be a no-op: %v", err)
	}
}

func TestSuspiciousActivityIsAdvisory(t *testing.T) {
	env := newMemoryEnv(t, func(c *Config) { c.Device.MaxIPs = 1 })
	ctx := context.Background()
	env.addUser(t, "user-1", "alice")

	if _, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword, Request: browser("10.0.0.1")}); err != nil {
		t.Fatalf("first login: %v", err)
	}
	res, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword, Request: browser("192.168.7.7")})
	if err != nil {
		t.Fatalf("suspicious login must still succeed: %v", err)
	}
	if !res.Suspicious || res.SuspiciousReason == "" {
		t.Fatalf("expected suspicious verdict, got %+v", res)
	}
	if env.events.count(EventSuspiciousActivity) != 1 {
		t.Fatalf("expected one suspicious activity event")
	}
}

// deviceOutage fails every read of the device registry.
type deviceOutage struct {
	cache.Store
}

func (s deviceOutage) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.HasPrefix(key, "user_devices:") {
		return "", false, cache.ErrUnavailable
	}
	return s.Store.Get(ctx, key)
}

func TestDeviceRegistryOutageReportsNoDevice(t *testing.T) {
	clock := newTestClock()
	env := buildEnv(t, deviceOutage{cache.NewMemory(clock.Now)}, clock)
	ctx := context.Background()
	env.addUser(t, "user-1", "alice")

	res, err := env.m.Authenticate(ctx, LoginRequest{Identifier: "alice", Password: testPassword, Request: browser("10.0.0.1")})
	if err != nil {
		t.Fatalf("login must succeed while the registry is down: %v", err)
	}
	if res.NewDevice || res.DeviceAlert != "" {
		t.Fatalf("unconfirmed device reported as new: %+v", res)
	}
	if n := env.events.count(EventNewDevice); n != 0 {
		t.Fatalf("expected no new-device event, got %d", n)
	}
	if env.m.MetricsSnapshot().Counters[MetricDegradedCheck] == 0 {
		t.Fatal("degraded device check not counted")
	}
}
