package password

import (
	"errors"
	"strings"
	"testing"
)

// cheapConfig keeps tests fast while staying above the minimums.
func cheapConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32, MinLength: 8}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(cheapConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("correct horse", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed: %v %v", ok, err)
	}
	ok, err = hasher.Verify("wrong horse!", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch without error: %v %v", ok, err)
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	hasher, err := NewArgon2(cheapConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	if _, err := hasher.Hash("short"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	hasher, err := NewArgon2(cheapConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	for _, bad := range []string{
		"",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA",
	} {
		if _, err := hasher.Verify("whatever-pass", bad); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("%q: expected ErrInvalidHash, got %v", bad, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, err := NewArgon2(cheapConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	hash, err := weak.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := cheapConfig()
	stronger.Time = 2
	strong, err := NewArgon2(stronger)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	if need, err := weak.NeedsRehash(hash); err != nil || need {
		t.Fatalf("same parameters must not need rehash: %v %v", need, err)
	}
	if need, err := strong.NeedsRehash(hash); err != nil || !need {
		t.Fatalf("stronger parameters must need rehash: %v %v", need, err)
	}
	// Old hashes stay verifiable after an upgrade.
	if ok, err := strong.Verify("correct horse", hash); err != nil || !ok {
		t.Fatalf("upgrade broke verification: %v %v", ok, err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := cheapConfig()
	cfg.SaltLength = 8
	if _, err := NewArgon2(cfg); !errors.Is(err, ErrWeakSettings) {
		t.Fatalf("expected ErrWeakSettings, got %v", err)
	}
}
