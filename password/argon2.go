package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash  = errors.New("invalid password hash")
	ErrTooShort     = errors.New("password too short")
	ErrWeakSettings = errors.New("argon2 settings below minimum")
)

const phcPrefix = "$argon2id$"

// Config carries the Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// DefaultConfig follows the OWASP baseline for Argon2id.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
}

// Validate rejects parameters too weak to be worth storing.
func (c Config) Validate() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("%w: memory must be >= 8192 KiB", ErrWeakSettings)
	case c.Time < 1:
		return fmt.Errorf("%w: time must be >= 1", ErrWeakSettings)
	case c.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be >= 1", ErrWeakSettings)
	case c.SaltLength < 16:
		return fmt.Errorf("%w: salt length must be >= 16", ErrWeakSettings)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: key length must be >= 16", ErrWeakSettings)
	case c.MinLength < 1:
		return fmt.Errorf("%w: minimum password length must be >= 1", ErrWeakSettings)
	}
	return nil
}

// Argon2 is safe for concurrent use.
type Argon2 struct {
	cfg   Config
	dummy string
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Argon2{cfg: cfg}
	dummy, err := a.hash(strings.Repeat("x", cfg.MinLength))
	if err != nil {
		return nil, err
	}
	a.dummy = dummy
	return a, nil
}

// Hash returns the PHC encoding of plain under the current parameters.
func (a *Argon2) Hash(plain string) (string, error) {
	if len(plain) < a.cfg.MinLength {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrTooShort, a.cfg.MinLength)
	}
	return a.hash(plain)
}

func (a *Argon2) hash(plain string) (string, error) {
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := params{memory: a.cfg.Memory, time: a.cfg.Time, threads: a.cfg.Parallelism}
	key := argon2.IDKey([]byte(plain), salt, p.time, p.memory, p.threads, a.cfg.KeyLength)
	return p.encode(salt, key), nil
}

// Verify reports whether plain matches encoded. A malformed hash is an
// error, a mismatch is not.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	p, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plain), salt, p.time, p.memory, p.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// Burn performs a verification against an internal hash and discards the
// result, so unknown accounts cost the same as wrong passwords.
func (a *Argon2) Burn(plain string) {
	_, _ = a.Verify(plain, a.dummy)
}

// NeedsRehash reports whether encoded was produced with weaker parameters.
func (a *Argon2) NeedsRehash(encoded string) (bool, error) {
	p, _, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.threads < a.cfg.Parallelism ||
		uint32(len(key)) != a.cfg.KeyLength, nil
}

type params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func (p params) encode(salt, key []byte) string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

func decode(encoded string) (params, []byte, []byte, error) {
	var p params
	if !strings.HasPrefix(encoded, phcPrefix) {
		return p, nil, nil, fmt.Errorf("%w: unsupported algorithm", ErrInvalidHash)
	}
	fields := strings.Split(strings.TrimPrefix(encoded, phcPrefix), "$")
	if len(fields) != 4 {
		return p, nil, nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrInvalidHash, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, fields[0])
	}
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: bad parameters: %v", ErrInvalidHash, err)
	}
	if p.memory < 8*1024 || p.time < 1 || p.threads < 1 {
		return p, nil, nil, fmt.Errorf("%w: parameters below minimum", ErrInvalidHash)
	}

	salt, err := decodeB64(fields[2])
	if err != nil || len(salt) < 16 {
		return p, nil, nil, fmt.Errorf("%w: bad salt", ErrInvalidHash)
	}
	key, err := decodeB64(fields[3])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: bad key", ErrInvalidHash)
	}
	return p, salt, key, nil
}

// decodeB64 accepts both padded and unpadded standard base64, since PHC
// strings from other encoders vary.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
