package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authguard/internal"
)

var (
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// Token kinds carried in the typ claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

const minSecretLen = 32

// Claims is the wire shape of both token kinds. exp and iat serialise as
// integer Unix seconds.
type Claims struct {
	Email        string `json:"email"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	Status       string `json:"status"`
	SessionID    string `json:"session_id,omitempty"`
	MFAVerified  bool   `json:"mfa_verified"`
	AuthProvider string `json:"auth_provider,omitempty"`
	Type         string `json:"typ"`
	jwt.RegisteredClaims
}

// Remaining reports how long the token stays valid at now. Zero or negative
// means expired.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
	// Now overrides the wall clock; tests use it to simulate time.
	Now func() time.Time
}

// Codec signs and verifies tokens. It is safe for concurrent use.
type Codec struct {
	cfg Config
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) < minSecretLen {
		return nil, fmt.Errorf("access secret must be at least %d bytes", minSecretLen)
	}
	if len(cfg.RefreshSecret) < minSecretLen {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", minSecretLen)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Codec{cfg: cfg}, nil
}

// NewTokenID returns a fresh jti: 16 random bytes, base64url.
func NewTokenID() (string, error) {
	return internal.RandomToken(16)
}

func (c *Codec) EncodeAccess(claims Claims, ttl time.Duration) (string, error) {
	return c.encode(claims, TypeAccess, ttl)
}

func (c *Codec) EncodeRefresh(claims Claims, ttl time.Duration) (string, error) {
	return c.encode(claims, TypeRefresh, ttl)
}

func (c *Codec) encode(claims Claims, typ string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	now := c.cfg.Now()
	claims.Type = typ
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if c.cfg.Issuer != "" {
		claims.Issuer = c.cfg.Issuer
	}
	if claims.ID == "" {
		id, err := NewTokenID()
		if err != nil {
			return "", err
		}
		claims.ID = id
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret(typ))
}

func (c *Codec) DecodeAccess(token string) (*Claims, error) {
	return c.decode(token, TypeAccess, true)
}

func (c *Codec) DecodeRefresh(token string) (*Claims, error) {
	return c.decode(token, TypeRefresh, true)
}

// Inspect verifies the signature of either token kind but skips time-based
// claims, so callers can read the expiry of a token that may already be
// expired.
func (c *Codec) Inspect(token string) (*Claims, error) {
	return c.decode(token, "", false)
}

func (c *Codec) secret(typ string) []byte {
	if typ == TypeRefresh {
		return c.cfg.RefreshSecret
	}
	return c.cfg.AccessSecret
}

func (c *Codec) decode(tokenStr, want string, validate bool) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformed
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.cfg.Now),
	}
	if validate {
		opts = append(opts, jwt.WithExpirationRequired())
		if c.cfg.Leeway > 0 {
			opts = append(opts, jwt.WithLeeway(c.cfg.Leeway))
		}
		if c.cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
		}
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		parsed, ok := t.Claims.(*Claims)
		if !ok {
			return nil, errors.New("unexpected claims type")
		}
		switch parsed.Type {
		case TypeAccess, TypeRefresh:
		default:
			return nil, fmt.Errorf("unknown token type %q", parsed.Type)
		}
		if want != "" && parsed.Type != want {
			return nil, fmt.Errorf("expected %s token, got %s", want, parsed.Type)
		}
		return c.secret(parsed.Type), nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
