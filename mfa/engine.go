package mfa

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/internal"
	"github.com/MrEthical07/authguard/internal/limiters"
	"github.com/MrEthical07/authguard/user"
)

var (
	ErrMFANotEnabled     = errors.New("mfa not enabled")
	ErrRateLimited       = errors.New("too many mfa attempts")
	ErrInvalidMFACode    = errors.New("invalid mfa code")
	ErrCodeReplayed      = errors.New("mfa code already used")
	ErrInvalidBackupCode = errors.New("invalid backup code")
	ErrNoPendingSetup    = errors.New("no pending mfa setup")
	ErrUnavailable       = errors.New("mfa backend unavailable")
)

const (
	secretSize = 20
	qrSize     = 256
)

// Config tunes the engine. Zero fields take the defaults from DefaultConfig.
type Config struct {
	Issuer           string
	Period           time.Duration
	Skew             uint
	BackupCodeCount  int
	BackupCodeLength int
	SetupTTL         time.Duration
	BackupCodeTTL    time.Duration
	ReplayTTL        time.Duration
	MaxAttempts      int
	AttemptWindow    time.Duration
	Now              func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Issuer:           "authguard",
		Period:           30 * time.Second,
		Skew:             1,
		BackupCodeCount:  10,
		BackupCodeLength: 8,
		SetupTTL:         time.Hour,
		BackupCodeTTL:    365 * 24 * time.Hour,
		ReplayTTL:        90 * time.Second,
		MaxAttempts:      5,
		AttemptWindow:    15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Issuer == "" {
		c.Issuer = d.Issuer
	}
	if c.Period <= 0 {
		c.Period = d.Period
	}
	if c.BackupCodeCount <= 0 {
		c.BackupCodeCount = d.BackupCodeCount
	}
	if c.BackupCodeLength <= 0 {
		c.BackupCodeLength = d.BackupCodeLength
	}
	if c.SetupTTL <= 0 {
		c.SetupTTL = d.SetupTTL
	}
	if c.BackupCodeTTL <= 0 {
		c.BackupCodeTTL = d.BackupCodeTTL
	}
	// Replay markers outlive the acceptance window: the code's own step plus
	// Skew steps on either side.
	if floor := time.Duration(2*c.Skew+1) * c.Period; c.ReplayTTL < floor {
		c.ReplayTTL = floor
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = d.AttemptWindow
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Enrollment is returned by Setup. Secret and BackupCodes are shown to the
// user once and never logged.
type Enrollment struct {
	Secret      string
	URI         string
	QRCode      string
	BackupCodes []string
}

type pendingSetup struct {
	Secret      string    `json:"secret"`
	BackupCodes []string  `json:"backup_codes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg      Config
	store    cache.Store
	attempts *limiters.AttemptLimiter
	replay   *limiters.ReplayGuard
	backup   *limiters.ReplayGuard
	log      *zap.Logger
}

func New(store cache.Store, cfg Config, logger *zap.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:   cfg,
		store: store,
		attempts: limiters.NewAttemptLimiter(store, limiters.AttemptConfig{
			Prefix:      "mfa_attempts",
			MaxAttempts: cfg.MaxAttempts,
			Window:      cfg.AttemptWindow,
		}),
		replay: limiters.NewReplayGuard(store, "mfa_used", cfg.ReplayTTL),
		backup: limiters.NewReplayGuard(store, "mfa_backup_used", cfg.BackupCodeTTL),
		log:    logger.Named("mfa"),
	}
}

func setupKey(userID string) string  { return "mfa_setup:" + userID }
func backupKey(userID string) string { return "mfa_backup_codes:" + userID }

func (e *Engine) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(e.cfg.Period / time.Second),
		Skew:      e.cfg.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateSecret returns a fresh base32 TOTP secret.
func (e *Engine) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.cfg.Issuer,
		AccountName: "pending",
		Period:      uint(e.cfg.Period / time.Second),
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// ProvisioningURI builds the otpauth:// URI authenticator apps import.
func (e *Engine) ProvisioningURI(accountName, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", e.cfg.Issuer)
	v.Set("period", strconv.Itoa(int(e.cfg.Period/time.Second)))
	v.Set("digits", "6")
	v.Set("algorithm", "SHA1")
	label := url.PathEscape(e.cfg.Issuer + ":" + accountName)
	return "otpauth://totp/" + label + "?" + v.Encode()
}

// GenerateQR renders the provisioning URI as a PNG data URI.
func (e *Engine) GenerateQR(accountName, secret string) (string, error) {
	key, err := otp.NewKeyFromURL(e.ProvisioningURI(accountName, secret))
	if err != nil {
		return "", err
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// GenerateBackupCodes returns n codes drawn from the unambiguous alphabet.
func (e *Engine) GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		code, err := internal.RandomString(e.cfg.BackupCodeLength, internal.BackupCodeAlphabet)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Setup stages a new secret and backup codes for u. Nothing becomes active
// until VerifySetup succeeds.
func (e *Engine) Setup(ctx context.Context, u *user.User) (*Enrollment, error) {
	secret, err := e.GenerateSecret()
	if err != nil {
		return nil, err
	}
	account := u.Email
	if account == "" {
		account = u.Username
	}
	qr, err := e.GenerateQR(account, secret)
	if err != nil {
		return nil, err
	}
	codes, err := e.GenerateBackupCodes(e.cfg.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	pending := pendingSetup{Secret: secret, CreatedAt: e.cfg.Now()}
	for _, c := range codes {
		pending.BackupCodes = append(pending.BackupCodes, backupCodeHash(u.ID, c))
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return nil, err
	}
	if err := e.store.Set(ctx, setupKey(u.ID), string(data), e.cfg.SetupTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.log.Info("mfa setup staged", zap.String("user_id", internal.Redact(u.ID)))
	return &Enrollment{
		Secret:      secret,
		URI:         e.ProvisioningURI(account, secret),
		QRCode:      qr,
		BackupCodes: formatBackupCodes(codes),
	}, nil
}

// VerifySetup confirms a pending enrollment with a code from the user's
// authenticator. On success the backup codes become active and the secret is
// returned for the caller to persist on the user record.
func (e *Engine) VerifySetup(ctx context.Context, u *user.User, code string) (string, error) {
	raw, ok, err := e.store.Get(ctx, setupKey(u.ID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return "", ErrNoPendingSetup
	}
	var pending pendingSetup
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return "", fmt.Errorf("%w: corrupt setup record: %v", ErrUnavailable, err)
	}

	if err := e.checkLimit(ctx, u.ID); err != nil {
		return "", err
	}
	if !e.validate(code, pending.Secret) {
		return "", e.fail(ctx, u.ID, ErrInvalidMFACode)
	}
	if _, err := e.claimCode(ctx, u.ID, code); err != nil {
		return "", err
	}

	if err := e.storeBackupCodes(ctx, u.ID, pending.BackupCodes); err != nil {
		return "", err
	}
	if _, err := e.store.Delete(ctx, setupKey(u.ID)); err != nil {
		e.log.Warn("mfa pending setup cleanup failed", zap.String("user_id", internal.Redact(u.ID)), zap.Error(err))
	}
	_ = e.attempts.Reset(ctx, u.ID)
	return pending.Secret, nil
}

// VerifyToken checks a TOTP code for an enrolled user.
func (e *Engine) VerifyToken(ctx context.Context, u *user.User, code string) error {
	if !u.MFAEnabled || u.MFASecret == "" {
		return ErrMFANotEnabled
	}
	if err := e.checkLimit(ctx, u.ID); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !e.validate(code, u.MFASecret) {
		return e.fail(ctx, u.ID, ErrInvalidMFACode)
	}
	fresh, err := e.claimCode(ctx, u.ID, code)
	if err != nil {
		return err
	}
	if !fresh {
		e.log.Warn("mfa code replay rejected", zap.String("user_id", internal.Redact(u.ID)))
		return e.fail(ctx, u.ID, ErrCodeReplayed)
	}
	_ = e.attempts.Reset(ctx, u.ID)
	return nil
}

// VerifyBackupCode consumes one backup code. Formatting (case, dashes,
// spaces) is ignored.
func (e *Engine) VerifyBackupCode(ctx context.Context, u *user.User, code string) error {
	if err := e.checkLimit(ctx, u.ID); err != nil {
		return err
	}
	canonical := canonicalBackupCode(code)
	if canonical == "" {
		return e.fail(ctx, u.ID, ErrInvalidBackupCode)
	}

	hashes, err := e.loadBackupCodes(ctx, u.ID)
	if err != nil {
		return err
	}
	want := backupCodeHash(u.ID, canonical)
	found := false
	for _, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(want)) == 1 {
			found = true
		}
	}
	if !found {
		return e.fail(ctx, u.ID, ErrInvalidBackupCode)
	}

	claimed, err := e.backup.Claim(ctx, u.ID, want)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !claimed {
		return e.fail(ctx, u.ID, ErrInvalidBackupCode)
	}

	if err := e.store.RemoveFromSet(ctx, backupKey(u.ID), want); err != nil {
		// The claim marker already blocks reuse.
		e.log.Error("backup code removal failed", zap.String("user_id", internal.Redact(u.ID)), zap.Error(err))
	}
	_ = e.attempts.Reset(ctx, u.ID)
	e.log.Info("backup code consumed", zap.String("user_id", internal.Redact(u.ID)))
	return nil
}

// RegenerateBackupCodes replaces the active backup codes of an enrolled user.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, u *user.User) ([]string, error) {
	if !u.MFAEnabled {
		return nil, ErrMFANotEnabled
	}
	codes, err := e.GenerateBackupCodes(e.cfg.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		hashes = append(hashes, backupCodeHash(u.ID, c))
	}
	if err := e.storeBackupCodes(ctx, u.ID, hashes); err != nil {
		return nil, err
	}
	return formatBackupCodes(codes), nil
}

// RemainingBackupCodes reports how many unused backup codes userID has.
func (e *Engine) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	hashes, err := e.loadBackupCodes(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(hashes), nil
}

// Disable drops pending setup, backup codes and attempt counters. Clearing
// the secret on the user record is the caller's job.
func (e *Engine) Disable(ctx context.Context, userID string) error {
	var errs []error
	for _, k := range []string{setupKey(userID), backupKey(userID)} {
		if _, err := e.store.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.attempts.Reset(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.log.Info("mfa disabled", zap.String("user_id", internal.Redact(userID)))
	return nil
}

// CurrentCode returns the code for secret at the engine's current time.
// Used by tooling and tests.
func (e *Engine) CurrentCode(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, e.cfg.Now(), e.validateOpts())
}

func (e *Engine) validate(code, secret string) bool {
	if len(code) != 6 || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.cfg.Now(), e.validateOpts())
	return err == nil && ok
}

func (e *Engine) claimCode(ctx context.Context, userID, code string) (bool, error) {
	fresh, err := e.replay.Claim(ctx, userID, code)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fresh, nil
}

func (e *Engine) checkLimit(ctx context.Context, userID string) error {
	if err := e.attempts.Check(ctx, userID); err != nil {
		if errors.Is(err, limiters.ErrLimited) {
			return ErrRateLimited
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// fail records a failed attempt and returns cause.
func (e *Engine) fail(ctx context.Context, userID string, cause error) error {
	limited, err := e.attempts.RecordFailure(ctx, userID)
	if err != nil {
		e.log.Warn("mfa attempt counter unavailable", zap.String("user_id", internal.Redact(userID)), zap.Error(err))
	}
	if limited {
		e.log.Warn("mfa attempts exhausted", zap.String("user_id", internal.Redact(userID)))
	}
	return cause
}

func (e *Engine) loadBackupCodes(ctx context.Context, userID string) ([]string, error) {
	hashes, err := e.store.Members(ctx, backupKey(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return hashes, nil
}

// storeBackupCodes replaces the active set. Each hash is its own set member
// so concurrent consumption removes codes independently.
func (e *Engine) storeBackupCodes(ctx context.Context, userID string, hashes []string) error {
	key := backupKey(userID)
	if _, err := e.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, h := range hashes {
		if err := e.store.AddToSet(ctx, key, h, e.cfg.BackupCodeTTL); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}
