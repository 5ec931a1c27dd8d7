// Package device keeps a per-user registry of recently seen devices and a
// rolling log of login attempts, and turns both into advisory signals.
//
// Nothing here blocks authentication. When the cache fails the tracker
// reports Degraded and lets the login through; the failure is logged.
//
// Registry and log updates are read-modify-write without locking. Two
// concurrent logins of the same user may drop one entry from the log, which
// only makes the heuristics slightly less sensitive.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/internal"
)

// Config holds the registry limits and anomaly thresholds.
type Config struct {
	MaxDevices  int
	RegistryTTL time.Duration

	LogSize int
	LogTTL  time.Duration
	Window  time.Duration

	MaxAttempts      int
	MaxIPs           int
	MaxRecentDevices int
	MaxDevicesPerIP  int

	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxDevices:       10,
		RegistryTTL:      90 * 24 * time.Hour,
		LogSize:          100,
		LogTTL:           24 * time.Hour,
		Window:           time.Hour,
		MaxAttempts:      10,
		MaxIPs:           5,
		MaxRecentDevices: 3,
		MaxDevicesPerIP:  3,
	}
}

// Device is one registry entry.
type Device struct {
	ID        string    `json:"id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	LastIP    string    `json:"last_ip"`
}

// Attempt is one entry of the rolling login log.
type Attempt struct {
	At       time.Time `json:"at"`
	IP       string    `json:"ip"`
	DeviceID string    `json:"device_id"`
}

// Result of ValidateDevice. When Degraded is set the registry could not be
// used and Known is only true if it was confirmed before the failure.
type Result struct {
	Known    bool
	Alert    string
	Degraded bool
}

// Verdict of DetectSuspicious.
type Verdict struct {
	Suspicious bool
	Reason     string
	Degraded   bool
}

// Tracker is safe for concurrent use.
type Tracker struct {
	store cache.Store
	cfg   Config
	log   *zap.Logger
}

func NewTracker(store cache.Store, cfg Config, logger *zap.Logger) *Tracker {
	d := DefaultConfig()
	if cfg.MaxDevices <= 0 {
		cfg.MaxDevices = d.MaxDevices
	}
	if cfg.RegistryTTL <= 0 {
		cfg.RegistryTTL = d.RegistryTTL
	}
	if cfg.LogSize <= 0 {
		cfg.LogSize = d.LogSize
	}
	if cfg.LogTTL <= 0 {
		cfg.LogTTL = d.LogTTL
	}
	if cfg.Window <= 0 {
		cfg.Window = d.Window
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.MaxIPs <= 0 {
		cfg.MaxIPs = d.MaxIPs
	}
	if cfg.MaxRecentDevices <= 0 {
		cfg.MaxRecentDevices = d.MaxRecentDevices
	}
	if cfg.MaxDevicesPerIP <= 0 {
		cfg.MaxDevicesPerIP = d.MaxDevicesPerIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, cfg: cfg, log: logger.Named("device")}
}

func registryKey(userID string) string { return "user_devices:" + userID }
func attemptsKey(userID string) string { return "login_attempts:" + userID }

// ValidateDevice records deviceID as seen from ip and reports whether it was
// already known. Unknown devices produce an alert message.
func (t *Tracker) ValidateDevice(ctx context.Context, userID, deviceID, ip string) Result {
	if deviceID == "" {
		return Result{Known: false, Alert: "login from an unidentified device"}
	}
	devices, err := t.KnownDevices(ctx, userID)
	if err != nil {
		t.degraded("device registry read failed", userID, err)
		return Result{Degraded: true}
	}

	now := t.cfg.Now()
	known := false
	for i := range devices {
		if devices[i].ID == deviceID {
			devices[i].LastSeen = now
			devices[i].LastIP = ip
			known = true
			break
		}
	}
	if !known {
		devices = append(devices, Device{ID: deviceID, FirstSeen: now, LastSeen: now, LastIP: ip})
	}

	// Most recent first; evict the stalest beyond the limit.
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].LastSeen.After(devices[j].LastSeen) })
	if len(devices) > t.cfg.MaxDevices {
		devices = devices[:t.cfg.MaxDevices]
	}

	if err := t.save(ctx, registryKey(userID), devices, t.cfg.RegistryTTL); err != nil {
		t.degraded("device registry write failed", userID, err)
		return Result{Known: known, Degraded: true}
	}
	if known {
		return Result{Known: true}
	}
	t.log.Info("new device for user",
		zap.String("user_id", internal.Redact(userID)),
		zap.String("device_id", internal.Redact(deviceID)))
	return Result{Alert: fmt.Sprintf("new device login from %s", ip)}
}

// DetectSuspicious appends the attempt to the rolling log and evaluates the
// last Window of it.
func (t *Tracker) DetectSuspicious(ctx context.Context, userID, ip, deviceID string) Verdict {
	var attempts []Attempt
	if err := t.load(ctx, attemptsKey(userID), &attempts); err != nil {
		t.degraded("attempt log read failed", userID, err)
		return Verdict{Degraded: true}
	}

	now := t.cfg.Now()
	attempts = append(attempts, Attempt{At: now, IP: ip, DeviceID: deviceID})
	if len(attempts) > t.cfg.LogSize {
		attempts = attempts[len(attempts)-t.cfg.LogSize:]
	}

	degraded := false
	if err := t.save(ctx, attemptsKey(userID), attempts, t.cfg.LogTTL); err != nil {
		t.degraded("attempt log write failed", userID, err)
		degraded = true
	}

	v := t.evaluate(attempts, now)
	v.Degraded = degraded
	if v.Suspicious {
		t.log.Warn("suspicious login activity",
			zap.String("user_id", internal.Redact(userID)),
			zap.String("reason", v.Reason))
	}
	return v
}

func (t *Tracker) evaluate(attempts []Attempt, now time.Time) Verdict {
	cutoff := now.Add(-t.cfg.Window)
	count := 0
	ips := map[string]struct{}{}
	devices := map[string]struct{}{}
	perIP := map[string]map[string]struct{}{}

	for _, a := range attempts {
		if a.At.Before(cutoff) {
			continue
		}
		count++
		if a.IP != "" {
			ips[a.IP] = struct{}{}
		}
		if a.DeviceID != "" {
			devices[a.DeviceID] = struct{}{}
			if perIP[a.IP] == nil {
				perIP[a.IP] = map[string]struct{}{}
			}
			perIP[a.IP][a.DeviceID] = struct{}{}
		}
	}

	switch {
	case count > t.cfg.MaxAttempts:
		return Verdict{Suspicious: true, Reason: fmt.Sprintf("%d login attempts in the last %s", count, t.cfg.Window)}
	case len(ips) > t.cfg.MaxIPs:
		return Verdict{Suspicious: true, Reason: fmt.Sprintf("logins from %d different IP addresses", len(ips))}
	case len(devices) > t.cfg.MaxRecentDevices:
		return Verdict{Suspicious: true, Reason: fmt.Sprintf("logins from %d different devices", len(devices))}
	}
	for ip, ds := range perIP {
		if len(ds) > t.cfg.MaxDevicesPerIP {
			return Verdict{Suspicious: true, Reason: fmt.Sprintf("%d devices sharing IP %s", len(ds), ip)}
		}
	}
	return Verdict{}
}

// KnownDevices returns the registry, most recently seen first.
func (t *Tracker) KnownDevices(ctx context.Context, userID string) ([]Device, error) {
	var devices []Device
	if err := t.load(ctx, registryKey(userID), &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ForgetDevice removes deviceID from the registry so its next login alerts
// again.
func (t *Tracker) ForgetDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	devices, err := t.KnownDevices(ctx, userID)
	if err != nil {
		return false, err
	}
	kept := devices[:0]
	removed := false
	for _, d := range devices {
		if d.ID == deviceID {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	if !removed {
		return false, nil
	}
	if len(kept) == 0 {
		_, err = t.store.Delete(ctx, registryKey(userID))
		return true, err
	}
	return true, t.save(ctx, registryKey(userID), kept, t.cfg.RegistryTTL)
}

func (t *Tracker) load(ctx context.Context, key string, into any) error {
	raw, ok, err := t.store.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		// A corrupt entry is rebuilt from scratch rather than blocking logins.
		t.log.Warn("discarding corrupt device record", zap.String("key", internal.Redact(key)), zap.Error(err))
	}
	return nil
}

func (t *Tracker) save(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.store.Set(ctx, key, string(data), ttl)
}

func (t *Tracker) degraded(msg, userID string, err error) {
	t.log.Error(msg+", allowing login",
		zap.String("user_id", internal.Redact(userID)),
		zap.Error(err))
}
