package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value     string
	set       map[string]struct{}
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

const (
	// sweepMinWrites is the floor on writes between full sweeps; the
	// threshold grows with the map.
	sweepMinWrites = 1024
	sweepInterval  = time.Minute
)

// Memory is a process-local [Store]. See the package documentation for the
// multi-instance caveat.
//
// Expired entries are dropped when read and by a sweep that runs on the
// write path every sweepInterval or after enough writes, whichever comes
// first, so write-once keys do not accumulate.
type Memory struct {
	mu        sync.Mutex
	data      map[string]*entry
	now       func() time.Time
	writes    int
	lastSweep time.Time
}

// NewMemory returns an empty store. now defaults to time.Now when nil.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{data: make(map[string]*entry), now: now, lastSweep: now()}
}

// wrote counts one write and sweeps when due. Callers hold m.mu.
func (m *Memory) wrote() {
	m.writes++
	now := m.now()
	if m.writes < max(sweepMinWrites, len(m.data)) && now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.sweep(now)
}

// sweep drops every expired entry. Callers hold m.mu.
func (m *Memory) sweep(now time.Time) {
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
		}
	}
	m.writes = 0
	m.lastSweep = now
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// lookup returns the live entry for key, dropping it when expired.
// Callers hold m.mu.
func (m *Memory) lookup(key string) *entry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if e.expired(m.now()) {
		delete(m.data, key)
		return nil
	}
	return e
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil || e.set != nil {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = &entry{value: value, expiresAt: m.deadline(ttl)}
	m.wrote()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookup(key) == nil {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(key) != nil, nil
}

func (m *Memory) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookup(key) != nil {
		return false, nil
	}
	m.data[key] = &entry{value: value, expiresAt: m.deadline(ttl)}
	m.wrote()
	return true, nil
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil {
		m.data[key] = &entry{value: "1", expiresAt: m.deadline(ttl)}
		m.wrote()
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil || e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(m.now()), nil
}

func (m *Memory) AddToSet(_ context.Context, key, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	switch {
	case e == nil || e.set == nil:
		e = &entry{set: make(map[string]struct{}), expiresAt: m.deadline(ttl)}
		m.data[key] = e
		m.wrote()
	case ttl > 0 && !e.expiresAt.IsZero():
		if d := m.deadline(ttl); d.After(e.expiresAt) {
			e.expiresAt = d
		}
	}
	e.set[member] = struct{}{}
	return nil
}

func (m *Memory) RemoveFromSet(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil || e.set == nil {
		return nil
	}
	delete(e.set, member)
	if len(e.set) == 0 {
		delete(m.data, key)
	}
	return nil
}

func (m *Memory) Members(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil || e.set == nil {
		return []string{}, nil
	}
	out := make([]string, 0, len(e.set))
	for member := range e.set {
		out = append(out, member)
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Shared() bool { return false }

// Len reports the number of live keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(m.now())
	return len(m.data)
}
