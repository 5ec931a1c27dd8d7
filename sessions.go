package authguard

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/cache"
	"github.com/MrEthical07/authguard/session"
)

func mapSessionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return mapAs(ErrSessionNotFound, err)
	case errors.Is(err, cache.ErrUnavailable):
		return mapAs(ErrCacheUnavailable, err)
	default:
		return err
	}
}

// CreateSession starts a session for userID. DeviceID defaults to a hash of
// the user agent.
func (m *Manager) CreateSession(ctx context.Context, userID string, req RequestContext) (*session.Session, error) {
	req = normalizeRequest(req)
	sess, err := m.sessions.Create(ctx, userID, req)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	m.metricInc(MetricSessionCreated)
	m.events.LogSessionCreated(ctx, userID, sess.ID, req)
	return sess, nil
}

// GetSession returns an active session. Expired sessions are terminated on
// read and reported as ErrSessionNotFound.
func (m *Manager) GetSession(ctx context.Context, id string) (*session.Session, error) {
	sess, err := m.sessions.Get(ctx, id)
	return sess, mapSessionErr(err)
}

func (m *Manager) ExtendSession(ctx context.Context, id string, d time.Duration) (*session.Session, error) {
	if d <= 0 {
		d = m.config.Session.Expire
	}
	sess, err := m.sessions.Extend(ctx, id, d)
	return sess, mapSessionErr(err)
}

// TerminateSession ends one session. It reports false when the session was
// already gone.
func (m *Manager) TerminateSession(ctx context.Context, id string) (bool, error) {
	ok, err := m.sessions.Terminate(ctx, id)
	if err != nil {
		return false, mapSessionErr(err)
	}
	if ok {
		m.metricInc(MetricSessionTerminated)
		m.events.LogSessionTerminated(ctx, id, "terminated")
	}
	return ok, nil
}

// TerminateAllUserSessions ends every session of userID and returns how many
// were terminated. It is best effort: sessions terminated before a failure
// stay terminated and the failures are joined into the returned error.
func (m *Manager) TerminateAllUserSessions(ctx context.Context, userID string) (int, error) {
	n, err := m.sessions.TerminateAll(ctx, userID)
	for i := 0; i < n; i++ {
		m.metricInc(MetricSessionTerminated)
	}
	if n > 0 {
		m.events.LogSecurityEvent(ctx, EventSessionTerminated, userID, map[string]string{
			"reason": "terminate_all",
		})
	}
	if err != nil {
		m.log.Warn("terminate all sessions incomplete",
			zap.String("user_id", redact(userID)), zap.Int("terminated", n), zap.Error(err))
		return n, mapSessionErr(err)
	}
	return n, nil
}

func (m *Manager) ListUserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	list, err := m.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	return list, nil
}
