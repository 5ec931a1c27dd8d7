package authguard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/internal"
	"github.com/MrEthical07/authguard/internal/audit"
)

// Event types passed to SecurityEvents.LogSecurityEvent and carried in
// AuditEvent.Type.
const (
	EventLoginSuccess          = "login_success"
	EventLoginFailure          = "login_failure"
	EventSessionCreated        = "session_created"
	EventSessionTerminated     = "session_terminated"
	EventTokenRevoked          = "token_revoked"
	EventTokenRotation         = "token_rotation"
	EventRefreshRejected       = "refresh_rejected"
	EventRevocationCheckFailed = "revocation_check_failed"
	EventPasswordResetRequest  = "password_reset_requested"
	EventPasswordResetConsumed = "password_reset_consumed"
	EventMFASetupStarted       = "mfa_setup_started"
	EventMFAEnabled            = "mfa_enabled"
	EventMFADisabled           = "mfa_disabled"
	EventMFAFailure            = "mfa_failure"
	EventMFAReplay             = "mfa_replay"
	EventBackupCodeUsed        = "backup_code_used"
	EventBackupCodesRegen      = "backup_codes_regenerated"
	EventNewDevice             = "new_device"
	EventSuspiciousActivity    = "suspicious_activity"
	EventAccountLocked         = "account_locked"
	EventLogout                = "logout"
)

// SecurityEvents receives security-relevant notifications. Calls are fire
// and forget: the Manager ignores results and recovers panics, so an
// implementation can never fail a request.
type SecurityEvents interface {
	LogLoginAttempt(ctx context.Context, identifier string, success bool, req RequestContext, reason string)
	LogSessionCreated(ctx context.Context, userID, sessionID string, req RequestContext)
	LogSessionTerminated(ctx context.Context, sessionID, reason string)
	LogTokenRevoked(ctx context.Context, userID, tokenID, reason string)
	LogPasswordResetRequested(ctx context.Context, email string, req RequestContext)
	LogSecurityEvent(ctx context.Context, eventType, userID string, details map[string]string)
}

// AuditEvents turns SecurityEvents calls into AuditEvents and hands them to
// the async dispatcher. Identifiers are redacted before they leave the
// process.
type AuditEvents struct {
	dispatcher *audit.Dispatcher
	now        func() time.Time
}

func newAuditEvents(d *audit.Dispatcher, now func() time.Time) *AuditEvents {
	return &AuditEvents{dispatcher: d, now: now}
}

func (a *AuditEvents) emit(ctx context.Context, ev audit.Event) {
	if a == nil || a.dispatcher == nil {
		return
	}
	ev.Timestamp = a.now().UTC()
	a.dispatcher.Emit(ctx, ev)
}

func (a *AuditEvents) LogLoginAttempt(ctx context.Context, identifier string, success bool, req RequestContext, reason string) {
	typ := EventLoginFailure
	if success {
		typ = EventLoginSuccess
	}
	a.emit(ctx, audit.Event{
		Type:      typ,
		UserID:    redact(identifier),
		IP:        req.IPAddress,
		UserAgent: req.UserAgent,
		Success:   success,
		Reason:    reason,
	})
}

func (a *AuditEvents) LogSessionCreated(ctx context.Context, userID, sessionID string, req RequestContext) {
	a.emit(ctx, audit.Event{
		Type:      EventSessionCreated,
		UserID:    redact(userID),
		SessionID: redact(sessionID),
		IP:        req.IPAddress,
		UserAgent: req.UserAgent,
		Success:   true,
	})
}

func (a *AuditEvents) LogSessionTerminated(ctx context.Context, sessionID, reason string) {
	a.emit(ctx, audit.Event{
		Type:      EventSessionTerminated,
		SessionID: redact(sessionID),
		Success:   true,
		Reason:    reason,
	})
}

func (a *AuditEvents) LogTokenRevoked(ctx context.Context, userID, tokenID, reason string) {
	a.emit(ctx, audit.Event{
		Type:     EventTokenRevoked,
		UserID:   redact(userID),
		Success:  true,
		Reason:   reason,
		Metadata: map[string]string{"jti": redact(tokenID)},
	})
}

func (a *AuditEvents) LogPasswordResetRequested(ctx context.Context, email string, req RequestContext) {
	a.emit(ctx, audit.Event{
		Type:    EventPasswordResetRequest,
		UserID:  redact(email),
		IP:      req.IPAddress,
		Success: true,
	})
}

func (a *AuditEvents) LogSecurityEvent(ctx context.Context, eventType, userID string, details map[string]string) {
	a.emit(ctx, audit.Event{
		Type:     eventType,
		UserID:   redact(userID),
		Success:  details["outcome"] != "failure",
		Reason:   details["reason"],
		Metadata: details,
	})
}

// safeEvents shields callers from a misbehaving SecurityEvents.
type safeEvents struct {
	next SecurityEvents
	log  *zap.Logger
}

func (s safeEvents) guard(call string) {
	if r := recover(); r != nil {
		s.log.Error("security event sink panicked", zap.String("call", call), zap.Any("panic", r))
	}
}

func (s safeEvents) LogLoginAttempt(ctx context.Context, identifier string, success bool, req RequestContext, reason string) {
	if s.next == nil {
		return
	}
	defer s.guard("LogLoginAttempt")
	s.next.LogLoginAttempt(ctx, identifier, success, req, reason)
}

func (s safeEvents) LogSessionCreated(ctx context.Context, userID, sessionID string, req RequestContext) {
	if s.next == nil {
		return
	}
	defer s.guard("LogSessionCreated")
	s.next.LogSessionCreated(ctx, userID, sessionID, req)
}

func (s safeEvents) LogSessionTerminated(ctx context.Context, sessionID, reason string) {
	if s.next == nil {
		return
	}
	defer s.guard("LogSessionTerminated")
	s.next.LogSessionTerminated(ctx, sessionID, reason)
}

func (s safeEvents) LogTokenRevoked(ctx context.Context, userID, tokenID, reason string) {
	if s.next == nil {
		return
	}
	defer s.guard("LogTokenRevoked")
	s.next.LogTokenRevoked(ctx, userID, tokenID, reason)
}

func (s safeEvents) LogPasswordResetRequested(ctx context.Context, email string, req RequestContext) {
	if s.next == nil {
		return
	}
	defer s.guard("LogPasswordResetRequested")
	s.next.LogPasswordResetRequested(ctx, email, req)
}

func (s safeEvents) LogSecurityEvent(ctx context.Context, eventType, userID string, details map[string]string) {
	if s.next == nil {
		return
	}
	defer s.guard("LogSecurityEvent")
	s.next.LogSecurityEvent(ctx, eventType, userID, details)
}

func redact(id string) string {
	return internal.Redact(id)
}
