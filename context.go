package authguard

import (
	"context"

	"github.com/MrEthical07/authguard/internal"
	"github.com/MrEthical07/authguard/session"
)

// RequestContext carries the client attributes recorded on sessions, device
// checks and security events.
type RequestContext = session.RequestContext

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Operations that take
// no explicit RequestContext (refresh, logout, revocation) read it from here
// for security events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the client User-Agent to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func requestFromContext(ctx context.Context) RequestContext {
	if ctx == nil {
		return RequestContext{}
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	ua, _ := ctx.Value(userAgentContextKey{}).(string)
	return normalizeRequest(RequestContext{IPAddress: ip, UserAgent: ua})
}

// normalizeRequest fills DeviceID from the user agent when the caller did
// not supply one.
func normalizeRequest(req RequestContext) RequestContext {
	if req.DeviceID == "" {
		req.DeviceID = internal.DeviceID(req.UserAgent)
	}
	if req.DeviceInfo == "" {
		req.DeviceInfo = req.UserAgent
	}
	return req
}
