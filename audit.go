package authguard

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authguard/internal/audit"
)

// AuditEvent is the record delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink consumes security events off the dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	ZapSink        = audit.ZapSink
	FanoutSink     = audit.FanoutSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink logs events under the "security" logger name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return audit.NewZapSink(logger)
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, now func() time.Time) *audit.Dispatcher {
	return audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
		Now:        now,
	}, sink)
}
