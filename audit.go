package credkit

import (
	"io"

	"github.com/MrEthical07/credkit/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one activity-log record: who did what to which subject, and
// whether it worked.
type AuditEvent = audit.Event

// AuditSink receives activity-log events. Emit must not block for long; the
// Engine already calls it from a background dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// ZapAuditSink logs events through zap.
type ZapAuditSink = audit.ZapSink

// MultiAuditSink fans events out to several sinks.
type MultiAuditSink = audit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	return audit.NewZapSink(logger)
}
