package kafkabridge

import (
	"context"

	"github.com/MrEthical07/credkit"
	"go.uber.org/zap"
)

// AuditEventType prefixes the CloudEvents type of activity events; the
// credkit action is appended.
const AuditEventType = "credkit.audit."

// AuditSink publishes activity events. Failures are logged and dropped; the
// dispatcher that calls Emit never sees them.
type AuditSink struct {
	pub    publisher
	logger *zap.Logger
}

var _ credkit.AuditSink = (*AuditSink)(nil)

func NewAuditSink(w Writer, topic string, logger *zap.Logger, opts ...Option) *AuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditSink{
		pub:    newPublisher(w, topic, opts),
		logger: logger,
	}
}

// Emit publishes event keyed by its subject so events about one credential
// stay ordered within a partition.
func (s *AuditSink) Emit(ctx context.Context, event credkit.AuditEvent) {
	subject := event.SubjectID
	if subject == "" {
		subject = event.ActorID
	}
	if err := s.pub.publish(ctx, AuditEventType+event.Action, subject, event); err != nil {
		s.logger.Warn("audit event publish failed",
			zap.String("action", event.Action),
			zap.String("topic", s.pub.topic),
			zap.Error(err),
		)
	}
}
