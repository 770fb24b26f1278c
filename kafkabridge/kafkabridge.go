// Package kafkabridge publishes credkit activity events and one-time codes
// to Kafka as CloudEvents JSON.
package kafkabridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	specVersion = "1.0"
	contentType = "application/json"

	defaultSource       = "credkit"
	defaultWriteTimeout = 10 * time.Second
)

// Writer is the subset of *kafka.Writer the bridge uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CloudEvent is the envelope written to every topic.
type CloudEvent struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	SpecVersion string          `json:"specversion"`
	Type        string          `json:"type"`
	Time        time.Time       `json:"time"`
	Subject     string          `json:"subject,omitempty"`
	ContentType string          `json:"datacontenttype"`
	Data        json.RawMessage `json:"data"`
}

// NewWriter returns a synchronous writer that waits for all in-sync replicas.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

type publisher struct {
	writer  Writer
	topic   string
	source  string
	timeout time.Duration
	now     func() time.Time
}

func newPublisher(w Writer, topic string, opts []Option) publisher {
	p := publisher{
		writer:  w,
		topic:   topic,
		source:  defaultSource,
		timeout: defaultWriteTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Option customizes a sink or channel.
type Option func(*publisher)

// WithSource sets the CloudEvents source attribute.
func WithSource(source string) Option {
	return func(p *publisher) {
		if source != "" {
			p.source = source
		}
	}
}

// WithWriteTimeout bounds each write.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func (p publisher) publish(ctx context.Context, eventType, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := CloudEvent{
		ID:          uuid.NewString(),
		Source:      p.source,
		SpecVersion: specVersion,
		Type:        eventType,
		Time:        p.now().UTC(),
		Subject:     subject,
		ContentType: contentType,
		Data:        payload,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(subject),
		Value: value,
		Time:  event.Time,
		Headers: []kafka.Header{
			{Key: "ce_id", Value: []byte(event.ID)},
			{Key: "ce_type", Value: []byte(event.Type)},
			{Key: "ce_source", Value: []byte(event.Source)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", eventType, p.topic, err)
	}
	return nil
}
