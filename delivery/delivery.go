// Package delivery defines how one-time codes leave the process.
//
// The Engine hands each freshly issued code to a [Channel]. Transports (mail,
// SMS, a message bus) live behind that interface; this package ships an
// in-memory channel, a zap-logging channel for development, and an adapter
// for plain functions.
package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is a generic "could not reach the transport" error that
// channels may wrap.
var ErrUnavailable = errors.New("delivery channel unavailable")

// Message is one code to deliver.
type Message struct {
	UserID    string
	CodeID    string
	Code      string
	ExpiresAt time.Time
}

// Channel sends codes to their owner.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// Func adapts a function to [Channel].
type Func func(ctx context.Context, msg Message) error

func (f Func) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// LogChannel writes each message to a zap logger. The code is masked unless
// Reveal is set, which is only appropriate for local development.
type LogChannel struct {
	logger *zap.Logger
	Reveal bool
}

func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger.Named("delivery")}
}

func (c *LogChannel) Send(_ context.Context, msg Message) error {
	code := Mask(msg.Code)
	if c.Reveal {
		code = msg.Code
	}
	c.logger.Info("one-time code issued",
		zap.String("user_id", msg.UserID),
		zap.String("code_id", msg.CodeID),
		zap.String("code", code),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}

// Mask keeps the last two characters of code.
func Mask(code string) string {
	if len(code) <= 2 {
		return strings.Repeat("*", len(code))
	}
	return strings.Repeat("*", len(code)-2) + code[len(code)-2:]
}

// Memory records the latest message per user. Tests and the load-test tool
// use it to read codes back.
type Memory struct {
	mu   sync.Mutex
	last map[string]Message
	err  error
	sent int
}

func NewMemory() *Memory {
	return &Memory{last: make(map[string]Message)}
}

func (m *Memory) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.last[msg.UserID] = msg
	m.sent++
	return nil
}

// Last returns the most recent message for userID.
func (m *Memory) Last(userID string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.last[userID]
	return msg, ok
}

// Sent returns how many messages were accepted.
func (m *Memory) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// FailWith makes subsequent sends return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
