package credkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/credkit/delivery"
	"github.com/MrEthical07/credkit/hashing"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	delivery *delivery.Memory
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Hashing = hashing.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	return cfg
}

func newTestEnv(t *testing.T, cfg Config, sink AuditSink) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	mem := delivery.NewMemory()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDelivery(mem).
		WithLogger(zaptest.NewLogger(t)).
		WithClock(clock.Now)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testEnv{
		engine:   engine,
		mr:       mr,
		rdb:      rdb,
		clock:    clock,
		delivery: mem,
	}
}

func userCtx(userID string) context.Context {
	return WithIdentity(context.Background(), Identity{UserID: userID, Role: "member"})
}

func adminCtx(userID string) context.Context {
	return WithIdentity(context.Background(), Identity{UserID: userID, Role: "admin"})
}

func requireKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if ce.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, ce.Kind, err)
	}
	return ce
}

// sentCode sends a code for userID and returns the plaintext the channel saw.
func (env *testEnv) sentCode(t *testing.T, userID string) (string, *CodeIssue) {
	t.Helper()

	issue, err := env.engine.SendTwoFactorCode(userCtx(userID))
	if err != nil {
		t.Fatalf("SendTwoFactorCode failed: %v", err)
	}
	msg, ok := env.delivery.Last(userID)
	if !ok {
		t.Fatal("expected delivered message")
	}
	if msg.CodeID != issue.CodeID {
		t.Fatalf("delivered code id %s does not match issued %s", msg.CodeID, issue.CodeID)
	}
	return msg.Code, issue
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
