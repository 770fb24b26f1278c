//go:build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/credkit"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts Redis commands.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64 { return h.commands.Load() }

// newCountedEngine returns an engine whose Redis client carries a counter.
// Script SHAs are loaded lazily, so each measured operation is run once
// before the counter is reset.
func newCountedEngine(t *testing.T) (*credkit.Engine, *cmdCounter) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	counter := &cmdCounter{}
	rdb.AddHook(counter)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}

	engine, _ := newEngine(t, rdb)
	counter.Reset()
	return engine, counter
}

func assertBudget(t *testing.T, counter *cmdCounter, op string, max int64, fn func()) {
	t.Helper()
	fn()
	counter.Reset()
	fn()
	if got := counter.Commands(); got > max {
		t.Fatalf("%s used %d redis commands, budget %d", op, got, max)
	}
}

func TestTouchSessionRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	issued, err := engine.CreateSession(asUser("budget"), credkit.CreateSessionRequest{UserID: "budget"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	assertBudget(t, counter, "TouchSession", 1, func() {
		if _, err := engine.TouchSession(context.Background(), issued.Token); err != nil {
			t.Fatalf("touch: %v", err)
		}
	})
}

// Rate-limit increment, key read and last-used touch.
func TestAuthenticateAPIKeyRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	key, err := engine.GenerateAPIKey(asUser("budget"), credkit.GenerateAPIKeyRequest{Name: "b", Scopes: []string{"read:reports"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	assertBudget(t, counter, "AuthenticateAPIKey", 3, func() {
		if _, err := engine.AuthenticateAPIKey(context.Background(), key.Key); err != nil {
			t.Fatalf("authenticate: %v", err)
		}
	})
}

func TestRotateAPIKeyRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := asUser("budget")
	key, err := engine.GenerateAPIKey(ctx, credkit.GenerateAPIKeyRequest{Name: "b", Scopes: []string{"read:reports"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	assertBudget(t, counter, "RotateAPIKey", 3, func() {
		if _, err := engine.RotateAPIKey(ctx, key.ID); err != nil {
			t.Fatalf("rotate: %v", err)
		}
	})
}

// Rate-limit increment plus one script, regardless of session count.
func TestTerminateAllSessionsRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := asUser("budget")
	for i := 0; i < 10; i++ {
		if _, err := engine.CreateSession(ctx, credkit.CreateSessionRequest{UserID: "budget"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	assertBudget(t, counter, "TerminateAllSessions", 2, func() {
		if _, err := engine.TerminateAllSessions(ctx, "", "", ""); err != nil {
			t.Fatalf("terminate all: %v", err)
		}
	})
}
