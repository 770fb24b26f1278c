package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{Action: "api_key_generated", ActorID: "u1", Success: true})
	sink.Emit(context.Background(), Event{Action: "api_key_rotated", ActorID: "u1", Success: false, ErrorKind: "not_found"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Action != "api_key_rotated" || ev.ErrorKind != "not_found" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{Action: "session_terminated", Description: "session ended", Success: true})
	sink.Emit(context.Background(), Event{Action: "two_factor_verified", Description: "code rejected", Success: false, ErrorKind: "mismatch"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected levels: %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].ContextMap()["error_kind"] != "mismatch" {
		t.Fatalf("missing error_kind: %v", entries[1].ContextMap())
	}
}

type countingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *countingSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *countingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Action: "x", Timestamp: time.Now()})
	}
	d.Close()

	if sink.len() != 10 {
		t.Fatalf("expected 10 delivered events, got %d", sink.len())
	}
	d.Emit(context.Background(), Event{Action: "after-close"})
	if sink.len() != 10 {
		t.Fatal("emit after close must be dropped")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, Event) {
	<-s.release
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{Action: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a stalled sink")
	}
	close(sink.release)
	d.Close()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher should report zero drops")
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{Action: "x"})
	if a.len() != 1 || b.len() != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}
