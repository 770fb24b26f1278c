package credkit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricTwoFactorSent)

	if got := m.Value(MetricTwoFactorSent); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricTwoFactorSent)
	m.Inc(MetricTwoFactorSent)
	m.Inc(MetricTwoFactorSent)

	if got := m.Value(MetricTwoFactorSent); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricAPIKeyAuthSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricAPIKeyAuthSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricOperationLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricOperationLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricTwoFactorSent)
	m.Inc(MetricTwoFactorFailed)
	m.Inc(MetricTwoFactorFailed)
	m.Observe(MetricOperationLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricTwoFactorSent] != 1 {
		t.Fatalf("expected MetricTwoFactorSent=1 got %d", snap.Counters[MetricTwoFactorSent])
	}
	if snap.Counters[MetricTwoFactorFailed] != 2 {
		t.Fatalf("expected MetricTwoFactorFailed=2 got %d", snap.Counters[MetricTwoFactorFailed])
	}
	if len(snap.Histograms[MetricOperationLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricOperationLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricOperationLatency][0])
	}
}

func TestMetricsSnapshotExcludesHistogramCounter(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricOperationLatency)

	snap := m.Snapshot()
	if _, ok := snap.Counters[MetricOperationLatency]; ok {
		t.Fatal("latency must only appear as a histogram")
	}
	if _, ok := snap.Histograms[MetricOperationLatency]; ok {
		t.Fatal("histogram must be absent when latency is disabled")
	}
	if len(snap.Counters) != int(metricIDCount)-1 {
		t.Fatalf("expected %d counters, got %d", int(metricIDCount)-1, len(snap.Counters))
	}
}

func TestEngineCountsOperations(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	env := newTestEnv(t, cfg, nil)
	ctx := userCtx("u1")

	code, _ := env.sentCode(t, "u1")
	if _, err := env.engine.VerifyTwoFactorCode(ctx, code); err != nil {
		t.Fatalf("VerifyTwoFactorCode failed: %v", err)
	}
	key, err := env.engine.GenerateAPIKey(ctx, GenerateAPIKeyRequest{Name: "m", Scopes: []string{"read:reports"}})
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	_, _ = env.engine.AuthenticateAPIKey(context.Background(), key.Key)
	_, _ = env.engine.AuthenticateAPIKey(context.Background(), "garbage")
	createSession(t, env, "u1")

	snap := env.engine.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricTwoFactorSent:     1,
		MetricTwoFactorVerified: 1,
		MetricAPIKeyGenerated:   1,
		MetricAPIKeyAuthSuccess: 1,
		MetricAPIKeyAuthFailure: 1,
		MetricSessionCreated:    1,
	}
	for id, v := range want {
		if snap.Counters[id] != v {
			t.Fatalf("metric %d: expected %d, got %d", id, v, snap.Counters[id])
		}
	}

	var observed uint64
	for _, n := range snap.Histograms[MetricOperationLatency] {
		observed += n
	}
	if observed == 0 {
		t.Fatal("expected latency observations")
	}
}
