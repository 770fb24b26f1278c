package credkit

import (
	"testing"
	"time"
)

// Per-request counters on the credential check paths.
var hotPathCounters = []MetricID{
	MetricAPIKeyAuthSuccess,
	MetricAPIKeyAuthFailure,
	MetricTwoFactorVerified,
	MetricRateLimitHit,
}

func BenchmarkEngineMetricInc(b *testing.B) {
	for _, tc := range []struct {
		name    string
		enabled bool
	}{
		{name: "enabled", enabled: true},
		{name: "disabled", enabled: false},
	} {
		b.Run(tc.name, func(b *testing.B) {
			e := &Engine{metrics: NewMetrics(MetricsConfig{Enabled: tc.enabled})}
			b.ReportAllocs()
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					e.metricInc(hotPathCounters[i%len(hotPathCounters)])
					i++
				}
			})
		})
	}
}

func BenchmarkObserveOperationLatency(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	// one sample per bucket, including the overflow bucket
	samples := []time.Duration{
		2 * time.Millisecond,
		7 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		90 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		time.Second,
	}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			m.Observe(MetricOperationLatency, samples[i%len(samples)])
			i++
		}
	})
}

func BenchmarkMetricsSnapshot(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for _, id := range hotPathCounters {
		m.Add(id, 1000)
	}
	m.Observe(MetricOperationLatency, 3*time.Millisecond)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}
