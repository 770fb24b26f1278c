package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/credkit"
	"github.com/MrEthical07/credkit/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// snapshotter is satisfied by *credkit.Engine.
type snapshotter interface {
	MetricsSnapshot() credkit.MetricsSnapshot
}

type counterBinding struct {
	id  credkit.MetricID
	obs metric.Int64ObservableCounter
}

// latencyBinding reports one histogram as a cumulative bucket gauge keyed by
// an "le" attribute, plus a sample counter.
type latencyBinding struct {
	id      credkit.MetricID
	buckets metric.Int64ObservableGauge
	samples metric.Int64ObservableCounter
	bounds  []metric.ObserveOption
}

// Exporter publishes an engine's counters through an OpenTelemetry meter.
// Values are read from the engine snapshot on each collection; nothing is
// pushed from the request path.
type Exporter struct {
	source    snapshotter
	counters  []counterBinding
	latencies []latencyBinding
	reg       metric.Registration
}

// NewExporter binds engine to meter.
func NewExporter(meter metric.Meter, engine *credkit.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource binds any snapshot source to meter.
func NewExporterFromSource(meter metric.Meter, source snapshotter) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	x := &Exporter{source: source}
	var instruments []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		obs, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("credkit counter %s: %w", def.Name, err)
		}
		x.counters = append(x.counters, counterBinding{id: def.ID, obs: obs})
		instruments = append(instruments, obs)
	}

	bounds := leOptions()
	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("{operation}"),
		)
		if err != nil {
			return nil, fmt.Errorf("credkit histogram %s: %w", def.Name, err)
		}
		samples, err := meter.Int64ObservableCounter(def.Name+"_count",
			metric.WithDescription(def.Help+" Total observations."),
		)
		if err != nil {
			return nil, fmt.Errorf("credkit histogram %s: %w", def.Name, err)
		}
		x.latencies = append(x.latencies, latencyBinding{id: def.ID, buckets: buckets, samples: samples, bounds: bounds})
		instruments = append(instruments, buckets, samples)
	}

	reg, err := meter.RegisterCallback(x.observe, instruments...)
	if err != nil {
		return nil, fmt.Errorf("credkit metrics callback: %w", err)
	}
	x.reg = reg
	return x, nil
}

func (x *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := x.source.MetricsSnapshot()
	// disabled metrics produce an empty snapshot
	if len(snap.Counters) == 0 {
		return nil
	}
	for _, c := range x.counters {
		o.ObserveInt64(c.obs, int64(snap.Counters[c.id]))
	}
	for _, l := range x.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, opt := range l.bounds {
			o.ObserveInt64(l.buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(l.samples, int64(cumulative[len(cumulative)-1]))
	}
	return nil
}

// Close unregisters the callback. Instruments stay defined on the meter but
// stop reporting.
func (x *Exporter) Close() error {
	if x == nil || x.reg == nil {
		return nil
	}
	return x.reg.Unregister()
}

func leOptions() []metric.ObserveOption {
	out := make([]metric.ObserveOption, 0, len(internaldefs.HistogramUpperBounds)+1)
	for _, b := range internaldefs.HistogramUpperBounds {
		out = append(out, metric.WithAttributes(attribute.String("le", strconv.FormatFloat(b, 'g', -1, 64))))
	}
	return append(out, metric.WithAttributes(attribute.String("le", "+Inf")))
}
