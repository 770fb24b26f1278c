// Package otel publishes credkit engine metrics through OpenTelemetry
// observable instruments.
//
// Each engine counter becomes an Int64ObservableCounter under its credkit_*
// name. The operation latency histogram is reported as a cumulative
// "_bucket" gauge with an "le" attribute per upper bound and a "_count"
// counter. One callback reads the engine snapshot per collection cycle; the
// caller owns the MeterProvider.
package otel
