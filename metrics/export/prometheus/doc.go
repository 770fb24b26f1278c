// Package prometheus exposes credkit engine metrics as a
// prometheus/client_golang Collector. Callers register it on their own
// registry; nothing is registered globally.
package prometheus
