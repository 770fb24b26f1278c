package internaldefs

import (
	"github.com/MrEthical07/credkit"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   credkit.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   credkit.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: credkit.MetricTwoFactorSent, Name: "credkit_two_factor_sent_total", Help: "One-time codes issued and delivered."},
	{ID: credkit.MetricTwoFactorDeliveryFailed, Name: "credkit_two_factor_delivery_failed_total", Help: "One-time codes withdrawn after a delivery failure."},
	{ID: credkit.MetricTwoFactorVerified, Name: "credkit_two_factor_verified_total", Help: "Successful one-time code verifications."},
	{ID: credkit.MetricTwoFactorFailed, Name: "credkit_two_factor_failed_total", Help: "Failed one-time code verifications."},
	{ID: credkit.MetricTwoFactorAttemptsExceeded, Name: "credkit_two_factor_attempts_exceeded_total", Help: "One-time codes invalidated by the attempt limit."},
	{ID: credkit.MetricAPIKeyGenerated, Name: "credkit_api_key_generated_total", Help: "API keys generated."},
	{ID: credkit.MetricAPIKeyRotated, Name: "credkit_api_key_rotated_total", Help: "API key secrets rotated."},
	{ID: credkit.MetricAPIKeyDeactivated, Name: "credkit_api_key_deactivated_total", Help: "API keys deactivated."},
	{ID: credkit.MetricAPIKeyAuthSuccess, Name: "credkit_api_key_auth_success_total", Help: "Successful API key authentications."},
	{ID: credkit.MetricAPIKeyAuthFailure, Name: "credkit_api_key_auth_failure_total", Help: "Rejected API key authentications."},
	{ID: credkit.MetricSessionCreated, Name: "credkit_session_created_total", Help: "Sessions created."},
	{ID: credkit.MetricSessionTerminated, Name: "credkit_session_terminated_total", Help: "Sessions terminated explicitly."},
	{ID: credkit.MetricSessionExpired, Name: "credkit_session_expired_total", Help: "Sessions ended on expiry."},
	{ID: credkit.MetricRateLimitHit, Name: "credkit_rate_limit_hit_total", Help: "Calls denied by a rate limit."},
	{ID: credkit.MetricForbidden, Name: "credkit_forbidden_total", Help: "Calls denied by ownership checks."},
	{ID: credkit.MetricStoreError, Name: "credkit_store_error_total", Help: "Credential or counter store failures."},
	{ID: credkit.MetricAuditDropped, Name: "credkit_audit_dropped_total", Help: "Audit events dropped under backpressure."},
}

var HistogramDefs = []HistogramDef{
	{ID: credkit.MetricOperationLatency, Name: "credkit_operation_latency_seconds", Help: "Latency of credential operations."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// need one instrument per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
