// Package credkit manages the lifecycle of secondary security credentials:
// rate-limited two-factor codes, scoped API keys, and user sessions.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build]. Several service
// instances may share one Redis (or Postgres) backend; rate-limit counters and credential
// records are only changed through single atomic store operations.
//
// # Architecture boundaries
//
// credkit is the public surface. It exposes [Engine], [Builder], [Config], the error model
// ([Error], [Kind]) and value types (APIKeyRecord, SessionRecord, etc.). Persistence lives
// behind the credstore interfaces; counters, token encoding and audit dispatch live under
// internal/ and are never exported.
//
// # Identity
//
// Every operation except [Engine.AuthenticateAPIKey] and [Engine.TouchSession] reads the
// caller from ctx ([WithIdentity]). A call without one fails with [KindUnauthorized] before
// anything else happens. Acting on another user's keys or sessions requires one of
// [Config.AdminRoles].
//
// # Errors
//
// Every failure is an [*Error] with a [Kind]. errors.Is matches the per-kind sentinels
// (ErrNotFound, ErrExpired, ...). Store and delivery causes are logged and kept on the error
// for errors.As, but never appear in its message.
package credkit
