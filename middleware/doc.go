// Package middleware adapts HTTP requests to credkit engine calls.
//
// # Guards
//
//   - [Authenticate] verifies a Bearer identity token and attaches the caller
//     to the request context with [credkit.WithIdentity].
//   - [RequireSession] additionally requires a live session token in the
//     X-Session-Token header and marks it as the caller's current session.
//   - [RequireAPIKey] authenticates an API key and [RequireScope] checks the
//     key's granted scopes.
//
// Every guard also records the client IP and User-Agent so engine audit
// events carry them.
//
// This package only translates HTTP semantics. Credential checks are
// delegated to [jwt.Manager] and [credkit.Engine].
package middleware
