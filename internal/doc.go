// Package internal holds helpers private to credkit: random code and token
// generation, the API key token codec and session id derivation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - httpapi: net/http adapter over the Engine
//   - rate: Redis-backed fixed-window rate limiting
//
// # What this package must NOT do
//
//   - Export types that appear in the public credkit API.
//   - Be imported by any package outside the credkit module.
package internal
