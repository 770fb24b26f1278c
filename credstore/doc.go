// Package credstore defines the persisted-record contract for one-time codes,
// API keys and sessions, along with the record models the engine works with.
//
// # Implementations
//
//   - redisstore: Redis hashes mutated by Lua scripts (default).
//   - pgstore: PostgreSQL through pgx, one statement or transaction per mutation.
//
// # Atomicity contract
//
// Every method that changes more than one field or more than one record must do
// so in a single atomic step: IssueCode replaces the previous code for the
// user, RotateAPIKey swaps the secret hash, TerminateAllSessions terminates the
// full set. Readers observe either the state before or after, never a mix.
//
// # What this package must NOT do
//
//   - Store plaintext codes, API-key secrets or session tokens.
//   - Make authorization decisions; ownership checks belong to the engine.
package credstore
