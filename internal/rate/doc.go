// Package rate provides the fixed-window rate limiter that guards every
// credential operation.
//
// # Window semantics
//
// Fixed-window counters: a single Lua script runs INCR, sets PEXPIRE on the
// first hit of a window and reports the remaining PTTL. When the key expires
// the window is over and the next hit starts a fresh count at 1.
//
// Keys have the shape <prefix>:rl:<subjectType>:<subjectID>:<action> so that,
// for example, two-factor attempts and password-reset attempts for the same
// user never share a budget.
//
// # Architecture boundaries
//
// Counters live behind [CounterStore] so several service instances share one
// budget. The package counts and decides; callers decide what a denial means.
//
// # What this package must NOT do
//
//   - Keep counters in process memory.
//   - Touch credential records.
//   - Be imported outside the credkit module.
package rate
