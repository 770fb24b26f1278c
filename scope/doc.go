// Package scope defines the closed vocabulary of permission names that can be
// granted to an API key.
//
// A [Registry] is populated at start-up, frozen, and then consulted on every
// key generation. Names use the "<verb>:<resource>" form, for example
// "read:reports"; the bare name "admin" grants everything.
package scope
