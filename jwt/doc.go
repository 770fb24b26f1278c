// Package jwt issues and verifies the short-lived identity tokens that carry
// a caller's user id and role into the HTTP surface. Both Ed25519 and HS256
// are supported, with optional kid-based key rotation.
package jwt
