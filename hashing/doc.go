// Package hashing derives and verifies salted Argon2id hashes of credential
// secrets such as API-key secrets.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # What this package must NOT do
//
//   - Store or log secrets; callers supply plaintext and receive hashes.
//   - Import any other credkit package.
package hashing
