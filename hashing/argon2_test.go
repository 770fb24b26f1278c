package hashing

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := New(fastConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	hash, err := hasher.Hash("secret-value-0123456789")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}
	if strings.Contains(hash, "secret-value") {
		t.Fatal("hash leaks plaintext")
	}

	ok, err := hasher.Verify("secret-value-0123456789", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected verification to succeed")
	}

	ok, err = hasher.Verify("secret-value-0123456780", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong secret to fail")
	}
}

func TestHashIsSalted(t *testing.T) {
	hasher, err := New(fastConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	a, _ := hasher.Hash("same-secret-value-xyz")
	b, _ := hasher.Hash("same-secret-value-xyz")
	if a == b {
		t.Fatal("expected distinct hashes for the same secret")
	}
}

func TestHashRejectsShortSecret(t *testing.T) {
	hasher, err := New(fastConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := hasher.Hash("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	hasher, err := New(fastConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	cases := []string{
		"",
		"plain",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	}
	for _, tc := range cases {
		if _, err := hasher.Verify("whatever-secret-1234", tc); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("Verify(%q): expected ErrMalformedHash, got %v", tc, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	old, err := New(fastConfig())
	if err != nil {
		t.Fatalf("New(old) error: %v", err)
	}
	hash, err := old.Hash("secret-value-0123456789")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	current, err := New(stronger)
	if err != nil {
		t.Fatalf("New(current) error: %v", err)
	}

	needs, err := current.NeedsRehash(hash)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if !needs {
		t.Fatal("expected rehash for weaker parameters")
	}

	needs, err = old.NeedsRehash(hash)
	if err != nil || needs {
		t.Fatalf("expected no rehash, got %v %v", needs, err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := fastConfig()
	bad.SaltLength = 8
	if _, err := New(bad); err == nil {
		t.Fatal("expected error for short salt")
	}
}
