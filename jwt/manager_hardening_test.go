package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func claimsFor(sub string, exp time.Time) IdentityClaims {
	return IdentityClaims{Role: "member", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: gjwt.NewNumericDate(exp),
	}}
}

func TestIssueParseRoundTrip(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := m.Issue("u1", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID() != "u1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := m.Issue("  ", "admin"); err == nil {
		t.Fatal("expected empty user id to be rejected")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claimsFor("u1", time.Now().Add(time.Minute)))
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseRejectsMissingSubject(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: priv.Public().(ed25519.PublicKey)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claimsFor("", time.Now().Add(time.Minute)))
	token, _ := tok.SignedString(priv)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected token without subject to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "credkit",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	issued, err := m.Issue("u", "member")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(issued); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(c IdentityClaims) string {
		s, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		return s
	}
	registered := func(iss, aud string, exp, iat time.Time) IdentityClaims {
		return IdentityClaims{RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(iat),
		}}
	}
	now := time.Now()

	if _, err := m.Parse(sign(registered("other", "api", now.Add(time.Minute), now))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(sign(registered("credkit", "other-api", now.Add(time.Minute), now))); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Parse(sign(registered("credkit", "api", now.Add(-15*time.Second), now.Add(-time.Minute)))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Parse(sign(registered("credkit", "api", now.Add(-2*time.Minute), now.Add(-3*time.Minute)))); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsFarFutureIssuedAt(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Hour, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: priv.Public().(ed25519.PublicKey), MaxFutureIAT: time.Minute})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	c := claimsFor("u1", time.Now().Add(2*time.Hour))
	c.IssuedAt = gjwt.NewNumericDate(time.Now().Add(30 * time.Minute))
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected far-future iat to be rejected")
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := claimsFor("u1", time.Now().Add(time.Minute))
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.Parse(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.Parse(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := map[string]Config{
		"zero ttl":       {SigningMethod: MethodEd25519, PublicKey: pub},
		"short hs256":    {TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"no ed key":      {TTL: time.Minute, SigningMethod: MethodEd25519},
		"unknown method": {TTL: time.Minute, SigningMethod: "rs256"},
		"huge leeway":    {TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, Leeway: time.Hour},
		"kid not in set": {TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, KeyID: "x", VerifyKeys: map[string][]byte{"k1": pub}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, err := m.Issue("u2", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID() != "u2" {
		t.Fatalf("unexpected subject %q", claims.UserID())
	}
}
