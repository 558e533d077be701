package store

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestJWTStore(t *testing.T, revoked RevocationList, opts JWTOptions) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore(testSecret, time.Minute, revoked, opts)
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	return s
}

func TestJWTSessionStoreRoundTrip(t *testing.T) {
	s := newTestJWTStore(t, nil, JWTOptions{})
	token, err := s.NewSession("23bsccs01")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok || userID != "23bsccs01" {
		t.Fatalf("unexpected verify result: ok=%v userID=%q err=%v", ok, userID, err)
	}
}

func TestJWTSessionStoreRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("short", time.Minute, nil, JWTOptions{}); err == nil {
		t.Fatalf("expected short secret to fail")
	}
}

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	signing := newTestJWTStore(t, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-a"})
	verify := newTestJWTStore(t, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-b"})

	token, err := signing.NewSession("user-claim")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := verify.GetUserIDByToken(token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTSessionStoreRevokesByJTI(t *testing.T) {
	s := newTestJWTStore(t, NewMemoryRevocationList(), JWTOptions{})

	token, err := s.NewSession("user-revoke")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err == nil || ok {
		t.Fatalf("expected revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRejectsForeignSignature(t *testing.T) {
	s := newTestJWTStore(t, nil, JWTOptions{})
	other, err := NewJWTSessionStore("fedcba9876543210fedcba9876543210", time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new other store: %v", err)
	}
	token, err := other.NewSession("intruder")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := s.GetUserIDByToken(token); err == nil {
		t.Fatalf("expected foreign signature to fail")
	}
}

func TestJWTSessionStoreRejectsFutureIssuedAt(t *testing.T) {
	s := newTestJWTStore(t, nil, JWTOptions{Leeway: time.Second})
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-future",
		Issuer:    defaultJWTIssuer,
		Audience:  jwt.ClaimStrings{defaultJWTAudience},
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(2 * time.Minute)),
		NotBefore: jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		ID:        "jti-future",
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, _, err := s.GetUserIDByToken(signed); err == nil {
		t.Fatalf("expected future iat token to fail")
	}
}

func TestJWTSessionStoreRequiresJTIClaim(t *testing.T) {
	s := newTestJWTStore(t, nil, JWTOptions{})
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-missing-jti",
		Issuer:    defaultJWTIssuer,
		Audience:  jwt.ClaimStrings{defaultJWTAudience},
		IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		NotBefore: jwt.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(5 * time.Minute)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, _, err := s.GetUserIDByToken(signed); err == nil {
		t.Fatalf("expected missing jti token to fail")
	}
}

func TestJWTSessionStoreRejectsNoneAlgorithm(t *testing.T) {
	s := newTestJWTStore(t, nil, JWTOptions{})
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-none",
		Issuer:    defaultJWTIssuer,
		Audience:  jwt.ClaimStrings{defaultJWTAudience},
		IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(time.Minute)),
		ID:        "jti-none",
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, _, err := s.GetUserIDByToken(signed); err == nil {
		t.Fatalf("expected unsigned token to fail")
	}
}

func TestJWTSessionStoreRevocationCoversLeeway(t *testing.T) {
	list := NewMemoryRevocationList()
	s := newTestJWTStore(t, list, JWTOptions{Leeway: 45 * time.Second})
	token, err := s.NewSession("user-leeway")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	claims, err := s.parseAndVerify(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	want := claims.ExpiresAt.Time.Add(45 * time.Second)
	if got := list.until[claims.ID]; !got.Equal(want) {
		t.Fatalf("revoked until %v, want %v", got, want)
	}
}
