package auth

import (
	"testing"
	"time"
)

func TestMintAndParseSession(t *testing.T) {
	m := NewJWTManager("trustlend-backend", "trustlend-api", "test-key", time.Hour)

	tok, err := m.MintSession("rAddress1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Address != "rAddress1" || claims.Type != TypeSession {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.SessionID == "" {
		t.Fatal("missing session id")
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	m := NewJWTManager("trustlend-backend", "trustlend-api", "test-key", time.Hour)
	other := NewJWTManager("trustlend-backend", "trustlend-api", "different-key", time.Hour)

	tok, err := other.MintSession("rAddress1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Parse(tok); err == nil {
		t.Fatal("token signed with a different key must not parse")
	}
}

func TestParseRejectsWrongIssuerOrAudience(t *testing.T) {
	m := NewJWTManager("trustlend-backend", "trustlend-api", "test-key", time.Hour)

	wrongIssuer := NewJWTManager("someone-else", "trustlend-api", "test-key", time.Hour)
	tok, _ := wrongIssuer.MintSession("rAddress1")
	if _, err := m.Parse(tok); err == nil {
		t.Fatal("wrong issuer must not parse")
	}

	wrongAudience := NewJWTManager("trustlend-backend", "other-api", "test-key", time.Hour)
	tok, _ = wrongAudience.MintSession("rAddress1")
	if _, err := m.Parse(tok); err == nil {
		t.Fatal("wrong audience must not parse")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := NewJWTManager("trustlend-backend", "trustlend-api", "test-key", -time.Minute)

	tok, err := m.MintSession("rAddress1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Parse(tok); err == nil {
		t.Fatal("expired token must not parse")
	}
}
