package auth

import (
	"testing"
	"time"

	"github.com/yourorg/credvault/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", "credvault", time.Hour)
	user := &domain.User{ID: "u1", Username: "alice", Role: domain.RoleManagement}

	token, err := tm.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := tm.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" || claims.Role != "management" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret-a", "credvault", time.Hour)
	other := NewTokenManager("secret-b", "credvault", time.Hour)

	token, err := tm.GenerateToken(&domain.User{ID: "u1", Username: "alice", Role: domain.RoleNormal})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected validation failure with wrong secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	// Built directly so the constructor's default TTL cannot kick in.
	tm := &TokenManager{secret: "secret", issuer: "credvault", ttl: -time.Minute}
	token, err := tm.GenerateToken(&domain.User{ID: "u1", Username: "alice", Role: domain.RoleNormal})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := tm.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestExtractToken(t *testing.T) {
	if _, err := ExtractToken("Basic abc"); err == nil {
		t.Fatalf("expected error for non-bearer header")
	}
	tok, err := ExtractToken("Bearer abc.def.ghi")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if tok != "abc.def.ghi" {
		t.Fatalf("unexpected token: %s", tok)
	}
}
