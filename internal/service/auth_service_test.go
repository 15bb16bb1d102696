package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/repository"
	"github.com/yourorg/credvault/internal/security/auth"
)

func newAuthService() (*AuthService, *repository.MemoryUserRepository) {
	users := repository.NewMemoryUserRepository()
	tokens := auth.NewTokenManager("test-secret", "credvault", time.Hour)
	return NewAuthService(users, tokens, 4, nil), users
}

func TestRegisterAndLogin(t *testing.T) {
	s, _ := newAuthService()
	ctx := context.Background()

	r, err := s.Register(ctx, "alice", "Password123")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if r.UserID == "" || r.Token == "" {
		t.Fatalf("expected user id and token, got %+v", r)
	}
	if r.Role != domain.RoleNormal {
		t.Fatalf("new accounts must start as normal, got %s", r.Role)
	}

	if _, err := s.Register(ctx, "alice", "Password456"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}

	lr, err := s.Login(ctx, "alice", "Password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if lr.Token == "" || lr.ExpiresIn <= 0 {
		t.Fatalf("expected token with expiry, got %+v", lr)
	}

	if _, err := s.Login(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for wrong password, got %v", err)
	}
	if _, err := s.Login(ctx, "nobody", "Password123"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newAuthService()
	ctx := context.Background()

	if _, err := s.Register(ctx, "", "Password123"); err == nil {
		t.Fatalf("expected error for empty username")
	}
	if _, err := s.Register(ctx, "bob", "short"); err == nil {
		t.Fatalf("expected error for short password")
	}
}

func TestRegisterStartsWithEmptyMemberships(t *testing.T) {
	s, users := newAuthService()
	ctx := context.Background()

	r, err := s.Register(ctx, "alice", "Password123")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	u, err := users.GetByID(ctx, r.UserID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(u.Divisions) != 0 || len(u.Units) != 0 {
		t.Fatalf("expected empty membership sets, got %+v", u)
	}
}

func TestLoginTokenCarriesRole(t *testing.T) {
	s, users := newAuthService()
	ctx := context.Background()

	r, err := s.Register(ctx, "alice", "Password123")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := users.Mutate(ctx, r.UserID, func(u *domain.User) error {
		u.Role = domain.RoleAdmin
		return nil
	}); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	lr, err := s.Login(ctx, "alice", "Password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	tokens := auth.NewTokenManager("test-secret", "credvault", time.Hour)
	claims, err := tokens.ValidateToken(lr.Token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.Role != "admin" {
		t.Fatalf("expected role snapshot in token, got %q", claims.Role)
	}
}
