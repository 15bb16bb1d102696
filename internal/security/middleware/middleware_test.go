package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/repository"
	"github.com/yourorg/credvault/internal/security/auth"
	"github.com/yourorg/credvault/internal/security/ratelimit"
)

func newChainFixture(t *testing.T, maxRequests int) (http.Handler, *auth.TokenManager, *repository.MemoryUserRepository) {
	t.Helper()

	users := repository.NewMemoryUserRepository()
	tokens := auth.NewTokenManager("test-secret", "credvault", time.Hour)
	limiter := ratelimit.NewLimiter(maxRequests, time.Minute)
	t.Cleanup(limiter.Stop)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Same nesting as the server: the principal resolves first so the
	// limiter can key buckets by user ID.
	chain := PrincipalMiddleware(tokens, users, nil)(
		RateLimitMiddleware(limiter, nil)(inner),
	)
	return chain, tokens, users
}

func bearerFor(t *testing.T, tokens *auth.TokenManager, users *repository.MemoryUserRepository, username string) string {
	t.Helper()
	u := &domain.User{Username: username, PasswordHash: "x", Role: domain.RoleNormal}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	token, err := tokens.GenerateToken(u)
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	return "Bearer " + token
}

func doAuthed(chain http.Handler, bearer string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/divisions", nil)
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitKeysOnResolvedPrincipal(t *testing.T) {
	chain, tokens, users := newChainFixture(t, 2)
	bearer := bearerFor(t, tokens, users, "alice")

	for i := 0; i < 2; i++ {
		if code := doAuthed(chain, bearer); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := doAuthed(chain, bearer); code != http.StatusTooManyRequests {
		t.Fatalf("over limit: expected 429, got %d", code)
	}
}

func TestRateLimitBucketsAreIndependentPerUser(t *testing.T) {
	chain, tokens, users := newChainFixture(t, 1)
	aliceBearer := bearerFor(t, tokens, users, "alice")
	bobBearer := bearerFor(t, tokens, users, "bob")

	if code := doAuthed(chain, aliceBearer); code != http.StatusOK {
		t.Fatalf("alice first request: expected 200, got %d", code)
	}
	if code := doAuthed(chain, aliceBearer); code != http.StatusTooManyRequests {
		t.Fatalf("alice over limit: expected 429, got %d", code)
	}
	if code := doAuthed(chain, bobBearer); code != http.StatusOK {
		t.Fatalf("bob must have his own bucket: expected 200, got %d", code)
	}
}

func TestPublicPathsBypassAuthAndRateLimit(t *testing.T) {
	chain, _, _ := newChainFixture(t, 1)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("public request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}
