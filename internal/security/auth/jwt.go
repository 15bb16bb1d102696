package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yourorg/credvault/internal/domain"
)

// Claims carries the authenticated identity inside a signed token. Role is a
// point-in-time snapshot: it is trusted for the token lifetime and not
// re-fetched mid-request even if changed concurrently.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates HMAC JWTs.
type TokenManager struct {
	secret string
	issuer string
	ttl    time.Duration
}

// NewTokenManager creates a token manager. The TTL defaults to one hour when
// zero, matching the session length users expect.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	if secret == "" {
		secret = "change-me-in-production"
	}
	if issuer == "" {
		issuer = "credvault"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: secret, issuer: issuer, ttl: ttl}
}

// GenerateToken issues a signed token for a user record.
func (tm *TokenManager) GenerateToken(user *domain.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("user id required")
	}
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(tm.secret))
}

// ValidateToken parses and verifies a token, rejecting roles outside the
// closed enumeration so an unchecked string never propagates.
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token failed: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if _, err := domain.ParseRole(claims.Role); err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// ExtractToken pulls the bearer token out of an Authorization header.
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}
