package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/observability/metrics"
	"github.com/yourorg/credvault/internal/security/auth"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles registration and login
type AuthService struct {
	users      domain.UserRepository
	tokens     *auth.TokenManager
	bcryptCost int
	logger     *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(users domain.UserRepository, tokens *auth.TokenManager, bcryptCost int, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// AuthResult is returned from both registration and login
type AuthResult struct {
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expiresIn"` // seconds
}

// Register creates a new account with role normal and empty membership
// sets. Username uniqueness is left to the store so concurrent registrations
// cannot race past a pre-check.
func (s *AuthService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters: %w", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         domain.RoleNormal,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
		}
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return &AuthResult{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
	}, nil
}

// Login verifies credentials and issues a token carrying the role snapshot
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrUnauthenticated)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		s.logger.Info("login attempt for unknown username", slog.String("username", username))
		metrics.ObserveLogin("unknown_user")
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthenticated)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("username", username))
		metrics.ObserveLogin("wrong_password")
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthenticated)
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		metrics.ObserveLogin("error")
		return nil, errors.New("failed to generate token")
	}

	metrics.ObserveLogin("success")
	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return &AuthResult{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
	}, nil
}
