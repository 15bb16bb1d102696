package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/security"
	"github.com/yourorg/credvault/internal/security/cipher"
)

// CredentialService guards every credential operation with the
// authorization engine and moves secrets through the at-rest codec.
type CredentialService struct {
	credentials domain.CredentialRepository
	engine      *security.Engine
	codec       cipher.SecretCodec
	logger      *slog.Logger
}

// NewCredentialService creates a new credential service
func NewCredentialService(credentials domain.CredentialRepository, engine *security.Engine, codec cipher.SecretCodec, logger *slog.Logger) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = cipher.PlaintextCodec{}
	}
	return &CredentialService{
		credentials: credentials,
		engine:      engine,
		codec:       codec,
		logger:      logger,
	}
}

// ListForDivision returns the credentials of one division, secrets decoded.
// Requires admin role or membership in that division.
func (s *CredentialService) ListForDivision(ctx context.Context, p security.Principal, divisionID string) ([]*domain.Credential, error) {
	if err := authorize(s.engine, p, security.ActionReadCredentials, security.Target{DivisionID: divisionID}); err != nil {
		return nil, err
	}

	credentials, err := s.credentials.ListByDivision(ctx, divisionID)
	if err != nil {
		return nil, err
	}
	for _, c := range credentials {
		if c.Secret, err = s.codec.Decode(c.Secret); err != nil {
			return nil, fmt.Errorf("failed to decode secret for credential %s: %w", c.ID, err)
		}
	}
	return credentials, nil
}

// CreateCredentialInput carries the fields for a new credential
type CreateCredentialInput struct {
	SiteName   string
	Username   string
	Password   string
	DivisionID string
}

// Create stores a new credential in a division the principal may write to
func (s *CredentialService) Create(ctx context.Context, p security.Principal, input CreateCredentialInput) (*domain.Credential, error) {
	if input.DivisionID == "" {
		return nil, fmt.Errorf("division id is required: %w", domain.ErrInvalidInput)
	}
	if err := authorize(s.engine, p, security.ActionCreateCredential, security.Target{DivisionID: input.DivisionID}); err != nil {
		return nil, err
	}
	if input.SiteName == "" || input.Username == "" || input.Password == "" {
		return nil, fmt.Errorf("site name, username, and password are required: %w", domain.ErrInvalidInput)
	}

	stored, err := s.codec.Encode(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encode secret: %w", err)
	}

	credential := &domain.Credential{
		ID:         uuid.NewString(),
		SiteName:   input.SiteName,
		Username:   input.Username,
		Secret:     stored,
		DivisionID: input.DivisionID,
	}
	if err := s.credentials.Create(ctx, credential); err != nil {
		return nil, err
	}

	s.logger.Info("credential created",
		slog.String("credential_id", credential.ID),
		slog.String("division_id", credential.DivisionID),
		slog.String("user_id", p.UserID),
	)

	out := *credential
	out.Secret = input.Password
	return &out, nil
}

// UpdateCredentialInput carries a partial credential update; nil fields are
// left unchanged.
type UpdateCredentialInput struct {
	SiteName *string
	Username *string
	Password *string
}

// Update rewrites a credential. Authorization is role-gated only: any
// management or admin principal may update any credential, membership
// regardless. That mirrors the system this replaces and is intentionally
// not scope-checked.
func (s *CredentialService) Update(ctx context.Context, p security.Principal, id string, input UpdateCredentialInput) (*domain.Credential, error) {
	if err := authorize(s.engine, p, security.ActionUpdateCredential, security.Target{}); err != nil {
		return nil, err
	}

	credential, err := s.credentials.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.SiteName != nil {
		credential.SiteName = *input.SiteName
	}
	if input.Username != nil {
		credential.Username = *input.Username
	}
	if input.Password != nil {
		stored, err := s.codec.Encode(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to encode secret: %w", err)
		}
		credential.Secret = stored
	}

	if err := s.credentials.Update(ctx, credential); err != nil {
		return nil, err
	}

	s.logger.Info("credential updated",
		slog.String("credential_id", credential.ID),
		slog.String("user_id", p.UserID),
	)

	out := *credential
	if out.Secret, err = s.codec.Decode(out.Secret); err != nil {
		return nil, fmt.Errorf("failed to decode secret: %w", err)
	}
	return &out, nil
}
