package domain

import (
	"context"
	"time"
)

// Credential is the unit of protected data: a site login owned by exactly
// one division. Secret holds the stored form of the site password; whether
// that form is plaintext or ciphertext is decided by the codec at the
// service boundary, not here.
type Credential struct {
	ID         string // UUID
	SiteName   string
	Username   string // The login username for the site
	Secret     string // The login secret for the site, stored form
	DivisionID string // Owning division, required, immutable
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CredentialRepository defines data access for credentials. Create fails
// with ErrInvalidReference when the owning division does not exist.
type CredentialRepository interface {
	Create(ctx context.Context, credential *Credential) error
	GetByID(ctx context.Context, id string) (*Credential, error)
	ListByDivision(ctx context.Context, divisionID string) ([]*Credential, error)
	Update(ctx context.Context, credential *Credential) error
}
