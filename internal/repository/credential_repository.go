package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/credvault/internal/domain"
)

// PostgresCredentialRepository implements domain.CredentialRepository using PostgreSQL
type PostgresCredentialRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCredentialRepository creates a new credential repository
func NewPostgresCredentialRepository(db *sql.DB, logger *slog.Logger) *PostgresCredentialRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCredentialRepository{db: db, logger: logger}
}

// Create inserts a credential into its owning division
func (r *PostgresCredentialRepository) Create(ctx context.Context, credential *domain.Credential) error {
	query := `
		INSERT INTO credentials (id, site_name, username, secret, division_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		credential.ID,
		credential.SiteName,
		credential.Username,
		credential.Secret,
		credential.DivisionID,
	).Scan(&credential.CreatedAt, &credential.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("division %s: %w", credential.DivisionID, domain.ErrInvalidReference)
		}
		r.logger.Error("failed to create credential",
			slog.String("site_name", credential.SiteName),
			slog.String("division_id", credential.DivisionID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// GetByID retrieves a credential by ID
func (r *PostgresCredentialRepository) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	c := &domain.Credential{}
	query := `
		SELECT id, site_name, username, secret, division_id, created_at, updated_at
		FROM credentials
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.SiteName, &c.Username, &c.Secret, &c.DivisionID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return c, nil
}

// ListByDivision returns all credentials owned by a division
func (r *PostgresCredentialRepository) ListByDivision(ctx context.Context, divisionID string) ([]*domain.Credential, error) {
	query := `
		SELECT id, site_name, username, secret, division_id, created_at, updated_at
		FROM credentials
		WHERE division_id = $1
		ORDER BY site_name
	`
	rows, err := r.db.QueryContext(ctx, query, divisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var out []*domain.Credential
	for rows.Next() {
		c := &domain.Credential{}
		if err := rows.Scan(&c.ID, &c.SiteName, &c.Username, &c.Secret, &c.DivisionID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields of a credential. The owning division is
// immutable and deliberately excluded from the statement.
func (r *PostgresCredentialRepository) Update(ctx context.Context, credential *domain.Credential) error {
	query := `
		UPDATE credentials
		SET site_name = $1, username = $2, secret = $3, updated_at = now()
		WHERE id = $4
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		credential.SiteName,
		credential.Username,
		credential.Secret,
		credential.ID,
	).Scan(&credential.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("credential %s: %w", credential.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return nil
}
