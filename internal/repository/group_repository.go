package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/yourorg/credvault/internal/domain"
)

// PostgresGroupRepository implements domain.GroupRepository using PostgreSQL
type PostgresGroupRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresGroupRepository creates a new group repository
func NewPostgresGroupRepository(db *sql.DB, logger *slog.Logger) *PostgresGroupRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresGroupRepository{db: db, logger: logger}
}

// ListUnits returns all units
func (r *PostgresGroupRepository) ListUnits(ctx context.Context) ([]*domain.Unit, error) {
	query := `
		SELECT id, name, created_at
		FROM units
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var out []*domain.Unit
	for rows.Next() {
		u := &domain.Unit{}
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUnitByID retrieves a unit by ID
func (r *PostgresGroupRepository) GetUnitByID(ctx context.Context, id string) (*domain.Unit, error) {
	u := &domain.Unit{}
	query := `SELECT id, name, created_at FROM units WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return u, nil
}

// GetUnitByName retrieves a unit by its unique name
func (r *PostgresGroupRepository) GetUnitByName(ctx context.Context, name string) (*domain.Unit, error) {
	u := &domain.Unit{}
	query := `SELECT id, name, created_at FROM units WHERE name = $1`
	err := r.db.QueryRowContext(ctx, query, name).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get unit by name: %w", err)
	}
	return u, nil
}

// CreateUnit inserts a unit; duplicate names map to domain.ErrConflict so
// callers can implement idempotent create-by-name.
func (r *PostgresGroupRepository) CreateUnit(ctx context.Context, unit *domain.Unit) error {
	query := `
		INSERT INTO units (id, name)
		VALUES ($1, $2)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, unit.ID, unit.Name).Scan(&unit.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("unit %q exists: %w", unit.Name, domain.ErrConflict)
		}
		r.logger.Error("failed to create unit",
			slog.String("name", unit.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create unit: %w", err)
	}
	return nil
}

// ListDivisions returns divisions, optionally restricted to a set of IDs
func (r *PostgresGroupRepository) ListDivisions(ctx context.Context, filter domain.DivisionFilter) ([]*domain.Division, error) {
	query := `
		SELECT id, name, unit_id, created_at
		FROM divisions
	`
	var args []any
	if filter.IDs != nil {
		query += ` WHERE id = ANY($1)`
		args = append(args, pq.Array(filter.IDs))
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list divisions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Division
	for rows.Next() {
		d := &domain.Division{}
		if err := rows.Scan(&d.ID, &d.Name, &d.UnitID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan division: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDivisionByID retrieves a division by ID
func (r *PostgresGroupRepository) GetDivisionByID(ctx context.Context, id string) (*domain.Division, error) {
	d := &domain.Division{}
	query := `SELECT id, name, unit_id, created_at FROM divisions WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Name, &d.UnitID, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("division %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get division: %w", err)
	}
	return d, nil
}

// CreateDivision inserts a division owned by an existing unit
func (r *PostgresGroupRepository) CreateDivision(ctx context.Context, division *domain.Division) error {
	query := `
		INSERT INTO divisions (id, name, unit_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, division.ID, division.Name, division.UnitID).Scan(&division.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("unit %s: %w", division.UnitID, domain.ErrInvalidReference)
		}
		r.logger.Error("failed to create division",
			slog.String("name", division.Name),
			slog.String("unit_id", division.UnitID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create division: %w", err)
	}
	return nil
}
