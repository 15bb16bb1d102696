package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/reliability/retry"
)

// PostgresUserRepository implements domain.UserRepository using PostgreSQL.
// Per-user serialization for Mutate is provided by a row lock on the user
// record; transactions that lose a serialization race are retried.
type PostgresUserRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	retryCfg *retry.Config
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserRepository{
		db:       db,
		logger:   logger,
		retryCfg: retry.DefaultConfig(),
	}
}

// Create inserts a new user. Username uniqueness is enforced by the store:
// of two concurrent creates for the same username, exactly one succeeds and
// the other gets domain.ErrConflict.
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		string(user.Role),
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q taken: %w", user.Username, domain.ErrConflict)
		}
		r.logger.Error("failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user and its membership sets
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, r.db, "id", id)
}

// GetByUsername retrieves a user and its membership sets
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUser(ctx, r.db, "username", username)
}

// querier abstracts *sql.DB and *sql.Tx for shared read paths
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *PostgresUserRepository) getUser(ctx context.Context, q querier, column, value string) (*domain.User, error) {
	user := &domain.User{}
	var role string

	query := fmt.Sprintf(`
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM users
		WHERE %s = $1
	`, column)

	err := q.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", value, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Role, err = domain.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("corrupt role for user %s: %w", user.ID, err)
	}

	if user.Divisions, err = r.loadMemberships(ctx, q, "user_divisions", "division_id", user.ID); err != nil {
		return nil, err
	}
	if user.Units, err = r.loadMemberships(ctx, q, "user_units", "unit_id", user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *PostgresUserRepository) loadMemberships(ctx context.Context, q querier, table, column, userID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 ORDER BY %s`, column, table, column)
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// List returns all users with their membership sets
func (r *PostgresUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM users
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user := &domain.User{}
		var role string
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if user.Role, err = domain.ParseRole(role); err != nil {
			return nil, fmt.Errorf("corrupt role for user %s: %w", user.ID, err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, user := range users {
		if user.Divisions, err = r.loadMemberships(ctx, r.db, "user_divisions", "division_id", user.ID); err != nil {
			return nil, err
		}
		if user.Units, err = r.loadMemberships(ctx, r.db, "user_units", "unit_id", user.ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// Mutate applies fn to the current user record inside a transaction holding
// a row lock on the user, so concurrent mutations of the same user serialize
// while mutations of distinct users proceed independently. Transactions
// aborted by serialization failures or deadlocks are retried.
func (r *PostgresUserRepository) Mutate(ctx context.Context, id string, fn func(*domain.User) error) (*domain.User, error) {
	return retry.Do(ctx, r.retryCfg, r.logger, "mutate user", func(ctx context.Context) (*domain.User, error) {
		user, err := r.mutateOnce(ctx, id, fn)
		if err != nil && !retryableTxError(err) {
			return nil, retry.Permanent(err)
		}
		return user, err
	})
}

func (r *PostgresUserRepository) mutateOnce(ctx context.Context, id string, fn func(*domain.User) error) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	// Lock the user row for the duration of the read-modify-write.
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	user, err := r.getUser(ctx, tx, "id", id)
	if err != nil {
		return nil, err
	}

	if err := fn(user); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET role = $1, password_hash = $2, updated_at = now() WHERE id = $3`,
		string(user.Role), user.PasswordHash, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if err := r.writeMemberships(ctx, tx, "user_divisions", "division_id", id, user.Divisions); err != nil {
		return nil, err
	}
	if err := r.writeMemberships(ctx, tx, "user_units", "unit_id", id, user.Units); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) writeMemberships(ctx context.Context, tx *sql.Tx, table, column, userID string, ids []string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, table), userID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for _, id := range ids {
		query := fmt.Sprintf(`INSERT INTO %s (user_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, column)
		if _, err := tx.ExecContext(ctx, query, userID, id); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%s %s: %w", column, id, domain.ErrInvalidReference)
			}
			return fmt.Errorf("failed to write %s: %w", table, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func retryableTxError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	// serialization_failure and deadlock_detected
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
