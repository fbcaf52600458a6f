package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assetdesk/assetdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, role, is_active, created_at, updated_at`

// ListUsers returns all users ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username, id`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return users, nil
}

// GetUser fetches one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return user, nil
}

// UpsertUser inserts an account or returns the id of the existing one.
// The no-op update makes RETURNING yield the existing row.
func (r *Repository) UpsertUser(ctx context.Context, username, passwordHash string, tier shared.Tier) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	err := r.pool.QueryRow(ctx, `INSERT INTO users (username, password_hash, role)
VALUES ($1, $2, $3)
ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
RETURNING id, (xmax = 0)`, username, passwordHash, tier.String()).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("users: upsert: %w", err)
	}
	return id, inserted, nil
}

func scanUser(row pgx.CollectableRow) (User, error) {
	var (
		u   User
		tag string
	)
	if err := row.Scan(&u.ID, &u.Username, &tag, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Tier = shared.ParseTier(tag)
	return u, nil
}
