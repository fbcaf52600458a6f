package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assetdesk/assetdesk/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUsername fetches the credentials of a user.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	var (
		acc Account
		tag string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, username, password_hash, role, is_active FROM users WHERE username = $1`, username).
		Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &tag, &acc.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	acc.Tier = shared.ParseTier(tag)
	return &acc, nil
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`, id, userID, time.Now().UTC(), expiresAt.UTC(), ip, ua)
	if err != nil {
		return fmt.Errorf("auth: create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

// PruneExpiredSessions deletes session records that expired before now.
func (r *PGRepository) PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("auth: prune sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
