package orgaccess

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assetdesk/assetdesk/internal/platform/db"
	"github.com/assetdesk/assetdesk/internal/shared"
)

// Repository provides PostgreSQL backed organization persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const organizationColumns = `o.id, o.name, o.legal_type, o.phone, o.email, o.address, o.created_at`

// UserTier returns the coarse tier of a user. The boolean is false when the
// user does not exist.
func (r *Repository) UserTier(ctx context.Context, userID int64) (shared.Tier, bool, error) {
	var tag string
	err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 AND is_active`, userID).Scan(&tag)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.TierStandard, false, nil
		}
		return shared.TierStandard, false, fmt.Errorf("orgaccess: user tier: %w", err)
	}
	return shared.ParseTier(tag), true, nil
}

// OrganizationExists reports whether the organization row exists.
func (r *Repository) OrganizationExists(ctx context.Context, orgID int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)`, orgID).Scan(&exists); err != nil {
		return false, fmt.Errorf("orgaccess: organization exists: %w", err)
	}
	return exists, nil
}

// MembershipExists reports whether (userID, orgID) has a membership row.
func (r *Repository) MembershipExists(ctx context.Context, userID, orgID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM user_organizations WHERE user_id = $1 AND organization_id = $2)`, userID, orgID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("orgaccess: membership exists: %w", err)
	}
	return exists, nil
}

// GetOrganization fetches one organization.
func (r *Repository) GetOrganization(ctx context.Context, orgID int64) (Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+organizationColumns+` FROM organizations o WHERE o.id = $1`, orgID)
	if err != nil {
		return Organization{}, fmt.Errorf("orgaccess: get organization: %w", err)
	}
	org, err := pgx.CollectExactlyOneRow(rows, scanOrganization)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, fmt.Errorf("orgaccess: get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations returns every organization ordered by name.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return r.listOrganizations(ctx, `SELECT `+organizationColumns+` FROM organizations o ORDER BY o.name, o.id`)
}

// ListUserOrganizations returns the organizations a user belongs to,
// ordered by name.
func (r *Repository) ListUserOrganizations(ctx context.Context, userID int64) ([]Organization, error) {
	return r.listOrganizations(ctx, `SELECT `+organizationColumns+`
FROM organizations o
JOIN user_organizations uo ON uo.organization_id = o.id
WHERE uo.user_id = $1
ORDER BY o.name, o.id`, userID)
}

// ListMembers returns the memberships of an organization ordered by username.
func (r *Repository) ListMembers(ctx context.Context, orgID int64) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `SELECT uo.id, uo.user_id, u.username, uo.organization_id, uo.created_at
FROM user_organizations uo
JOIN users u ON u.id = uo.user_id
WHERE uo.organization_id = $1
ORDER BY u.username`, orgID)
	if err != nil {
		return nil, fmt.Errorf("orgaccess: list members: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Membership, error) {
		var m Membership
		err := row.Scan(&m.ID, &m.UserID, &m.Username, &m.OrganizationID, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("orgaccess: list members: %w", err)
	}
	return members, nil
}

func (r *Repository) listOrganizations(ctx context.Context, sql string, args ...any) ([]Organization, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("orgaccess: list organizations: %w", err)
	}
	orgs, err := pgx.CollectRows(rows, scanOrganization)
	if err != nil {
		return nil, fmt.Errorf("orgaccess: list organizations: %w", err)
	}
	return orgs, nil
}

func scanOrganization(row pgx.CollectableRow) (Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.LegalType, &o.Phone, &o.Email, &o.Address, &o.CreatedAt)
	return o, err
}

func (t *txRepo) InsertOrganization(ctx context.Context, org Organization) (Organization, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO organizations (name, legal_type, phone, email, address)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		org.Name, org.LegalType, org.Phone, org.Email, org.Address).Scan(&org.ID, &org.CreatedAt)
	if err != nil {
		return Organization{}, fmt.Errorf("orgaccess: insert organization: %w", err)
	}
	return org, nil
}

func (t *txRepo) InsertMembership(ctx context.Context, userID, orgID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO user_organizations (user_id, organization_id)
VALUES ($1, $2) ON CONFLICT (user_id, organization_id) DO NOTHING`, userID, orgID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("orgaccess: insert membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) LockMemberships(ctx context.Context, orgID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT user_id FROM user_organizations
WHERE organization_id = $1 ORDER BY user_id FOR UPDATE`, orgID)
	if err != nil {
		return nil, fmt.Errorf("orgaccess: lock memberships: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("orgaccess: lock memberships: %w", err)
	}
	return ids, nil
}

func (t *txRepo) DeleteMembership(ctx context.Context, userID, orgID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_organizations WHERE user_id = $1 AND organization_id = $2`, userID, orgID)
	if err != nil {
		return false, fmt.Errorf("orgaccess: delete membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
