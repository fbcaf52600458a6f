package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assetdesk/assetdesk/internal/platform/db"
)

// Repository provides PostgreSQL backed role persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
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

const selectRoles = `
SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
       COALESCE(array_agg(rp.permission ORDER BY rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}')
FROM roles r
LEFT JOIN roles_to_permissions rp ON rp.role_id = r.id`

// CountRoles returns the number of persisted roles.
func (r *Repository) CountRoles(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("rbac: count roles: %w", err)
	}
	return n, nil
}

// ListRoles returns every role ordered by id with its permissions.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, selectRoles+` GROUP BY r.id ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return getRole(ctx, r.pool, selectRoles+` WHERE r.id = $1 GROUP BY r.id`, id)
}

// GetRoleByName fetches a role by its exact name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return getRole(ctx, r.pool, selectRoles+` WHERE r.name = $1 GROUP BY r.id`, name)
}

// UserRoleIDs returns the role ids assigned to a user.
func (r *Repository) UserRoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	return collectIDs(ctx, r.pool, `SELECT role_id FROM roles_to_user WHERE user_id = $1 ORDER BY role_id`, userID)
}

// UserIDsWithRole returns the users holding a role.
func (r *Repository) UserIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	return collectIDs(ctx, r.pool, `SELECT user_id FROM roles_to_user WHERE role_id = $1 ORDER BY user_id`, roleID)
}

func (t *txRepo) RoleNameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1 AND id <> $2)`, name, exceptID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("rbac: check role name: %w", err)
	}
	return taken, nil
}

func (t *txRepo) InsertRole(ctx context.Context, role Role) (Role, error) {
	var row pgx.Row
	if role.HasID() {
		row = t.tx.QueryRow(ctx, `INSERT INTO roles (id, name, description) VALUES ($1, $2, $3)
RETURNING id, created_at, updated_at`, role.ID, role.Name, role.Description)
	} else {
		row = t.tx.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2)
RETURNING id, created_at, updated_at`, role.Name, role.Description)
	}
	if err := row.Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrConflict
		}
		return Role{}, fmt.Errorf("rbac: insert role: %w", err)
	}
	return role, nil
}

func (t *txRepo) UpdateRole(ctx context.Context, role Role) (Role, error) {
	err := t.tx.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW()
WHERE id = $1 RETURNING created_at, updated_at`, role.ID, role.Name, role.Description).Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return Role{}, ErrConflict
		}
		return Role{}, fmt.Errorf("rbac: update role: %w", err)
	}
	return role, nil
}

func (t *txRepo) ReplaceRolePermissions(ctx context.Context, roleID int64, perms []Permission) error {
	if err := t.DeleteRolePermissions(ctx, roleID); err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}
	tokens := make([]string, len(perms))
	for i, p := range perms {
		tokens[i] = string(p)
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO roles_to_permissions (role_id, permission)
SELECT $1, unnest($2::text[])`, roleID, tokens)
	if err != nil {
		return fmt.Errorf("rbac: insert role permissions: %w", err)
	}
	return nil
}

func (t *txRepo) DeleteRolePermissions(ctx context.Context, roleID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM roles_to_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("rbac: delete role permissions: %w", err)
	}
	return nil
}

func (t *txRepo) DeleteRoleAssignments(ctx context.Context, roleID int64) ([]int64, error) {
	return collectIDs(ctx, t.tx, `DELETE FROM roles_to_user WHERE role_id = $1 RETURNING user_id`, roleID)
}

func (t *txRepo) DeleteRole(ctx context.Context, roleID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return false, fmt.Errorf("rbac: delete role: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) ExistingRoleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return collectIDs(ctx, t.tx, `SELECT id FROM roles WHERE id = ANY($1) ORDER BY id`, ids)
}

func (t *txRepo) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM roles_to_user WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("rbac: clear user roles: %w", err)
	}
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO roles_to_user (role_id, user_id)
SELECT unnest($2::bigint[]), $1`, userID, roleIDs)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("rbac: assign roles to user %d: %w", userID, ErrUnknownUser)
		}
		return fmt.Errorf("rbac: insert user roles: %w", err)
	}
	return nil
}

func getRole(ctx context.Context, q querier, sql string, arg any) (Role, error) {
	role, err := scanRole(q.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role   Role
		tokens []string
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &tokens); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, err
		}
		return Role{}, fmt.Errorf("rbac: scan role: %w", err)
	}
	role.Permissions = make(PermissionSet, len(tokens))
	for _, token := range tokens {
		role.Permissions[Permission(strings.TrimSpace(token))] = struct{}{}
	}
	return role, nil
}

func collectIDs(ctx context.Context, q querier, sql string, args ...any) ([]int64, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("rbac: query ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("rbac: collect ids: %w", err)
	}
	return ids, nil
}
