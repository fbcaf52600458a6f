package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assetdesk/assetdesk/internal/orgaccess"
)

// Repository provides PostgreSQL backed device persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectDevices = `SELECT d.id, d.name, d.kind, d.serial_number, d.location, d.organization_id, d.created_at FROM devices d`

// List returns the devices visible under scope ordered by name.
func (r *Repository) List(ctx context.Context, scope orgaccess.ScopeParams) ([]Device, error) {
	scope.Alias = "d"
	query, args, err := orgaccess.BuildScopedQuery(selectDevices, scope)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query+" ORDER BY d.name, d.id", args...)
	if err != nil {
		return nil, fmt.Errorf("devices: list: %w", err)
	}
	devices, err := pgx.CollectRows(rows, scanDevice)
	if err != nil {
		return nil, fmt.Errorf("devices: list: %w", err)
	}
	return devices, nil
}

// Get fetches a device if it is visible under scope.
func (r *Repository) Get(ctx context.Context, id int64, scope orgaccess.ScopeParams) (Device, error) {
	scope.Alias = "d"
	scope.Where, scope.Args = "d.id = $1", []any{id}
	query, args, err := orgaccess.BuildScopedQuery(selectDevices, scope)
	if err != nil {
		return Device{}, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return Device{}, fmt.Errorf("devices: get: %w", err)
	}
	device, err := pgx.CollectExactlyOneRow(rows, scanDevice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Device{}, ErrNotFound
		}
		return Device{}, fmt.Errorf("devices: get: %w", err)
	}
	return device, nil
}

// Delete removes a device if it is visible under scope.
func (r *Repository) Delete(ctx context.Context, id int64, scope orgaccess.ScopeParams) (bool, error) {
	scope.Alias = "d"
	scope.Where, scope.Args = "d.id = $1", []any{id}
	query, args, err := orgaccess.BuildScopedQuery("DELETE FROM devices d", scope)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("devices: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanDevice(row pgx.CollectableRow) (Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.Name, &d.Kind, &d.SerialNumber, &d.Location, &d.OrganizationID, &d.CreatedAt)
	return d, err
}
