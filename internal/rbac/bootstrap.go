package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/assetdesk/assetdesk/internal/shared"
)

// AccountProvisioner creates login accounts on behalf of the bootstrapper.
type AccountProvisioner interface {
	ValidateCredentials(username, password string) error
	EnsureUser(ctx context.Context, username, password string, tier shared.Tier) (int64, error)
}

// BootstrapOptions configures the default accounts.
type BootstrapOptions struct {
	AdminUsername  string
	AdminPassword  string
	ReaderEnabled  bool
	ReaderUsername string
	ReaderPassword string
}

// BootstrapResult reports what a bootstrap run created.
type BootstrapResult struct {
	Skipped      bool
	SuperAdminID int64
	AdminUserID  int64
	ReaderRoleID int64
	ReaderUserID int64
}

// Bootstrapper seeds the built-in roles and default accounts on an empty
// role store.
type Bootstrapper struct {
	Service  *Service
	Accounts AccountProvisioner
	Options  BootstrapOptions
	Logger   *slog.Logger
}

// Run creates SuperAdmin (id 0, every permission) and assigns it to the
// admin account, optionally followed by Reader and the reader account.
//
// Every credential is validated before the first write. Roles are created
// before any account, and each step reuses what an earlier run left, so a
// run that failed part way is completed by the next one. A store whose
// SuperAdmin already has a holder is left alone, as is a store holding
// roles but no SuperAdmin.
func (b Bootstrapper) Run(ctx context.Context) (BootstrapResult, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	superAdmin, found, err := b.findRole(ctx, SuperAdminRole)
	if err != nil {
		return BootstrapResult{}, err
	}
	var reader Role
	readerFound := false
	if b.Options.ReaderEnabled {
		if reader, readerFound, err = b.findRole(ctx, ReaderRole); err != nil {
			return BootstrapResult{}, err
		}
	}

	adminHeld := false
	if found {
		if adminHeld, err = b.held(ctx, superAdmin.ID); err != nil {
			return BootstrapResult{}, err
		}
		readerDone := !b.Options.ReaderEnabled || !readerFound
		if b.Options.ReaderEnabled && readerFound {
			if readerDone, err = b.held(ctx, reader.ID); err != nil {
				return BootstrapResult{}, err
			}
		}
		if adminHeld && readerDone {
			logger.Debug("rbac bootstrap skipped", slog.Int64("superadmin", superAdmin.ID))
			return BootstrapResult{Skipped: true}, nil
		}
		logger.Warn("rbac bootstrap: resuming incomplete run", slog.Bool("admin_assigned", adminHeld))
	} else {
		count, err := b.Service.repo.CountRoles(ctx)
		if err != nil {
			return BootstrapResult{}, err
		}
		if count > 0 {
			logger.Debug("rbac bootstrap skipped", slog.Int("roles", count))
			return BootstrapResult{Skipped: true}, nil
		}
	}

	if err := b.validate(!adminHeld); err != nil {
		return BootstrapResult{}, err
	}

	if !found {
		role := NewRole(SuperAdminRole, "Built-in role holding every permission", All()...)
		role.ID = 0
		if superAdmin, err = b.Service.Save(ctx, role); err != nil {
			return BootstrapResult{}, fmt.Errorf("rbac: bootstrap superadmin: %w", err)
		}
	}
	if b.Options.ReaderEnabled && !readerFound {
		if reader, err = b.Service.Save(ctx, NewRole(ReaderRole, "Built-in read-only role", ReadPermissions()...)); err != nil {
			return BootstrapResult{}, fmt.Errorf("rbac: bootstrap reader: %w", err)
		}
	}

	result := BootstrapResult{SuperAdminID: superAdmin.ID}
	if !adminHeld {
		adminID, err := b.provision(ctx, b.Options.AdminUsername, b.Options.AdminPassword, shared.TierAdmin, superAdmin.ID)
		if err != nil {
			return BootstrapResult{}, fmt.Errorf("rbac: bootstrap admin account: %w", err)
		}
		result.AdminUserID = adminID
		logger.Info("rbac bootstrap: superadmin assigned", slog.String("admin", b.Options.AdminUsername))
	}

	if !b.Options.ReaderEnabled {
		return result, nil
	}
	readerID, err := b.provision(ctx, b.Options.ReaderUsername, b.Options.ReaderPassword, shared.TierStandard, reader.ID)
	if err != nil {
		return result, fmt.Errorf("rbac: bootstrap reader account: %w", err)
	}
	result.ReaderRoleID = reader.ID
	result.ReaderUserID = readerID
	logger.Info("rbac bootstrap: reader assigned", slog.String("reader", b.Options.ReaderUsername))
	return result, nil
}

func (b Bootstrapper) validate(admin bool) error {
	if admin {
		if b.Options.AdminUsername == "" || b.Options.AdminPassword == "" {
			return errors.New("rbac: bootstrap: admin credentials required")
		}
		if err := b.Accounts.ValidateCredentials(b.Options.AdminUsername, b.Options.AdminPassword); err != nil {
			return fmt.Errorf("rbac: bootstrap admin account: %w", err)
		}
	}
	if !b.Options.ReaderEnabled {
		return nil
	}
	if b.Options.ReaderUsername == "" || b.Options.ReaderPassword == "" {
		return errors.New("rbac: bootstrap: reader credentials required")
	}
	if err := b.Accounts.ValidateCredentials(b.Options.ReaderUsername, b.Options.ReaderPassword); err != nil {
		return fmt.Errorf("rbac: bootstrap reader account: %w", err)
	}
	return nil
}

func (b Bootstrapper) findRole(ctx context.Context, name string) (Role, bool, error) {
	role, err := b.Service.FindByName(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		return Role{}, false, nil
	case err != nil:
		return Role{}, false, fmt.Errorf("rbac: bootstrap find %s: %w", name, err)
	}
	return role, true, nil
}

func (b Bootstrapper) held(ctx context.Context, roleID int64) (bool, error) {
	holders, err := b.Service.UsersWithRole(ctx, roleID)
	if err != nil {
		return false, fmt.Errorf("rbac: bootstrap holders of %d: %w", roleID, err)
	}
	return len(holders) > 0, nil
}

func (b Bootstrapper) provision(ctx context.Context, username, password string, tier shared.Tier, roleID int64) (int64, error) {
	id, err := b.Accounts.EnsureUser(ctx, username, password, tier)
	if err != nil {
		return 0, err
	}
	if err := b.Service.AssignRolesToUser(ctx, id, []int64{roleID}); err != nil {
		return 0, err
	}
	return id, nil
}
