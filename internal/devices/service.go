package devices

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/assetdesk/assetdesk/internal/orgaccess"
	"github.com/assetdesk/assetdesk/internal/shared"
)

// Service lists and removes devices within the caller's organization scope.
type Service struct {
	repo   RepositoryPort
	scopes Scoper
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, scopes Scoper, audit AuditPort, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, scopes: scopes, audit: audit, logger: logger}
}

// The tier cached in the session is ignored; scope always follows the
// user record.
func (s *Service) scopeFor(ctx context.Context, principal shared.Principal, orgFilter *int64) (orgaccess.ScopeParams, error) {
	return s.scopes.Scope(ctx, principal.UserID, orgFilter)
}

// List returns the devices the principal may see, optionally restricted to
// one organization.
func (s *Service) List(ctx context.Context, principal shared.Principal, orgFilter *int64) ([]Device, error) {
	scope, err := s.scopeFor(ctx, principal, orgFilter)
	if err != nil {
		return nil, err
	}
	devices, err := s.repo.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// Get returns a visible device or ErrNotFound.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Device, error) {
	scope, err := s.scopeFor(ctx, principal, nil)
	if err != nil {
		return Device{}, err
	}
	return s.repo.Get(ctx, id, scope)
}

// Delete removes a visible device. Foreign devices yield ErrNotFound.
func (s *Service) Delete(ctx context.Context, principal shared.Principal, id int64) error {
	scope, err := s.scopeFor(ctx, principal, nil)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id, scope)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.UserID,
		Action:   "device.delete",
		Entity:   "device",
		EntityID: strconv.FormatInt(id, 10),
	}); err != nil {
		s.logger.Error("devices: audit", slog.Any("error", err))
	}
	return nil
}
