package orgaccess

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/assetdesk/assetdesk/internal/platform/db"
	"github.com/assetdesk/assetdesk/internal/shared"
)

const revokeAttempts = 3

// Service decides organization visibility and manages memberships. It is
// independent of the permission model: the tier is the only input that
// bypasses memberships.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// IsElevated reports whether the tier bypasses organization scoping.
func (s *Service) IsElevated(tier shared.Tier) bool {
	return tier.Elevated()
}

// HasAccess reports whether the user may see records of the organization.
// Unknown users and unknown organizations yield false.
func (s *Service) HasAccess(ctx context.Context, userID, orgID int64) (bool, error) {
	tier, ok, err := s.repo.UserTier(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	if s.IsElevated(tier) {
		return s.repo.OrganizationExists(ctx, orgID)
	}
	return s.repo.MembershipExists(ctx, userID, orgID)
}

// Scope builds the ScopeParams for a listing by userID, reading the tier
// from the user record rather than from the session so a demotion applies
// on the next request. Unknown users are scoped as standard accounts.
func (s *Service) Scope(ctx context.Context, userID int64, orgFilter *int64) (ScopeParams, error) {
	tier, ok, err := s.repo.UserTier(ctx, userID)
	if err != nil {
		return ScopeParams{}, fmt.Errorf("orgaccess: scope for user %d: %w", userID, err)
	}
	if !ok {
		tier = shared.TierStandard
	}
	return ScopeParams{UserID: userID, Tier: tier, OrganizationID: orgFilter}, nil
}

// ListVisibleOrganizations returns every organization for elevated users
// asking for all of them, otherwise only the user's memberships. Both are
// ordered by name.
func (s *Service) ListVisibleOrganizations(ctx context.Context, userID int64, includeAll bool) ([]Organization, error) {
	tier, ok, err := s.repo.UserTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Organization{}, nil
	}
	if includeAll && s.IsElevated(tier) {
		return s.repo.ListOrganizations(ctx)
	}
	return s.repo.ListUserOrganizations(ctx, userID)
}

// GetOrganization returns an organization.
func (s *Service) GetOrganization(ctx context.Context, orgID int64) (Organization, error) {
	return s.repo.GetOrganization(ctx, orgID)
}

// ListMembers returns the memberships of an organization.
func (s *Service) ListMembers(ctx context.Context, orgID int64) ([]Membership, error) {
	return s.repo.ListMembers(ctx, orgID)
}

// CreateOrganization inserts the organization and grants the creator a
// membership in the same transaction.
func (s *Service) CreateOrganization(ctx context.Context, creatorID int64, org Organization) (Organization, error) {
	org.Name = strings.TrimSpace(org.Name)
	if org.Name == "" {
		return Organization{}, fmt.Errorf("%w: name required", ErrInvalidOrganization)
	}
	var created Organization
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertOrganization(ctx, org)
		if err != nil {
			return err
		}
		_, err = tx.InsertMembership(ctx, creatorID, created.ID)
		return err
	})
	if err != nil {
		return Organization{}, err
	}
	s.record(ctx, creatorID, "organization.create", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// GrantAccess adds a membership. Granting an existing membership is a no-op.
func (s *Service) GrantAccess(ctx context.Context, actorID, userID, orgID int64) error {
	var inserted bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inserted, err = tx.InsertMembership(ctx, userID, orgID)
		return err
	})
	if err != nil {
		return err
	}
	if inserted {
		s.record(ctx, actorID, "organization.member.grant", orgID, map[string]any{"user_id": userID})
	}
	return nil
}

// RevokeAccess removes a membership. An actor removing their own
// membership when it is the last one of the organization is refused with
// ErrLastMembership and nothing changes.
func (s *Service) RevokeAccess(ctx context.Context, actorID, userID, orgID int64) error {
	var err error
	for attempt := 1; attempt <= revokeAttempts; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			members, err := tx.LockMemberships(ctx, orgID)
			if err != nil {
				return err
			}
			if !slices.Contains(members, userID) {
				return ErrNotFound
			}
			if actorID == userID && len(members) == 1 {
				return ErrLastMembership
			}
			_, err = tx.DeleteMembership(ctx, userID, orgID)
			return err
		})
		if !db.IsSerializationFailure(err) {
			break
		}
		s.logger.Debug("orgaccess: revoke retry", slog.Int("attempt", attempt), slog.Int64("organization_id", orgID))
	}
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "organization.member.revoke", orgID, map[string]any{"user_id": userID})
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, orgID int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "organization",
		EntityID: strconv.FormatInt(orgID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Error("orgaccess: audit", slog.String("action", action), slog.Any("error", err))
	}
}
