package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/assetdesk/assetdesk/internal/shared"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 100
)

// AuditPort records account changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	cost   int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// SetHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) SetHashCost(cost int) {
	s.cost = cost
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ValidateCredentials applies the account rules EnsureUser enforces
// without touching the store.
func (s *Service) ValidateCredentials(username, password string) error {
	username = shared.NormalizeUsername(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidUser, maxUsernameLength)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, minPasswordLength)
	}
	return nil
}

// EnsureUser creates the account when the username is free and returns
// the id of the account holding it.
func (s *Service) EnsureUser(ctx context.Context, username, password string, tier shared.Tier) (int64, error) {
	if err := s.ValidateCredentials(username, password); err != nil {
		return 0, err
	}
	username = shared.NormalizeUsername(username)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	id, inserted, err := s.repo.UpsertUser(ctx, username, string(hash), tier)
	if err != nil {
		return 0, err
	}
	if inserted {
		s.logger.Info("user account created", slog.Int64("user_id", id), slog.String("username", username), slog.String("tier", tier.String()))
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "user.create",
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"username": username, "tier": tier.String()},
		}); err != nil {
			s.logger.Error("users: audit", slog.String("action", "user.create"), slog.Any("error", err))
		}
	}
	return id, nil
}
