package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/observability/metrics"
	"github.com/yourorg/credvault/internal/security"
)

// MembershipService is the transactional mutator for roles and membership
// sets. Every operation is gated on the actor being an admin, and every
// write goes through the repository's per-user serialized Mutate so
// concurrent grants and revocations on the same user never lose updates.
type MembershipService struct {
	users  domain.UserRepository
	groups domain.GroupRepository
	engine *security.Engine
	scopes ScopeCache // optional
	logger *slog.Logger
}

// NewMembershipService creates a new membership service. scopes may be nil.
func NewMembershipService(users domain.UserRepository, groups domain.GroupRepository, engine *security.Engine, scopes ScopeCache, logger *slog.Logger) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipService{
		users:  users,
		groups: groups,
		engine: engine,
		scopes: scopes,
		logger: logger,
	}
}

// ListUsers returns all user records; admin only
func (s *MembershipService) ListUsers(ctx context.Context, actor security.Principal) ([]*domain.User, error) {
	if err := authorize(s.engine, actor, security.ActionManageUsers, security.Target{}); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

// SetRole changes a user's role and nothing else: memberships are never
// granted or revoked as a side effect of a role change.
func (s *MembershipService) SetRole(ctx context.Context, actor security.Principal, targetUserID string, newRole domain.Role) (*domain.User, error) {
	if err := authorize(s.engine, actor, security.ActionManageUsers, security.Target{}); err != nil {
		metrics.ObserveMembershipMutation("set_role", "forbidden")
		return nil, err
	}
	if _, err := domain.ParseRole(string(newRole)); err != nil {
		metrics.ObserveMembershipMutation("set_role", "invalid")
		return nil, err
	}

	user, err := s.users.Mutate(ctx, targetUserID, func(u *domain.User) error {
		u.Role = newRole
		return nil
	})
	if err != nil {
		metrics.ObserveMembershipMutation("set_role", "error")
		return nil, err
	}

	metrics.ObserveMembershipMutation("set_role", "ok")
	s.logger.Info("role changed",
		slog.String("actor_id", actor.UserID),
		slog.String("user_id", targetUserID),
		slog.String("role", string(newRole)),
	)
	return user, nil
}

// AddDivision grants a division membership. Adding an existing membership
// is a no-op success.
func (s *MembershipService) AddDivision(ctx context.Context, actor security.Principal, targetUserID, divisionID string) (*domain.User, error) {
	return s.mutateMembership(ctx, actor, targetUserID, "add_division", func(u *domain.User) error {
		if _, err := s.groups.GetDivisionByID(ctx, divisionID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("division %s: %w", divisionID, domain.ErrInvalidReference)
			}
			return err
		}
		u.AddDivision(divisionID)
		return nil
	})
}

// RemoveDivision revokes a division membership. Removing an absent
// membership is a no-op success.
func (s *MembershipService) RemoveDivision(ctx context.Context, actor security.Principal, targetUserID, divisionID string) (*domain.User, error) {
	return s.mutateMembership(ctx, actor, targetUserID, "remove_division", func(u *domain.User) error {
		u.RemoveDivision(divisionID)
		return nil
	})
}

// AddUnit grants a unit membership; symmetric to AddDivision and just as
// independent: unit membership never implies division membership.
func (s *MembershipService) AddUnit(ctx context.Context, actor security.Principal, targetUserID, unitID string) (*domain.User, error) {
	return s.mutateMembership(ctx, actor, targetUserID, "add_unit", func(u *domain.User) error {
		if _, err := s.groups.GetUnitByID(ctx, unitID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("unit %s: %w", unitID, domain.ErrInvalidReference)
			}
			return err
		}
		u.AddUnit(unitID)
		return nil
	})
}

// RemoveUnit revokes a unit membership
func (s *MembershipService) RemoveUnit(ctx context.Context, actor security.Principal, targetUserID, unitID string) (*domain.User, error) {
	return s.mutateMembership(ctx, actor, targetUserID, "remove_unit", func(u *domain.User) error {
		u.RemoveUnit(unitID)
		return nil
	})
}

func (s *MembershipService) mutateMembership(ctx context.Context, actor security.Principal, targetUserID, operation string, fn func(*domain.User) error) (*domain.User, error) {
	if err := authorize(s.engine, actor, security.ActionManageUsers, security.Target{}); err != nil {
		metrics.ObserveMembershipMutation(operation, "forbidden")
		return nil, err
	}

	user, err := s.users.Mutate(ctx, targetUserID, fn)
	if err != nil {
		metrics.ObserveMembershipMutation(operation, "error")
		return nil, err
	}

	if s.scopes != nil {
		s.scopes.Invalidate(ctx, targetUserID)
	}

	metrics.ObserveMembershipMutation(operation, "ok")
	s.logger.Info("membership mutated",
		slog.String("actor_id", actor.UserID),
		slog.String("user_id", targetUserID),
		slog.String("operation", operation),
	)
	return user, nil
}
