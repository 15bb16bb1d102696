package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/security"
)

// DirectoryService exposes the unit/division hierarchy, scope-filtered by
// the authorization engine.
type DirectoryService struct {
	groups domain.GroupRepository
	engine *security.Engine
	scopes ScopeCache // optional
	logger *slog.Logger
}

// NewDirectoryService creates a new directory service. scopes may be nil to
// disable caching.
func NewDirectoryService(groups domain.GroupRepository, engine *security.Engine, scopes ScopeCache, logger *slog.Logger) *DirectoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryService{
		groups: groups,
		engine: engine,
		scopes: scopes,
		logger: logger,
	}
}

// ListDivisions returns the divisions visible to the principal. Admins see
// all divisions; everyone else sees exactly their membership set. An empty
// membership set yields an empty list, never an error.
func (s *DirectoryService) ListDivisions(ctx context.Context, p security.Principal) ([]*domain.Division, error) {
	if err := authorize(s.engine, p, security.ActionListDivisions, security.Target{}); err != nil {
		return nil, err
	}

	scope := s.engine.DivisionScope(p)
	if scope.All {
		return s.groups.ListDivisions(ctx, domain.DivisionFilter{})
	}

	if s.scopes != nil {
		if divisions, ok := s.scopes.Get(ctx, p.UserID); ok {
			return divisions, nil
		}
	}

	ids := scope.DivisionIDs
	if ids == nil {
		ids = []string{}
	}
	divisions, err := s.groups.ListDivisions(ctx, domain.DivisionFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	if s.scopes != nil {
		s.scopes.Set(ctx, p.UserID, divisions)
	}
	return divisions, nil
}

// ListUnits returns all units; admin only, matching the original admin
// endpoint rather than the scope-filtered division listing.
func (s *DirectoryService) ListUnits(ctx context.Context, p security.Principal) ([]*domain.Unit, error) {
	if err := authorize(s.engine, p, security.ActionManageUsers, security.Target{}); err != nil {
		return nil, err
	}
	return s.groups.ListUnits(ctx)
}

// CreateUnit creates a unit, idempotently by name: if the unit already
// exists it is returned as-is, including when a concurrent create wins the
// race.
func (s *DirectoryService) CreateUnit(ctx context.Context, p security.Principal, name string) (*domain.Unit, error) {
	if err := authorize(s.engine, p, security.ActionManageUsers, security.Target{}); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("unit name is required: %w", domain.ErrInvalidInput)
	}
	return s.createUnitByName(ctx, name)
}

func (s *DirectoryService) createUnitByName(ctx context.Context, name string) (*domain.Unit, error) {
	if existing, err := s.groups.GetUnitByName(ctx, name); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	unit := &domain.Unit{ID: uuid.NewString(), Name: name}
	err := s.groups.CreateUnit(ctx, unit)
	if errors.Is(err, domain.ErrConflict) {
		// Lost the race to a concurrent create; the winner's record is the
		// result.
		return s.groups.GetUnitByName(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("unit created",
		slog.String("unit_id", unit.ID),
		slog.String("name", unit.Name),
	)
	return unit, nil
}

// CreateDivision creates a division under an existing unit
func (s *DirectoryService) CreateDivision(ctx context.Context, p security.Principal, name, unitID string) (*domain.Division, error) {
	if err := authorize(s.engine, p, security.ActionManageUsers, security.Target{}); err != nil {
		return nil, err
	}
	if name == "" || unitID == "" {
		return nil, fmt.Errorf("division name and unit id are required: %w", domain.ErrInvalidInput)
	}

	division := &domain.Division{ID: uuid.NewString(), Name: name, UnitID: unitID}
	if err := s.groups.CreateDivision(ctx, division); err != nil {
		return nil, err
	}

	// New divisions may appear in any admin's listing immediately; cached
	// scopes for non-admins are unaffected but cheap to refresh.
	if s.scopes != nil {
		s.scopes.InvalidateAll(ctx)
	}

	s.logger.Info("division created",
		slog.String("division_id", division.ID),
		slog.String("unit_id", division.UnitID),
		slog.String("name", division.Name),
	)
	return division, nil
}
