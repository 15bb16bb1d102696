package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/credvault/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// SeedService provisions the demo hierarchy and users. It exists for
// development environments and is only routed when the seed feature flag is
// on. Seeding is idempotent: existing units and users are left alone.
type SeedService struct {
	users      domain.UserRepository
	groups     domain.GroupRepository
	bcryptCost int
	logger     *slog.Logger
}

// NewSeedService creates a new seed service
func NewSeedService(users domain.UserRepository, groups domain.GroupRepository, bcryptCost int, logger *slog.Logger) *SeedService {
	if logger == nil {
		logger = slog.Default()
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &SeedService{
		users:      users,
		groups:     groups,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

var seedUnitNames = []string{
	"News Management",
	"Software Reviews",
	"Hardware Reviews",
	"Opinion Publishing",
}

type seedUser struct {
	username string
	password string
	role     domain.Role
}

var seedUsers = []seedUser{
	{username: "adminUser", password: "admin123", role: domain.RoleAdmin},
	{username: "managerUser", password: "manager123", role: domain.RoleManagement},
	{username: "normalUser", password: "normal123", role: domain.RoleNormal},
}

// Seed creates the demo units, one general division per new unit, and the
// three demo users.
func (s *SeedService) Seed(ctx context.Context) error {
	for _, name := range seedUnitNames {
		if _, err := s.groups.GetUnitByName(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		unit := &domain.Unit{ID: uuid.NewString(), Name: name}
		if err := s.groups.CreateUnit(ctx, unit); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return err
		}

		division := &domain.Division{
			ID:     uuid.NewString(),
			Name:   name + " - General",
			UnitID: unit.ID,
		}
		if err := s.groups.CreateDivision(ctx, division); err != nil {
			return err
		}
		s.logger.Info("seeded unit",
			slog.String("unit", unit.Name),
			slog.String("division", division.Name),
		)
	}

	for _, su := range seedUsers {
		if _, err := s.users.GetByUsername(ctx, su.username); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(su.password), s.bcryptCost)
		if err != nil {
			return err
		}
		user := &domain.User{
			ID:           uuid.NewString(),
			Username:     su.username,
			PasswordHash: string(hash),
			Role:         su.role,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return err
		}
		s.logger.Info("seeded user",
			slog.String("username", su.username),
			slog.String("role", string(su.role)),
		)
	}

	return nil
}
