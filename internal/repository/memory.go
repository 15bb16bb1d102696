package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/credvault/internal/domain"
)

// MemoryUserRepository is an in-memory domain.UserRepository used in dev
// mode and tests. Per-user serialization for Mutate comes from a mutex on
// each record, so mutations of distinct users never contend.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*userRecord
	byUsername map[string]string // username -> id
}

type userRecord struct {
	mu   sync.Mutex
	user *domain.User
}

// NewMemoryUserRepository creates an empty in-memory user repository
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       map[string]*userRecord{},
		byUsername: map[string]string{},
	}
}

// Create inserts a new user, enforcing username uniqueness under the store
// lock so concurrent creates for the same username cannot both succeed.
func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[user.Username]; taken {
		return fmt.Errorf("username %q taken: %w", user.Username, domain.ErrConflict)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.byID[user.ID] = &userRecord{user: user.Clone()}
	r.byUsername[user.Username] = user.ID
	return nil
}

// GetByID returns a copy of the user record
func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	rec, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.user.Clone(), nil
}

// GetByUsername returns a copy of the user record
func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	id, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

// List returns copies of all users ordered by username
func (r *MemoryUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	records := make([]*userRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	out := make([]*domain.User, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		out = append(out, rec.user.Clone())
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Mutate applies fn under the record mutex: each mutation of a given user
// reads the current state, modifies it, and writes it back before the next
// one starts, so concurrent membership changes never lose updates.
func (r *MemoryUserRepository) Mutate(ctx context.Context, id string, fn func(*domain.User) error) (*domain.User, error) {
	r.mu.RLock()
	rec, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	next := rec.user.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	rec.user = next
	return next.Clone(), nil
}

// MemoryGroupRepository is an in-memory domain.GroupRepository
type MemoryGroupRepository struct {
	mu          sync.RWMutex
	units       map[string]*domain.Unit
	unitsByName map[string]string
	divisions   map[string]*domain.Division
}

// NewMemoryGroupRepository creates an empty in-memory group repository
func NewMemoryGroupRepository() *MemoryGroupRepository {
	return &MemoryGroupRepository{
		units:       map[string]*domain.Unit{},
		unitsByName: map[string]string{},
		divisions:   map[string]*domain.Division{},
	}
}

func (r *MemoryGroupRepository) ListUnits(ctx context.Context) ([]*domain.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Unit, 0, len(r.units))
	for _, u := range r.units {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryGroupRepository) GetUnitByID(ctx context.Context, id string) (*domain.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[id]
	if !ok {
		return nil, fmt.Errorf("unit %s: %w", id, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryGroupRepository) GetUnitByName(ctx context.Context, name string) (*domain.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.unitsByName[name]
	if !ok {
		return nil, fmt.Errorf("unit %q: %w", name, domain.ErrNotFound)
	}
	cp := *r.units[id]
	return &cp, nil
}

func (r *MemoryGroupRepository) CreateUnit(ctx context.Context, unit *domain.Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.unitsByName[unit.Name]; taken {
		return fmt.Errorf("unit %q exists: %w", unit.Name, domain.ErrConflict)
	}
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	unit.CreatedAt = time.Now()
	cp := *unit
	r.units[unit.ID] = &cp
	r.unitsByName[unit.Name] = unit.ID
	return nil
}

func (r *MemoryGroupRepository) ListDivisions(ctx context.Context, filter domain.DivisionFilter) ([]*domain.Division, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := map[string]bool{}
	for _, id := range filter.IDs {
		wanted[id] = true
	}

	var out []*domain.Division
	for _, d := range r.divisions {
		if filter.IDs != nil && !wanted[d.ID] {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryGroupRepository) GetDivisionByID(ctx context.Context, id string) (*domain.Division, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.divisions[id]
	if !ok {
		return nil, fmt.Errorf("division %s: %w", id, domain.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryGroupRepository) CreateDivision(ctx context.Context, division *domain.Division) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[division.UnitID]; !ok {
		return fmt.Errorf("unit %s: %w", division.UnitID, domain.ErrInvalidReference)
	}
	if division.ID == "" {
		division.ID = uuid.NewString()
	}
	division.CreatedAt = time.Now()
	cp := *division
	r.divisions[division.ID] = &cp
	return nil
}

// MemoryCredentialRepository is an in-memory domain.CredentialRepository
type MemoryCredentialRepository struct {
	mu          sync.RWMutex
	credentials map[string]*domain.Credential
	groups      *MemoryGroupRepository
}

// NewMemoryCredentialRepository creates an in-memory credential repository.
// The group repository is consulted to reject credentials referencing
// divisions that do not exist.
func NewMemoryCredentialRepository(groups *MemoryGroupRepository) *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		credentials: map[string]*domain.Credential{},
		groups:      groups,
	}
}

func (r *MemoryCredentialRepository) Create(ctx context.Context, credential *domain.Credential) error {
	if _, err := r.groups.GetDivisionByID(ctx, credential.DivisionID); err != nil {
		return fmt.Errorf("division %s: %w", credential.DivisionID, domain.ErrInvalidReference)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if credential.ID == "" {
		credential.ID = uuid.NewString()
	}
	now := time.Now()
	credential.CreatedAt = now
	credential.UpdatedAt = now
	cp := *credential
	r.credentials[credential.ID] = &cp
	return nil
}

func (r *MemoryCredentialRepository) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.credentials[id]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", id, domain.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCredentialRepository) ListByDivision(ctx context.Context, divisionID string) ([]*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Credential
	for _, c := range r.credentials {
		if c.DivisionID == divisionID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteName < out[j].SiteName })
	return out, nil
}

func (r *MemoryCredentialRepository) Update(ctx context.Context, credential *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.credentials[credential.ID]
	if !ok {
		return fmt.Errorf("credential %s: %w", credential.ID, domain.ErrNotFound)
	}
	existing.SiteName = credential.SiteName
	existing.Username = credential.Username
	existing.Secret = credential.Secret
	existing.UpdatedAt = time.Now()
	*credential = *existing
	return nil
}
