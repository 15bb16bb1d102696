package domain

import (
	"context"
	"fmt"
	"time"
)

// Role is the closed set of capability tiers. Anything else is rejected at
// the boundary by ParseRole and never propagates into the system.
type Role string

const (
	RoleNormal     Role = "normal"
	RoleManagement Role = "management"
	RoleAdmin      Role = "admin"
)

// ParseRole validates a raw role string against the closed enumeration.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleNormal, RoleManagement, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q: %w", s, ErrInvalidInput)
	}
}

// User represents an account holder. Division and unit memberships are
// independent sets of entity IDs; membership in one tier never implies
// membership in the other.
type User struct {
	ID           string // UUID
	Username     string // Unique username
	PasswordHash string // Bcrypt hashed password (not returned in API)
	Role         Role
	Divisions    []string // Division IDs the user may see credentials for
	Units        []string // Unit IDs the user belongs to
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasDivision reports whether divisionID is in the user's division set.
func (u *User) HasDivision(divisionID string) bool {
	return contains(u.Divisions, divisionID)
}

// HasUnit reports whether unitID is in the user's unit set.
func (u *User) HasUnit(unitID string) bool {
	return contains(u.Units, unitID)
}

// AddDivision adds divisionID to the division set. Idempotent; returns true
// if the set changed.
func (u *User) AddDivision(divisionID string) bool {
	if contains(u.Divisions, divisionID) {
		return false
	}
	u.Divisions = append(u.Divisions, divisionID)
	return true
}

// RemoveDivision removes divisionID from the division set. Removing an
// absent entry is a no-op; returns true if the set changed.
func (u *User) RemoveDivision(divisionID string) bool {
	next, changed := remove(u.Divisions, divisionID)
	u.Divisions = next
	return changed
}

// AddUnit adds unitID to the unit set. Idempotent; returns true if the set
// changed.
func (u *User) AddUnit(unitID string) bool {
	if contains(u.Units, unitID) {
		return false
	}
	u.Units = append(u.Units, unitID)
	return true
}

// RemoveUnit removes unitID from the unit set. No-op when absent.
func (u *User) RemoveUnit(unitID string) bool {
	next, changed := remove(u.Units, unitID)
	u.Units = next
	return changed
}

// Clone returns a deep copy so callers can mutate without aliasing store
// state.
func (u *User) Clone() *User {
	cp := *u
	cp.Divisions = append([]string(nil), u.Divisions...)
	cp.Units = append([]string(nil), u.Units...)
	return &cp
}

// UserRepository defines data access for users. Create enforces username
// uniqueness (ErrConflict). Mutate runs fn against the current record under
// per-user serialization: concurrent calls for the same ID are linearized,
// calls for distinct IDs proceed independently.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Mutate(ctx context.Context, id string, fn func(*User) error) (*User, error)
}

func contains(set []string, id string) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

func remove(set []string, id string) ([]string, bool) {
	for i, v := range set {
		if v == id {
			return append(set[:i:i], set[i+1:]...), true
		}
	}
	return set, false
}
