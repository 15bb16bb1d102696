package domain

import (
	"context"
	"time"
)

// Unit is a top-level organizational grouping. Name is unique; units are
// immutable after creation.
type Unit struct {
	ID        string // UUID
	Name      string // Unique unit name
	CreatedAt time.Time
}

// Division is the scoping boundary for credentials. Every division belongs
// to exactly one unit, fixed at creation.
type Division struct {
	ID        string // UUID
	Name      string
	UnitID    string // Owning unit, required, immutable
	CreatedAt time.Time
}

// DivisionFilter narrows division listings. A nil IDs slice means no
// filtering; an empty non-nil slice matches nothing.
type DivisionFilter struct {
	IDs []string
}

// GroupRepository defines data access for the two-tier group hierarchy.
// CreateDivision fails with ErrInvalidReference when the owning unit does
// not exist.
type GroupRepository interface {
	ListUnits(ctx context.Context) ([]*Unit, error)
	GetUnitByID(ctx context.Context, id string) (*Unit, error)
	GetUnitByName(ctx context.Context, name string) (*Unit, error)
	CreateUnit(ctx context.Context, unit *Unit) error
	ListDivisions(ctx context.Context, filter DivisionFilter) ([]*Division, error)
	GetDivisionByID(ctx context.Context, id string) (*Division, error)
	CreateDivision(ctx context.Context, division *Division) error
}
