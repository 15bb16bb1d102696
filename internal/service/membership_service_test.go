package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/repository"
	"github.com/yourorg/credvault/internal/security"
)

type membershipFixture struct {
	svc    *MembershipService
	users  *repository.MemoryUserRepository
	groups *repository.MemoryGroupRepository
	admin  security.Principal
	target *domain.User
	div    *domain.Division
	unit   *domain.Unit
}

func newMembershipFixture(t *testing.T) *membershipFixture {
	t.Helper()
	ctx := context.Background()

	users := repository.NewMemoryUserRepository()
	groups := repository.NewMemoryGroupRepository()

	unit := &domain.Unit{Name: "News Management"}
	if err := groups.CreateUnit(ctx, unit); err != nil {
		t.Fatalf("create unit failed: %v", err)
	}
	div := &domain.Division{Name: "News Management - General", UnitID: unit.ID}
	if err := groups.CreateDivision(ctx, div); err != nil {
		t.Fatalf("create division failed: %v", err)
	}

	target := &domain.User{Username: "worker", PasswordHash: "x", Role: domain.RoleNormal}
	if err := users.Create(ctx, target); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	return &membershipFixture{
		svc:    NewMembershipService(users, groups, security.NewEngine(nil), NewMemoryScopeCache(), nil),
		users:  users,
		groups: groups,
		admin:  security.Principal{UserID: "admin-1", Role: domain.RoleAdmin},
		target: target,
		div:    div,
		unit:   unit,
	}
}

func TestMembershipMutationsRequireAdmin(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	for _, role := range []domain.Role{domain.RoleNormal, domain.RoleManagement} {
		actor := security.Principal{UserID: "a", Role: role}

		if _, err := f.svc.AddDivision(ctx, actor, f.target.ID, f.div.ID); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("%s add division: expected forbidden, got %v", role, err)
		}
		if _, err := f.svc.SetRole(ctx, actor, f.target.ID, domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("%s set role: expected forbidden, got %v", role, err)
		}
		if _, err := f.svc.ListUsers(ctx, actor); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("%s list users: expected forbidden, got %v", role, err)
		}
	}
}

func TestAddDivisionIsIdempotent(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	first, err := f.svc.AddDivision(ctx, f.admin, f.target.ID, f.div.ID)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	second, err := f.svc.AddDivision(ctx, f.admin, f.target.ID, f.div.ID)
	if err != nil {
		t.Fatalf("second add must be a no-op success, got %v", err)
	}
	if !reflect.DeepEqual(first.Divisions, second.Divisions) {
		t.Fatalf("idempotence violated: %v vs %v", first.Divisions, second.Divisions)
	}
	if len(second.Divisions) != 1 {
		t.Fatalf("expected single membership, got %v", second.Divisions)
	}
}

func TestAddRemoveDivisionRoundTrip(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	before, err := f.users.GetByID(ctx, f.target.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if _, err := f.svc.AddDivision(ctx, f.admin, f.target.ID, f.div.ID); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	after, err := f.svc.RemoveDivision(ctx, f.admin, f.target.ID, f.div.ID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(after.Divisions) != len(before.Divisions) {
		t.Fatalf("round trip did not restore membership set: %v", after.Divisions)
	}

	// Removing again is still a success.
	if _, err := f.svc.RemoveDivision(ctx, f.admin, f.target.ID, f.div.ID); err != nil {
		t.Fatalf("removing absent membership must be a no-op success, got %v", err)
	}
}

func TestAddDivisionRejectsUnknownDivision(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddDivision(ctx, f.admin, f.target.ID, "no-such-division")
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}

	got, _ := f.users.GetByID(ctx, f.target.ID)
	if len(got.Divisions) != 0 {
		t.Fatalf("failed grant must not persist: %v", got.Divisions)
	}
}

func TestUnitMembershipIndependentOfDivisions(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	got, err := f.svc.AddUnit(ctx, f.admin, f.target.ID, f.unit.ID)
	if err != nil {
		t.Fatalf("add unit failed: %v", err)
	}
	if len(got.Units) != 1 || len(got.Divisions) != 0 {
		t.Fatalf("unit grant must not touch divisions: %+v", got)
	}

	if _, err := f.svc.AddUnit(ctx, f.admin, f.target.ID, "no-such-unit"); !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected invalid reference for unknown unit, got %v", err)
	}

	got, err = f.svc.RemoveUnit(ctx, f.admin, f.target.ID, f.unit.ID)
	if err != nil {
		t.Fatalf("remove unit failed: %v", err)
	}
	if len(got.Units) != 0 {
		t.Fatalf("expected unit membership removed, got %v", got.Units)
	}
}

func TestSetRoleHasNoMembershipSideEffects(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	if _, err := f.svc.AddDivision(ctx, f.admin, f.target.ID, f.div.ID); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	got, err := f.svc.SetRole(ctx, f.admin, f.target.ID, domain.RoleManagement)
	if err != nil {
		t.Fatalf("set role failed: %v", err)
	}
	if got.Role != domain.RoleManagement {
		t.Fatalf("expected management role, got %s", got.Role)
	}
	if len(got.Divisions) != 1 {
		t.Fatalf("role change must not touch memberships: %v", got.Divisions)
	}

	if _, err := f.svc.SetRole(ctx, f.admin, f.target.ID, domain.Role("superuser")); err == nil {
		t.Fatalf("expected rejection of role outside the closed enum")
	}
}

func TestConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	other := &domain.Division{Name: "Second", UnitID: f.unit.ID}
	if err := f.groups.CreateDivision(ctx, other); err != nil {
		t.Fatalf("create division failed: %v", err)
	}

	var wg sync.WaitGroup
	for _, divID := range []string{f.div.ID, other.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.svc.AddDivision(ctx, f.admin, f.target.ID, id); err != nil {
				t.Errorf("concurrent add failed: %v", err)
			}
		}(divID)
	}
	wg.Wait()

	got, err := f.users.GetByID(ctx, f.target.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Divisions) != 2 {
		t.Fatalf("lost update: expected both divisions, got %v", got.Divisions)
	}
}

func TestConcurrentAddRemoveConverges(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	// Interleave adds and removes of the same division; each operation is
	// serialized per user, so the final state must equal the state after
	// some total order of the operations, i.e. present or absent, never
	// duplicated or corrupted.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.AddDivision(ctx, f.admin, f.target.ID, f.div.ID); err != nil {
				t.Errorf("add failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := f.svc.RemoveDivision(ctx, f.admin, f.target.ID, f.div.ID); err != nil {
				t.Errorf("remove failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := f.users.GetByID(ctx, f.target.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Divisions) > 1 {
		t.Fatalf("membership set corrupted: %v", got.Divisions)
	}
}
