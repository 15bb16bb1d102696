package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/repository"
	"github.com/yourorg/credvault/internal/security"
	"github.com/yourorg/credvault/internal/security/cipher"
)

type credentialFixture struct {
	svc    *CredentialService
	creds  *repository.MemoryCredentialRepository
	divA   *domain.Division
	divB   *domain.Division
	member security.Principal
}

func newCredentialFixture(t *testing.T, codec cipher.SecretCodec) *credentialFixture {
	t.Helper()
	ctx := context.Background()

	groups := repository.NewMemoryGroupRepository()
	unit := &domain.Unit{Name: "News Management"}
	if err := groups.CreateUnit(ctx, unit); err != nil {
		t.Fatalf("create unit failed: %v", err)
	}
	divA := &domain.Division{Name: "News Management - General", UnitID: unit.ID}
	divB := &domain.Division{Name: "News Management - Breaking", UnitID: unit.ID}
	for _, d := range []*domain.Division{divA, divB} {
		if err := groups.CreateDivision(ctx, d); err != nil {
			t.Fatalf("create division failed: %v", err)
		}
	}

	creds := repository.NewMemoryCredentialRepository(groups)
	return &credentialFixture{
		svc:   NewCredentialService(creds, security.NewEngine(nil), codec, nil),
		creds: creds,
		divA:  divA,
		divB:  divB,
		member: security.Principal{
			UserID:    "u",
			Role:      domain.RoleNormal,
			Divisions: []string{divA.ID},
		},
	}
}

func TestCreateAndListAreMembershipScoped(t *testing.T) {
	f := newCredentialFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.member, CreateCredentialInput{
		SiteName:   "wordpress",
		Username:   "editor",
		Password:   "hunter2",
		DivisionID: f.divA.ID,
	})
	if err != nil {
		t.Fatalf("create in own division failed: %v", err)
	}
	if created.Secret != "hunter2" {
		t.Fatalf("create must return the plaintext secret, got %q", created.Secret)
	}

	_, err = f.svc.Create(ctx, f.member, CreateCredentialInput{
		SiteName:   "wordpress",
		Username:   "editor",
		Password:   "hunter2",
		DivisionID: f.divB.ID,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("create outside membership: expected forbidden, got %v", err)
	}

	got, err := f.svc.ListForDivision(ctx, f.member, f.divA.ID)
	if err != nil {
		t.Fatalf("list own division failed: %v", err)
	}
	if len(got) != 1 || got[0].Secret != "hunter2" {
		t.Fatalf("expected decoded credential back, got %+v", got)
	}

	if _, err := f.svc.ListForDivision(ctx, f.member, f.divB.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("list outside membership: expected forbidden, got %v", err)
	}
}

func TestAdminReadsAnyDivision(t *testing.T) {
	f := newCredentialFixture(t, nil)
	ctx := context.Background()
	admin := security.Principal{UserID: "a", Role: domain.RoleAdmin}

	if _, err := f.svc.Create(ctx, admin, CreateCredentialInput{
		SiteName:   "jira",
		Username:   "ops",
		Password:   "s3cret",
		DivisionID: f.divB.ID,
	}); err != nil {
		t.Fatalf("admin create failed: %v", err)
	}

	got, err := f.svc.ListForDivision(ctx, admin, f.divB.ID)
	if err != nil {
		t.Fatalf("admin list failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one credential, got %d", len(got))
	}
}

func TestCreateRejectsUnknownDivision(t *testing.T) {
	f := newCredentialFixture(t, nil)
	ctx := context.Background()
	admin := security.Principal{UserID: "a", Role: domain.RoleAdmin}

	_, err := f.svc.Create(ctx, admin, CreateCredentialInput{
		SiteName:   "jira",
		Username:   "ops",
		Password:   "s3cret",
		DivisionID: "no-such-division",
	})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
}

// Update is role-gated only: a management principal with no membership in
// the credential's division may still rewrite it, while a normal member of
// that very division may not.
func TestUpdateIsRoleGatedNotMembershipGated(t *testing.T) {
	f := newCredentialFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.member, CreateCredentialInput{
		SiteName:   "wordpress",
		Username:   "editor",
		Password:   "hunter2",
		DivisionID: f.divA.ID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := f.svc.Update(ctx, f.member, created.ID, UpdateCredentialInput{
		Username: strPtr("someone-else"),
	}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("normal member update: expected forbidden, got %v", err)
	}

	outsider := security.Principal{UserID: "m", Role: domain.RoleManagement}
	newSecret := "rotated"
	updated, err := f.svc.Update(ctx, outsider, created.ID, UpdateCredentialInput{
		Password: &newSecret,
	})
	if err != nil {
		t.Fatalf("management update without membership must succeed: %v", err)
	}
	if updated.Secret != "rotated" {
		t.Fatalf("expected rotated secret, got %q", updated.Secret)
	}
	if updated.SiteName != "wordpress" || updated.Username != "editor" {
		t.Fatalf("partial update must leave other fields alone: %+v", updated)
	}
}

func TestUpdateUnknownCredential(t *testing.T) {
	f := newCredentialFixture(t, nil)
	ctx := context.Background()
	admin := security.Principal{UserID: "a", Role: domain.RoleAdmin}

	if _, err := f.svc.Update(ctx, admin, "no-such-id", UpdateCredentialInput{
		Username: strPtr("x"),
	}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSecretsEncryptedAtRest(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	codec, err := cipher.NewAESGCMCodec(key)
	if err != nil {
		t.Fatalf("codec init failed: %v", err)
	}

	f := newCredentialFixture(t, codec)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.member, CreateCredentialInput{
		SiteName:   "wordpress",
		Username:   "editor",
		Password:   "hunter2",
		DivisionID: f.divA.ID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := f.creds.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if bytes.Contains([]byte(stored.Secret), []byte("hunter2")) {
		t.Fatalf("secret stored in the clear: %q", stored.Secret)
	}

	got, err := f.svc.ListForDivision(ctx, f.member, f.divA.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 || got[0].Secret != "hunter2" {
		t.Fatalf("expected decoded secret on read, got %+v", got)
	}
}

func strPtr(s string) *string { return &s }
