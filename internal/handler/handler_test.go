package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/repository"
	"github.com/yourorg/credvault/internal/security"
	"github.com/yourorg/credvault/internal/security/auth"
	"github.com/yourorg/credvault/internal/security/middleware"
	"github.com/yourorg/credvault/internal/service"
)

type testEnv struct {
	server *httptest.Server
	users  *repository.MemoryUserRepository
	groups *repository.MemoryGroupRepository
	tokens *auth.TokenManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := repository.NewMemoryUserRepository()
	groups := repository.NewMemoryGroupRepository()
	creds := repository.NewMemoryCredentialRepository(groups)
	engine := security.NewEngine(nil)
	tokens := auth.NewTokenManager("test-secret", "credvault", time.Hour)

	authSvc := service.NewAuthService(users, tokens, 4, nil)
	dirSvc := service.NewDirectoryService(groups, engine, nil, nil)
	credSvc := service.NewCredentialService(creds, engine, nil, nil)
	memberSvc := service.NewMembershipService(users, groups, engine, nil, nil)

	authHandler := NewAuthHandler(authSvc, nil)
	divisionsHandler := NewDivisionsHandler(dirSvc, nil)
	credentialsHandler := NewCredentialsHandler(credSvc, nil)
	adminHandler := NewAdminHandler(memberSvc, dirSvc, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/divisions", divisionsHandler.List)
	mux.HandleFunc("GET /api/credentials/{divisionID}", credentialsHandler.List)
	mux.HandleFunc("POST /api/credentials", credentialsHandler.Create)
	mux.HandleFunc("PUT /api/credentials/{id}", credentialsHandler.Update)
	mux.HandleFunc("GET /api/admin/users", adminHandler.ListUsers)
	mux.HandleFunc("POST /api/admin/users/{id}/divisions", adminHandler.AddDivision)
	mux.HandleFunc("POST /api/admin/units", adminHandler.CreateUnit)
	mux.HandleFunc("POST /api/admin/divisions", adminHandler.CreateDivision)

	root := middleware.PrincipalMiddleware(tokens, users, nil)(mux)
	server := httptest.NewServer(root)
	t.Cleanup(server.Close)

	return &testEnv{server: server, users: users, groups: groups, tokens: tokens}
}

// createUser inserts a user directly and returns a valid bearer token.
func (e *testEnv) createUser(t *testing.T, username string, role domain.Role, divisions ...string) (string, string) {
	t.Helper()
	u := &domain.User{
		Username:     username,
		PasswordHash: "x",
		Role:         role,
		Divisions:    divisions,
	}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	token, err := e.tokens.GenerateToken(u)
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	return u.ID, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return v
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"username": "alice", "password": "Password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}

	resp = e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"username": "alice", "password": "Password456",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", resp.StatusCode)
	}

	resp = e.do(t, "POST", "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "Password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	result := decodeBody[map[string]any](t, resp)
	if result["token"] == "" {
		t.Fatalf("expected token in login response: %v", result)
	}

	resp = e.do(t, "POST", "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, "GET", "/api/divisions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", resp.StatusCode)
	}

	resp = e.do(t, "GET", "/api/divisions", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", resp.StatusCode)
	}
}

func TestDivisionListingIsScoped(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	unit := &domain.Unit{Name: "News"}
	if err := e.groups.CreateUnit(ctx, unit); err != nil {
		t.Fatalf("create unit failed: %v", err)
	}
	visible := &domain.Division{Name: "News - General", UnitID: unit.ID}
	hidden := &domain.Division{Name: "News - Internal", UnitID: unit.ID}
	for _, d := range []*domain.Division{visible, hidden} {
		if err := e.groups.CreateDivision(ctx, d); err != nil {
			t.Fatalf("create division failed: %v", err)
		}
	}

	_, token := e.createUser(t, "reader", domain.RoleNormal, visible.ID)
	resp := e.do(t, "GET", "/api/divisions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	divisions := decodeBody[[]DivisionResponse](t, resp)
	if len(divisions) != 1 || divisions[0].ID != visible.ID {
		t.Fatalf("expected only the member division, got %+v", divisions)
	}

	_, emptyToken := e.createUser(t, "outsider", domain.RoleNormal)
	resp = e.do(t, "GET", "/api/divisions", emptyToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty scope must be 200, got %d", resp.StatusCode)
	}
	divisions = decodeBody[[]DivisionResponse](t, resp)
	if len(divisions) != 0 {
		t.Fatalf("expected empty array, got %+v", divisions)
	}
}

func TestCredentialEndpointsEnforceTaxonomy(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	unit := &domain.Unit{Name: "News"}
	if err := e.groups.CreateUnit(ctx, unit); err != nil {
		t.Fatalf("create unit failed: %v", err)
	}
	mine := &domain.Division{Name: "News - General", UnitID: unit.ID}
	other := &domain.Division{Name: "News - Internal", UnitID: unit.ID}
	for _, d := range []*domain.Division{mine, other} {
		if err := e.groups.CreateDivision(ctx, d); err != nil {
			t.Fatalf("create division failed: %v", err)
		}
	}
	_, token := e.createUser(t, "reader", domain.RoleNormal, mine.ID)

	resp := e.do(t, "POST", "/api/credentials", token, CreateCredentialRequest{
		SiteName: "cms", Username: "writer", Password: "pencil", DivisionID: mine.ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	created := decodeBody[CredentialResponse](t, resp)

	resp = e.do(t, "GET", "/api/credentials/"+other.ID, token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign division: expected 403, got %d", resp.StatusCode)
	}
	denial := decodeBody[errorResponse](t, resp)
	if !strings.Contains(denial.Error, string(security.RuleDivisionMembership)) {
		t.Fatalf("denial must name the denying rule, got %q", denial.Error)
	}

	resp = e.do(t, "PUT", "/api/credentials/"+created.ID, token, UpdateCredentialRequest{})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("normal update: expected 403, got %d", resp.StatusCode)
	}
	denial = decodeBody[errorResponse](t, resp)
	if !strings.Contains(denial.Error, string(security.RuleRoleGate)) {
		t.Fatalf("denial must name the denying rule, got %q", denial.Error)
	}

	_, mgrToken := e.createUser(t, "manager", domain.RoleManagement)
	newName := "cms-prod"
	resp = e.do(t, "PUT", "/api/credentials/"+created.ID, mgrToken, UpdateCredentialRequest{SiteName: &newName})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("management update: expected 200, got %d", resp.StatusCode)
	}
	updated := decodeBody[CredentialResponse](t, resp)
	if updated.SiteName != "cms-prod" {
		t.Fatalf("expected updated site name, got %+v", updated)
	}

	resp = e.do(t, "PUT", "/api/credentials/no-such-id", mgrToken, UpdateCredentialRequest{SiteName: &newName})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown credential: expected 404, got %d", resp.StatusCode)
	}

	resp = e.do(t, "POST", "/api/credentials", token, CreateCredentialRequest{
		SiteName: "cms", Username: "writer", Password: "pencil", DivisionID: "no-such-division",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unknown division for a non-member: expected 403, got %d", resp.StatusCode)
	}
}

func TestAdminSurfaceGating(t *testing.T) {
	e := newTestEnv(t)

	userID, userToken := e.createUser(t, "pleb", domain.RoleNormal)
	_, adminToken := e.createUser(t, "root", domain.RoleAdmin)

	resp := e.do(t, "GET", "/api/admin/users", userToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin list users: expected 403, got %d", resp.StatusCode)
	}

	resp = e.do(t, "POST", "/api/admin/units", adminToken, map[string]string{"name": "News"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create unit: expected 201, got %d", resp.StatusCode)
	}
	unit := decodeBody[UnitResponse](t, resp)

	resp = e.do(t, "POST", "/api/admin/divisions", adminToken, map[string]string{
		"name": "News - General", "unitId": unit.ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create division: expected 201, got %d", resp.StatusCode)
	}
	division := decodeBody[DivisionResponse](t, resp)

	resp = e.do(t, "POST", "/api/admin/divisions", adminToken, map[string]string{
		"name": "Orphan", "unitId": "no-such-unit",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad unit ref: expected 400, got %d", resp.StatusCode)
	}

	resp = e.do(t, "POST", "/api/admin/users/"+userID+"/divisions", adminToken, map[string]string{
		"divisionId": division.ID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grant: expected 200, got %d", resp.StatusCode)
	}
	granted := decodeBody[UserResponse](t, resp)
	if len(granted.Divisions) != 1 || granted.Divisions[0] != division.ID {
		t.Fatalf("expected granted division in response, got %+v", granted)
	}
}
