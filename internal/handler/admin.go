package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/security/middleware"
	"github.com/yourorg/credvault/internal/service"
)

// UserResponse is the API shape of a user; the password hash never leaves
// the service.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Divisions []string  `json:"divisions"`
	Units     []string  `json:"units"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u *domain.User) UserResponse {
	divisions := u.Divisions
	if divisions == nil {
		divisions = []string{}
	}
	units := u.Units
	if units == nil {
		units = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      string(u.Role),
		Divisions: divisions,
		Units:     units,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// UnitResponse is the API shape of a unit
type UnitResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdminHandler handles the admin surface: user listing, role changes,
// membership grants and revocations, and hierarchy management.
type AdminHandler struct {
	memberships *service.MembershipService
	directory   *service.DirectoryService
	logger      *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(memberships *service.MembershipService, directory *service.DirectoryService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		memberships: memberships,
		directory:   directory,
		logger:      logger,
	}
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	users, err := h.memberships.ListUsers(r.Context(), p)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out, h.logger)
}

// SetRole handles PUT /api/admin/users/{id}/role
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	user, err := h.memberships.SetRole(r.Context(), p, r.PathValue("id"), domain.Role(req.Role))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user), h.logger)
}

// AddDivision handles POST /api/admin/users/{id}/divisions
func (h *AdminHandler) AddDivision(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	var req struct {
		DivisionID string `json:"divisionId"`
	}
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	user, err := h.memberships.AddDivision(r.Context(), p, r.PathValue("id"), req.DivisionID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user), h.logger)
}

// RemoveDivision handles DELETE /api/admin/users/{id}/divisions/{divisionID}
func (h *AdminHandler) RemoveDivision(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	user, err := h.memberships.RemoveDivision(r.Context(), p, r.PathValue("id"), r.PathValue("divisionID"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user), h.logger)
}

// AddUnit handles POST /api/admin/users/{id}/units
func (h *AdminHandler) AddUnit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	var req struct {
		UnitID string `json:"unitId"`
	}
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	user, err := h.memberships.AddUnit(r.Context(), p, r.PathValue("id"), req.UnitID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user), h.logger)
}

// RemoveUnit handles DELETE /api/admin/users/{id}/units/{unitID}
func (h *AdminHandler) RemoveUnit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	user, err := h.memberships.RemoveUnit(r.Context(), p, r.PathValue("id"), r.PathValue("unitID"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user), h.logger)
}

// ListUnits handles GET /api/admin/units
func (h *AdminHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	units, err := h.directory.ListUnits(r.Context(), p)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	out := make([]UnitResponse, 0, len(units))
	for _, u := range units {
		out = append(out, UnitResponse{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out, h.logger)
}

// CreateUnit handles POST /api/admin/units
func (h *AdminHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	unit, err := h.directory.CreateUnit(r.Context(), p, req.Name)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, UnitResponse{ID: unit.ID, Name: unit.Name, CreatedAt: unit.CreatedAt}, h.logger)
}

// CreateDivision handles POST /api/admin/divisions
func (h *AdminHandler) CreateDivision(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	var req struct {
		Name   string `json:"name"`
		UnitID string `json:"unitId"`
	}
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	division, err := h.directory.CreateDivision(r.Context(), p, req.Name, req.UnitID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toDivisionResponse(division), h.logger)
}
