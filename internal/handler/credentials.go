package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/security/middleware"
	"github.com/yourorg/credvault/internal/service"
)

// CredentialResponse is the API shape of a credential, secret decoded
type CredentialResponse struct {
	ID         string    `json:"id"`
	SiteName   string    `json:"siteName"`
	Username   string    `json:"username"`
	Password   string    `json:"password"`
	DivisionID string    `json:"divisionId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toCredentialResponse(c *domain.Credential) CredentialResponse {
	return CredentialResponse{
		ID:         c.ID,
		SiteName:   c.SiteName,
		Username:   c.Username,
		Password:   c.Secret,
		DivisionID: c.DivisionID,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// CreateCredentialRequest carries a new credential
type CreateCredentialRequest struct {
	SiteName   string `json:"siteName"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	DivisionID string `json:"divisionId"`
}

// UpdateCredentialRequest carries a partial credential update
type UpdateCredentialRequest struct {
	SiteName *string `json:"siteName"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// CredentialsHandler handles credential reads and writes
type CredentialsHandler struct {
	credentials *service.CredentialService
	logger      *slog.Logger
}

// NewCredentialsHandler creates a new credentials handler
func NewCredentialsHandler(credentials *service.CredentialService, logger *slog.Logger) *CredentialsHandler {
	return &CredentialsHandler{credentials: credentials, logger: logger}
}

// List handles GET /api/credentials/{divisionID}
func (h *CredentialsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	credentials, err := h.credentials.ListForDivision(r.Context(), p, r.PathValue("divisionID"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	out := make([]CredentialResponse, 0, len(credentials))
	for _, c := range credentials {
		out = append(out, toCredentialResponse(c))
	}
	writeJSON(w, http.StatusOK, out, h.logger)
}

// Create handles POST /api/credentials
func (h *CredentialsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	var req CreateCredentialRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	created, err := h.credentials.Create(r.Context(), p, service.CreateCredentialInput{
		SiteName:   req.SiteName,
		Username:   req.Username,
		Password:   req.Password,
		DivisionID: req.DivisionID,
	})
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toCredentialResponse(created), h.logger)
}

// Update handles PUT /api/credentials/{id}
func (h *CredentialsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	var req UpdateCredentialRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	updated, err := h.credentials.Update(r.Context(), p, r.PathValue("id"), service.UpdateCredentialInput{
		SiteName: req.SiteName,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(updated), h.logger)
}
