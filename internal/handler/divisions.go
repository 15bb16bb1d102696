package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/security/middleware"
	"github.com/yourorg/credvault/internal/service"
)

// DivisionResponse is the API shape of a division
type DivisionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UnitID    string    `json:"unitId"`
	CreatedAt time.Time `json:"createdAt"`
}

func toDivisionResponse(d *domain.Division) DivisionResponse {
	return DivisionResponse{
		ID:        d.ID,
		Name:      d.Name,
		UnitID:    d.UnitID,
		CreatedAt: d.CreatedAt,
	}
}

// DivisionsHandler serves the scope-filtered division listing
type DivisionsHandler struct {
	directory *service.DirectoryService
	logger    *slog.Logger
}

// NewDivisionsHandler creates a new divisions handler
func NewDivisionsHandler(directory *service.DirectoryService, logger *slog.Logger) *DivisionsHandler {
	return &DivisionsHandler{directory: directory, logger: logger}
}

// List handles GET /api/divisions. Every authenticated principal may call
// it; the response is scoped to what the principal may see, and an empty
// scope is an empty array, not an error.
func (h *DivisionsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthenticated, h.logger)
		return
	}

	divisions, err := h.directory.ListDivisions(r.Context(), p)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	out := make([]DivisionResponse, 0, len(divisions))
	for _, d := range divisions {
		out = append(out, toDivisionResponse(d))
	}
	writeJSON(w, http.StatusOK, out, h.logger)
}
