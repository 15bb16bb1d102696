package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/credvault/internal/service"
)

// AuthRequest carries registration and login credentials
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler handles registration and login
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, result, h.logger)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result, h.logger)
}
