package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/service"
)

// AuthService is the subset of *service.AuthService the handler needs.
type AuthService interface {
	Register(ctx context.Context, in service.Credentials) (*service.AuthResult, error)
	Login(ctx context.Context, in service.Credentials) (*service.AuthResult, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler serves registration, login and the current-identity lookup.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account, respond with {token, user}
//   - HandleLogin    → check credentials, respond with {token, user}
//   - HandleMe       → return the user behind the bearer token
//
// The password hash never leaves the server: model.User tags it json:"-".
type AuthHandler struct {
	auth   AuthService
	resp   *Responder
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(svc AuthService, resp *Responder, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   svc,
		resp:   resp,
		logger: logger,
	}
}

// HandleRegister creates a new account.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"email": "alice@example.com", "password": "password123"}
// RESPONSE: 201 {"token": "...", "user": {...}} | 400 | 409
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.Credentials
	if err := h.resp.decodeJSON(w, r, &in); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	result, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.JSON(w, http.StatusCreated, result)
}

// HandleLogin exchanges credentials for a token.
//
// HTTP: POST /auth/login
// RESPONSE: 200 {"token": "...", "user": {...}} | 400 | 401
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.Credentials
	if err := h.resp.decodeJSON(w, r, &in); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, result)
}

// HandleMe returns the currently authenticated user.
//
// HTTP: GET /auth/me (requires RequireAuth)
// RESPONSE: 200 {"user": {...}} | 401 | 404
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// RequireAuth should have stopped this request already.
		h.resp.JSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "no token provided",
		})
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), id.UserID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, map[string]any{"user": user})
}
