package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/healthtrack/apiserver/internal/auth"
	"github.com/healthtrack/apiserver/internal/services"
	"github.com/healthtrack/apiserver/internal/store"
	"github.com/healthtrack/apiserver/types"
)

// AuthHandler provides registration, login, profile, and API-key endpoints.
type AuthHandler struct {
	users  *services.UserService
	tokens *auth.TokenService
	log    *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, tokens *auth.TokenService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, log: log}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
	r.With(handler.RequireAuth).Put("/api-key", handler.SetAPIKey)
}

// RequireAuth enforces bearer-token authentication. A verified token must
// also still resolve to an existing user. The specific failure is logged for
// diagnostics but never revealed to the caller.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		userID, err := h.tokens.Verify(tokenString)
		if err != nil {
			h.log.Debug("token rejected", "reason", err)
			writeUnauthorized(w)
			return
		}

		if _, err := h.users.GetUser(r.Context(), userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				h.log.Debug("token references missing user", "user_id", userID)
				writeUnauthorized(w)
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}

		ctx := context.WithValue(r.Context(), contextSubjectKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string            `json:"token"`
	User  types.UserProfile `json:"user"`
}

type SetAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

// Register creates a new user account and returns a session token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "email already registered")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user.Profile()})
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user.Profile()})
}

// Me returns the current authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeUnauthorized(w)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

// SetAPIKey stores or replaces the caller's upstream API key.
func (h *AuthHandler) SetAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req SetAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.users.SetAPIKey(r.Context(), userID, req.APIKey); err != nil {
		switch {
		case errors.Is(err, services.ErrKeyTooShort):
			writeError(w, http.StatusBadRequest, "api key too short")
		case errors.Is(err, store.ErrNotFound):
			writeUnauthorized(w)
		default:
			writeError(w, http.StatusInternalServerError, "failed to store api key")
		}
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}
