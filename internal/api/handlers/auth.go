package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/solidus-pim/server/internal/api/middleware"
	"github.com/solidus-pim/server/internal/api/problem"
	"github.com/solidus-pim/server/internal/domain/users"
)

type AuthHandler struct {
	Users *users.Service
	Env   string
}

func NewAuthHandler(service *users.Service, env string) *AuthHandler {
	return &AuthHandler{Users: service, Env: env}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *users.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Users == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	var input loginRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	user, token, err := h.Users.Authenticate(r.Context(), input.Username, input.Password)
	if err != nil {
		// Inactive accounts get the same response as bad credentials so
		// usernames cannot be probed.
		if errors.Is(err, users.ErrInvalidCredentials) || errors.Is(err, users.ErrInactive) {
			problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Invalid credentials", users.ErrInvalidCredentials, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Users == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Unauthorized", problem.ErrUnauthorized, h.Env)
		return
	}

	user, err := h.Users.Get(r.Context(), subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Unauthorized", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Users == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Unauthorized", problem.ErrUnauthorized, h.Env)
		return
	}

	var input changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	if err := h.Users.ChangePassword(r.Context(), subject, input.CurrentPassword, input.NewPassword); err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidCredentials):
			problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Current password is incorrect", err, h.Env)
		case errors.Is(err, users.ErrInvalidInput):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		case errors.Is(err, users.ErrNotFound):
			problem.Write(w, r, http.StatusUnauthorized, "https://solidus-pim.dev/problems/unauthorized", "Unauthorized", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
