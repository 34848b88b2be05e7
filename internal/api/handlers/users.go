package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/solidus-pim/server/internal/api/middleware"
	"github.com/solidus-pim/server/internal/api/problem"
	"github.com/solidus-pim/server/internal/domain/ids"
	"github.com/solidus-pim/server/internal/domain/products"
	"github.com/solidus-pim/server/internal/domain/users"
)

type UsersHandler struct {
	Service *users.Service
	Env     string
}

func NewUsersHandler(service *users.Service, env string) *UsersHandler {
	return &UsersHandler{Service: service, Env: env}
}

type userListResponse struct {
	Items []users.User `json:"items"`
	Total int64        `json:"total"`
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	filters := users.Filters{
		Role:     users.Role(strings.TrimSpace(r.URL.Query().Get("role"))),
		IsActive: queryBool(r, "active"),
		Query:    strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}

	items, total, err := h.Service.List(r.Context(), filters)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, userListResponse{Items: items, Total: total})
}

type createUserRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	CustomerNumber string `json:"customer_number"`
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	var input createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	params := users.CreateParams{
		Username:       input.Username,
		Email:          input.Email,
		Password:       input.Password,
		Role:           input.Role,
		CustomerNumber: input.CustomerNumber,
	}

	user, err := h.Service.Create(r.Context(), params, middleware.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, users.ErrUsernameTaken), errors.Is(err, users.ErrEmailTaken), errors.Is(err, users.ErrCustomerNumberTaken):
			problem.Write(w, r, http.StatusConflict, "https://solidus-pim.dev/problems/conflict", "Conflict", err, h.Env)
		case errors.Is(err, users.ErrInvalidInput):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	user, err := h.Service.Get(r.Context(), ulidValue)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type updateUserRequest struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	CustomerNumber string `json:"customer_number"`
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	var input updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	params := users.UpdateParams{
		Email:          input.Email,
		Role:           input.Role,
		CustomerNumber: input.CustomerNumber,
	}

	user, err := h.Service.Update(r.Context(), ulidValue, params, middleware.ActorFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, users.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
		case errors.Is(err, users.ErrEmailTaken), errors.Is(err, users.ErrCustomerNumberTaken):
			problem.Write(w, r, http.StatusConflict, "https://solidus-pim.dev/problems/conflict", "Conflict", err, h.Env)
		case errors.Is(err, users.ErrInvalidInput):
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UsersHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *UsersHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *UsersHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	// Admins cannot deactivate themselves; that locks everyone out one
	// account at a time.
	if !active && middleware.SubjectFromContext(r.Context()) == ulidValue {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Cannot deactivate own account", users.ErrInvalidInput, h.Env)
		return
	}

	if err := h.Service.SetActive(r.Context(), ulidValue, active, middleware.ActorFromContext(r.Context())); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
