package users

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/api/middleware"
	"github.com/good-yellow-bee/collabhub/internal/api/render"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

// Error codes
const (
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeConflict         = "CONFLICT"
	errCodeForbidden        = "FORBIDDEN"
	errCodeInternalError    = "INTERNAL_ERROR"
)

// Handler handles user management endpoints.
type Handler struct {
	users storage.UserRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewHandler creates a new user handler.
func NewHandler(users storage.UserRepository, log *zap.Logger) *Handler {
	return &Handler{users: users, log: log.Named("users"), now: time.Now}
}

// Routes mounts the handler. Callers must apply JWT auth first.
func (h *Handler) Routes(r chi.Router) {
	r.With(middleware.RequireAdmin).Get("/", h.List)
	r.With(middleware.RequireAdmin).Post("/", h.Create)
	r.Get("/me", h.GetCurrentUser)
	r.With(middleware.RequireAdminOrSelf("id")).Get("/{id}", h.GetByID)
	r.With(middleware.RequireAdminOrSelf("id")).Put("/{id}", h.Update)
	r.With(middleware.RequireAdmin).Delete("/{id}", h.Delete)
}

// CreateRequest is the request body for creating a user.
type CreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// UpdateRequest is the request body for updating a user.
type UpdateRequest struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error(op+" failed", zap.Error(err))
	render.ErrorJSON(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
}

// List returns all users (admin only).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.internalError(w, "list users", err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	render.OK(w, users)
}

// Create registers a researcher or admin account (admin only).
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := render.DecodeJSON(w, r, &req); err != nil {
		render.BadRequest(w, "invalid request body")
		return
	}
	if err := ValidateUsername(req.Username); err != nil {
		render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	if err := ValidateEmail(req.Email); err != nil {
		render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	role := models.RoleResearcher
	if req.Role != "" {
		var err error
		if role, err = ValidateRole(req.Role); err != nil {
			render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
	}

	now := h.now()
	user := &models.User{
		ID:        uuid.New().String(),
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			render.ErrorJSON(w, http.StatusConflict, errCodeConflict, "username or email already exists")
			return
		}
		h.internalError(w, "create user", err)
		return
	}

	h.log.Info("user created", zap.String("id", user.ID), zap.String("username", user.Username))
	render.Created(w, user)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, id string) *models.User {
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.internalError(w, "get user", err)
		return nil
	}
	if user == nil {
		render.ErrorJSON(w, http.StatusNotFound, errCodeNotFound, "user not found")
		return nil
	}
	return user
}

// GetByID returns a user by ID (admin or self).
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	if user := h.get(w, r, chi.URLParam(r, "id")); user != nil {
		render.OK(w, user)
	}
}

// GetCurrentUser returns the authenticated user.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	if user := h.get(w, r, middleware.GetUserID(r.Context())); user != nil {
		render.OK(w, user)
	}
}

// Update changes email or role. Only admins may change roles, and never their own.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := render.DecodeJSON(w, r, &req); err != nil {
		render.BadRequest(w, "invalid request body")
		return
	}

	actor := middleware.GetActor(r.Context())
	userID := chi.URLParam(r, "id")
	user := h.get(w, r, userID)
	if user == nil {
		return
	}

	if req.Email != "" {
		if err := ValidateEmail(req.Email); err != nil {
			render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		user.Email = strings.TrimSpace(req.Email)
	}

	if req.Role != "" {
		if !actor.IsAdmin() {
			render.ErrorJSON(w, http.StatusForbidden, errCodeForbidden, "access denied")
			return
		}
		role, err := ValidateRole(req.Role)
		if err != nil {
			render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		if actor.Is(userID) && role != user.Role {
			render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, "cannot change own role")
			return
		}
		user.Role = role
	}

	user.UpdatedAt = h.now()
	if err := h.users.Update(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			render.ErrorJSON(w, http.StatusConflict, errCodeConflict, "email already exists")
			return
		}
		h.internalError(w, "update user", err)
		return
	}

	h.log.Info("user updated", zap.String("id", user.ID), zap.String("username", user.Username))
	render.OK(w, user)
}

// Delete removes a user (admin only). Admins cannot delete themselves.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if middleware.GetActor(r.Context()).Is(userID) {
		render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, "cannot delete own account")
		return
	}
	user := h.get(w, r, userID)
	if user == nil {
		return
	}
	if err := h.users.Delete(r.Context(), userID); err != nil {
		h.internalError(w, "delete user", err)
		return
	}

	h.log.Info("user deleted", zap.String("id", user.ID), zap.String("username", user.Username))
	render.NoContent(w)
}
