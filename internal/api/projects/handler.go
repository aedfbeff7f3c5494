// Package projects exposes the project store and collaborator sets.
package projects

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

const (
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeConflict         = "CONFLICT"
	errCodeForbidden        = "FORBIDDEN"
	errCodeInternalError    = "INTERNAL_ERROR"
)

// Handler serves /api/projects.
type Handler struct {
	projects storage.ProjectRepository
	users    storage.UserRepository
	log      *zap.Logger
	now      func() time.Time
}

// NewHandler creates a projects handler.
func NewHandler(projects storage.ProjectRepository, users storage.UserRepository, log *zap.Logger) *Handler {
	return &Handler{projects: projects, users: users, log: log.Named("projects"), now: time.Now}
}

// Routes mounts the handler. Callers must apply JWT auth first.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetByID)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/collaborators", h.Collaborators)
		r.Delete("/collaborators/{userId}", h.RemoveCollaborator)
	})
}

// CreateRequest is the body of POST /api/projects.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// UpdateRequest is the body of PUT /api/projects/{id}.
type UpdateRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error(op+" failed", zap.Error(err))
	render.ErrorJSON(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
}

// List returns every project for admins and the caller's own projects otherwise.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var (
		projects []*models.Project
		err      error
	)
	if actor.IsAdmin() {
		projects, err = h.projects.List(ctx)
	} else {
		projects, err = h.projects.ListForUser(ctx, actor.UserID)
	}
	if err != nil {
		h.internalError(w, "list projects", err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	render.OK(w, projects)
}

// Create creates a project owned by the caller. Admins may name another owner.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := render.DecodeJSON(w, r, &req); err != nil {
		render.BadRequest(w, "invalid request body")
		return
	}
	if err := ValidateName(req.Name); err != nil {
		render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	ctx := r.Context()
	actor := middleware.GetActor(ctx)
	ownerID := strings.TrimSpace(req.OwnerID)
	switch {
	case ownerID == "":
		ownerID = actor.UserID
	case ownerID != actor.UserID && !actor.IsAdmin():
		render.ErrorJSON(w, http.StatusForbidden, errCodeForbidden, "only admins may create projects for another user")
		return
	}

	owner, err := h.users.GetByID(ctx, ownerID)
	if err != nil {
		h.internalError(w, "create project: get owner", err)
		return
	}
	if owner == nil {
		render.ErrorJSON(w, http.StatusNotFound, errCodeNotFound, "owner not found")
		return
	}

	now := h.now()
	project := &models.Project{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.projects.Create(ctx, project); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			render.ErrorJSON(w, http.StatusConflict, errCodeConflict, "project name already exists")
			return
		}
		h.internalError(w, "create project", err)
		return
	}

	h.log.Info("project created",
		zap.String("id", project.ID),
		zap.String("name", project.Name),
		zap.String("owner_id", ownerID))
	render.Created(w, project)
}

// load fetches {id} and checks the caller may see it. It writes the error
// response and returns nil when the request should stop.
func (h *Handler) load(w http.ResponseWriter, r *http.Request, ownerOnly bool) *models.Project {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	project, err := h.projects.GetByID(ctx, id)
	if err != nil {
		h.internalError(w, "get project", err)
		return nil
	}
	if project == nil {
		render.ErrorJSON(w, http.StatusNotFound, errCodeNotFound, "project not found")
		return nil
	}

	actor := middleware.GetActor(ctx)
	if actor.IsAdmin() || actor.Is(project.OwnerID) {
		return project
	}
	if !ownerOnly {
		member, err := h.projects.IsMember(ctx, project.ID, actor.UserID)
		if err != nil {
			h.internalError(w, "check project member", err)
			return nil
		}
		if member {
			return project
		}
	}
	render.ErrorJSON(w, http.StatusForbidden, errCodeForbidden, "no access to project")
	return nil
}

// GetByID returns a project to its members.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	if project := h.load(w, r, false); project != nil {
		render.OK(w, project)
	}
}

// Update renames or redescribes a project. Owner or admin.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := render.DecodeJSON(w, r, &req); err != nil {
		render.BadRequest(w, "invalid request body")
		return
	}
	project := h.load(w, r, true)
	if project == nil {
		return
	}

	if req.Name != "" {
		if err := ValidateName(req.Name); err != nil {
			render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		project.Name = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		project.Description = strings.TrimSpace(req.Description)
	}
	project.UpdatedAt = h.now()

	if err := h.projects.Update(r.Context(), project); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			render.ErrorJSON(w, http.StatusConflict, errCodeConflict, "project name already exists")
			return
		}
		h.internalError(w, "update project", err)
		return
	}
	render.OK(w, project)
}

// Delete removes a project with its collaborator set. Owner or admin.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	project := h.load(w, r, true)
	if project == nil {
		return
	}
	if err := h.projects.Delete(r.Context(), project.ID); err != nil {
		h.internalError(w, "delete project", err)
		return
	}
	h.log.Info("project deleted", zap.String("id", project.ID), zap.String("name", project.Name))
	render.NoContent(w)
}

// Collaborators lists the owner followed by accepted collaborators.
func (h *Handler) Collaborators(w http.ResponseWriter, r *http.Request) {
	project := h.load(w, r, false)
	if project == nil {
		return
	}
	members, err := h.projects.ListMembers(r.Context(), project.ID)
	if err != nil {
		h.internalError(w, "list project members", err)
		return
	}
	if members == nil {
		members = []*models.ProjectMember{}
	}
	render.OK(w, members)
}

// RemoveCollaborator drops {userId} from the collaborator set. The owner or
// an admin may remove anyone; a collaborator may remove themselves.
func (h *Handler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	actor := middleware.GetActor(r.Context())

	project := h.load(w, r, !actor.Is(userID))
	if project == nil {
		return
	}
	if userID == project.OwnerID {
		render.ErrorJSON(w, http.StatusBadRequest, errCodeValidationFailed, "the owner cannot be removed")
		return
	}

	member, err := h.projects.IsMember(r.Context(), project.ID, userID)
	if err != nil {
		h.internalError(w, "check project member", err)
		return
	}
	if !member {
		render.ErrorJSON(w, http.StatusNotFound, errCodeNotFound, "user is not a collaborator")
		return
	}
	if err := h.projects.RemoveCollaborator(r.Context(), project.ID, userID); err != nil {
		h.internalError(w, "remove collaborator", err)
		return
	}
	h.log.Info("collaborator removed", zap.String("project_id", project.ID), zap.String("user_id", userID))
	render.NoContent(w)
}
