// Package collaborations exposes the invite and application registry over HTTP.
package collaborations

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/api/middleware"
	"github.com/good-yellow-bee/collabhub/internal/api/render"
	"github.com/good-yellow-bee/collabhub/internal/collab"
	"github.com/good-yellow-bee/collabhub/internal/models"
)

// Service is the subset of *collab.Registry the handler needs.
type Service interface {
	Create(ctx context.Context, actor models.Actor, in collab.CreateInput) (*models.Collaboration, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Collaboration, error)
	List(ctx context.Context, actor models.Actor) ([]*models.Collaboration, error)
	ListByReceiver(ctx context.Context, userID string) ([]*models.CollaborationDetail, error)
	ListApplications(ctx context.Context, userID string) ([]*models.CollaborationDetail, error)
	Resolve(ctx context.Context, actor models.Actor, id string, d collab.Decision) (*models.Collaboration, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	Update(ctx context.Context, actor models.Actor, id string, patch collab.UpdatePatch) (*models.Collaboration, error)
}

// Handler serves /api/collaborator.
type Handler struct {
	svc Service
	log *zap.Logger
}

// NewHandler creates a collaborations handler.
func NewHandler(svc Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log.Named("collaborations")}
}

// Routes mounts the handler. Callers must apply JWT auth first.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.With(middleware.RequireAdmin).Get("/", h.List)
	r.With(middleware.RequireAdminOrSelf("userId")).Get("/receiver/{userId}", h.ListByReceiver)
	r.With(middleware.RequireAdminOrSelf("userId")).Get("/applications/{userId}", h.ListApplications)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.With(middleware.RequireAdmin).Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Put("/accept", h.Accept)
		r.Put("/decline", h.Decline)
	})
}

// Create records a new invite or application. The sender defaults to the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in collab.CreateInput
	if err := render.DecodeJSON(w, r, &in); err != nil {
		render.BadRequest(w, "invalid request body")
		return
	}
	actor := middleware.GetActor(r.Context())
	if in.SenderID == "" {
		in.SenderID = actor.UserID
	}

	c, err := h.svc.Create(r.Context(), actor, in)
	if err != nil {
		render.Fail(w, h.log, "create collaboration", err)
		return
	}
	render.Created(w, c)
}

// List returns every collaboration.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), middleware.GetActor(r.Context()))
	if err != nil {
		render.Fail(w, h.log, "list collaborations", err)
		return
	}
	render.OK(w, list)
}

// ListByReceiver returns invites addressed to {userId}.
func (h *Handler) ListByReceiver(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListByReceiver(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		render.Fail(w, h.log, "list invites", err)
		return
	}
	render.OK(w, list)
}

// ListApplications returns applications sent by or addressed to {userId}.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListApplications(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		render.Fail(w, h.log, "list applications", err)
		return
	}
	render.OK(w, list)
}

// Get returns one collaboration.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		render.Fail(w, h.log, "get collaboration", err)
		return
	}
	render.OK(w, c)
}

// Update overwrites fields of a collaboration.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var patch collab.UpdatePatch
	if err := render.DecodeJSON(w, r, &patch); err != nil {
		render.BadRequest(w, "invalid request body")
		return
	}

	c, err := h.svc.Update(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		render.Fail(w, h.log, "update collaboration", err)
		return
	}
	render.OK(w, c)
}

// Delete removes a collaboration.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id")); err != nil {
		render.Fail(w, h.log, "delete collaboration", err)
		return
	}
	render.NoContent(w)
}

// Accept accepts a pending invite or application.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, collab.Accept)
}

// Decline declines a pending invite or application.
func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, collab.Decline)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, d collab.Decision) {
	c, err := h.svc.Resolve(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id"), d)
	if err != nil {
		render.Fail(w, h.log, d.String()+" collaboration", err)
		return
	}
	render.OK(w, c)
}
