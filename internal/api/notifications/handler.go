// Package notifications serves the caller's notification inbox.
package notifications

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/api/middleware"
	"github.com/good-yellow-bee/collabhub/internal/api/render"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

// Handler serves /api/notifications.
type Handler struct {
	repo storage.NotificationRepository
	log  *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(repo storage.NotificationRepository, log *zap.Logger) *Handler {
	return &Handler{repo: repo, log: log.Named("notifications")}
}

// Routes mounts the handler. Callers must apply JWT auth first.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Put("/{id}/read", h.MarkRead)
}

// List returns the caller's notifications, newest first. ?unread=true
// restricts the list to unread ones.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	unreadOnly := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			render.BadRequest(w, "unread must be a boolean")
			return
		}
		unreadOnly = b
	}

	list, err := h.repo.ListByUser(r.Context(), middleware.GetUserID(r.Context()), unreadOnly)
	if err != nil {
		h.log.Error("list notifications failed", zap.Error(err))
		render.ErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	render.OK(w, list)
}

// MarkRead flags one of the caller's notifications as read. Admins may mark
// any notification.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	n, err := h.repo.GetByID(ctx, id)
	if err != nil {
		h.log.Error("get notification failed", zap.Error(err))
		render.ErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	actor := middleware.GetActor(ctx)
	// Someone else's notification is reported as missing.
	if n == nil || (!actor.IsAdmin() && !actor.Is(n.UserID)) {
		render.ErrorJSON(w, http.StatusNotFound, "NOT_FOUND", "notification not found")
		return
	}

	if !n.Read {
		if _, err := h.repo.MarkRead(ctx, id); err != nil {
			h.log.Error("mark notification read failed", zap.Error(err))
			render.ErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			return
		}
		n.Read = true
	}
	render.OK(w, n)
}
