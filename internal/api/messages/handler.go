// Package messages exposes the messaging channel over HTTP.
package messages

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/api/middleware"
	"github.com/good-yellow-bee/collabhub/internal/api/render"
	"github.com/good-yellow-bee/collabhub/internal/messaging"
	"github.com/good-yellow-bee/collabhub/internal/models"
)

// Service is the subset of *messaging.Channel the handler needs.
type Service interface {
	Send(ctx context.Context, actor models.Actor, in messaging.SendInput, file *models.Attachment) (*models.Message, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Message, error)
	Attachment(ctx context.Context, actor models.Actor, id string) (*models.Attachment, error)
	ListByProject(ctx context.Context, actor models.Actor, projectID string) ([]*models.Message, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Message, error)
	ListBetween(ctx context.Context, actor models.Actor, userA, userB string) ([]*models.Message, error)
	MarkRead(ctx context.Context, actor models.Actor, id string) (*models.Message, error)
	MarkDelivered(ctx context.Context, actor models.Actor, id string) (*models.Message, error)
	UnreadCounts(ctx context.Context, receiverID string) ([]*models.UnreadCount, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	DeleteConversation(ctx context.Context, actor models.Actor, userA, userB string) (int64, error)
	Policy() messaging.Policy
}

// multipart overhead allowed on top of the attachment limit
const formOverhead = 1 << 20

// Handler serves /api/message.
type Handler struct {
	svc Service
	log *zap.Logger
}

// NewHandler creates a messages handler.
func NewHandler(svc Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log.Named("messages")}
}

// Routes mounts the handler. Callers must apply JWT auth first.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Send)
	r.With(middleware.RequireAdminOrSelf("userId")).Get("/user/{userId}", h.ListByUser)
	r.Get("/project/{projectId}", h.ListByProject)
	r.Get("/between/{userA}/{userB}", h.ListBetween)
	r.With(middleware.RequireAdminOrSelf("receiverId")).Get("/unread-counts/{receiverId}", h.UnreadCounts)
	r.With(middleware.RequireAdminOrEither("userA", "userB")).Delete("/conversation/{userA}/{userB}", h.DeleteConversation)

	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		r.Method(method, "/read/{id}", http.HandlerFunc(h.MarkRead))
		r.Method(method, "/delivered/{id}", http.HandlerFunc(h.MarkDelivered))
	}

	r.Get("/{id}", h.Get)
	r.Get("/{id}/file", h.File)
	r.Delete("/{id}", h.Delete)
}

// Send stores a message. JSON bodies carry text only; multipart bodies may
// add one attachment in the "file" part.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())

	var (
		in   messaging.SendInput
		file *models.Attachment
		err  error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, file, err = h.parseMultipart(w, r)
	} else {
		err = render.DecodeJSON(w, r, &in)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.ErrorJSON(w, http.StatusRequestEntityTooLarge, render.CodeTooLarge, "request body too large")
			return
		}
		render.BadRequest(w, "invalid request body")
		return
	}

	msg, err := h.svc.Send(r.Context(), actor, in, file)
	if err != nil {
		render.Fail(w, h.log, "send message", err)
		return
	}
	render.Created(w, msg)
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (messaging.SendInput, *models.Attachment, error) {
	limit := h.svc.Policy().MaxSize + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return messaging.SendInput{}, nil, err
	}
	defer r.MultipartForm.RemoveAll()

	in := messaging.SendInput{
		SenderID:   r.FormValue("sender_id"),
		ReceiverID: r.FormValue("receiver_id"),
		ProjectID:  r.FormValue("project_id"),
		Content:    r.FormValue("content"),
	}

	part, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, nil
	}
	if err != nil {
		return in, nil, err
	}
	defer part.Close()

	file, err := readAttachment(part, header)
	return in, file, err
}

func readAttachment(part multipart.File, header *multipart.FileHeader) (*models.Attachment, error) {
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}
	return &models.Attachment{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Name:        filepath.Base(header.Filename),
	}, nil
}

// Get returns one message without its attachment bytes.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.Get(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		render.Fail(w, h.log, "get message", err)
		return
	}
	render.OK(w, msg)
}

// File streams the attachment of a message.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.Attachment(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		render.Fail(w, h.log, "get attachment", err)
		return
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := file.Name
	if name == "" {
		name = "attachment"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		h.log.Debug("write attachment", zap.Error(err))
	}
}

// ListByUser returns the inbox of {userId}, newest first.
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		render.Fail(w, h.log, "list messages", err)
		return
	}
	render.OK(w, list)
}

// ListByProject returns the project thread, oldest first.
func (h *Handler) ListByProject(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListByProject(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "projectId"))
	if err != nil {
		render.Fail(w, h.log, "list project messages", err)
		return
	}
	render.OK(w, list)
}

// ListBetween returns the conversation between two users, oldest first.
func (h *Handler) ListBetween(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListBetween(r.Context(), middleware.GetActor(r.Context()),
		chi.URLParam(r, "userA"), chi.URLParam(r, "userB"))
	if err != nil {
		render.Fail(w, h.log, "list conversation", err)
		return
	}
	render.OK(w, list)
}

// UnreadCounts returns unread counts addressed to {receiverId}, grouped by sender.
func (h *Handler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.UnreadCounts(r.Context(), chi.URLParam(r, "receiverId"))
	if err != nil {
		render.Fail(w, h.log, "unread counts", err)
		return
	}
	render.OK(w, counts)
}

// MarkRead flags a message as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.MarkRead(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		render.Fail(w, h.log, "mark read", err)
		return
	}
	render.OK(w, msg)
}

// MarkDelivered flags a message as delivered.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.MarkDelivered(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		render.Fail(w, h.log, "mark delivered", err)
		return
	}
	render.OK(w, msg)
}

// Delete removes one message.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "id")); err != nil {
		render.Fail(w, h.log, "delete message", err)
		return
	}
	render.NoContent(w)
}

// DeleteResponse reports how many messages a bulk delete removed.
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// DeleteConversation removes every message between two users.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userA := strings.TrimSpace(chi.URLParam(r, "userA"))
	userB := strings.TrimSpace(chi.URLParam(r, "userB"))

	n, err := h.svc.DeleteConversation(r.Context(), middleware.GetActor(r.Context()), userA, userB)
	if err != nil {
		render.Fail(w, h.log, "delete conversation", err)
		return
	}
	render.OK(w, DeleteResponse{Deleted: n})
}
