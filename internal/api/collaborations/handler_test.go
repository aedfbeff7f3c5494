package collaborations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/good-yellow-bee/collabhub/internal/api/auth"
	"github.com/good-yellow-bee/collabhub/internal/api/middleware"
	"github.com/good-yellow-bee/collabhub/internal/apperr"
	"github.com/good-yellow-bee/collabhub/internal/collab"
	"github.com/good-yellow-bee/collabhub/internal/models"
)

// mockService records calls and returns canned results.
type mockService struct {
	created   *collab.CreateInput
	decisions []collab.Decision
	actor     models.Actor
	record    *models.Collaboration
	details   []*models.CollaborationDetail
	err       error
}

func (m *mockService) Create(_ context.Context, actor models.Actor, in collab.CreateInput) (*models.Collaboration, error) {
	m.actor, m.created = actor, &in
	if m.err != nil {
		return nil, m.err
	}
	return &models.Collaboration{ID: "c-1", SenderID: in.SenderID, ReceiverID: in.ReceiverID,
		ProjectID: in.ProjectID, Type: in.Type, Status: models.StatusPending}, nil
}

func (m *mockService) Get(_ context.Context, actor models.Actor, id string) (*models.Collaboration, error) {
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return m.record, nil
}

func (m *mockService) List(_ context.Context, actor models.Actor) ([]*models.Collaboration, error) {
	m.actor = actor
	return []*models.Collaboration{m.record}, m.err
}

func (m *mockService) ListByReceiver(_ context.Context, userID string) ([]*models.CollaborationDetail, error) {
	return m.details, m.err
}

func (m *mockService) ListApplications(_ context.Context, userID string) ([]*models.CollaborationDetail, error) {
	return m.details, m.err
}

func (m *mockService) Resolve(_ context.Context, actor models.Actor, id string, d collab.Decision) (*models.Collaboration, error) {
	m.actor = actor
	m.decisions = append(m.decisions, d)
	if m.err != nil {
		return nil, m.err
	}
	c := *m.record
	c.Status = d.Status()
	return &c, nil
}

func (m *mockService) Delete(_ context.Context, actor models.Actor, id string) error {
	m.actor = actor
	return m.err
}

func (m *mockService) Update(_ context.Context, actor models.Actor, id string, patch collab.UpdatePatch) (*models.Collaboration, error) {
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	c := *m.record
	if patch.Message != nil {
		c.Message = *patch.Message
	}
	return &c, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRouter(t *testing.T, svc Service, actor models.Actor) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := &auth.Claims{UserID: actor.UserID, Role: actor.Role}
			next.ServeHTTP(w, req.WithContext(middleware.WithClaims(req.Context(), claims)))
		})
	})
	r.Route("/api/collaborator", NewHandler(svc, zaptest.NewLogger(t)).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

var (
	owner = models.Actor{UserID: "owner", Role: models.RoleResearcher}
	alice = models.Actor{UserID: "alice", Role: models.RoleResearcher}
	admin = models.Actor{UserID: "root", Role: models.RoleAdmin}
)

func pending() *models.Collaboration {
	return &models.Collaboration{ID: "c-1", SenderID: "owner", ReceiverID: "alice", ProjectID: "p-1",
		Type: models.CollaborationInvite, Status: models.StatusPending}
}

func TestCreate_DefaultsSenderToCaller(t *testing.T) {
	svc := &mockService{}
	rec, env := do(t, newRouter(t, svc, owner), http.MethodPost, "/api/collaborator",
		`{"receiver_id":"alice","project_id":"p-1","type":"invite","message":"join us"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, svc.created)
	assert.Equal(t, "owner", svc.created.SenderID)
	assert.Equal(t, owner, svc.actor)

	var c models.Collaboration
	require.NoError(t, json.Unmarshal(env.Data, &c))
	assert.Equal(t, models.StatusPending, c.Status)
}

func TestCreate_BadBody(t *testing.T) {
	rec, env := do(t, newRouter(t, &mockService{}, owner), http.MethodPost, "/api/collaborator", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestCreate_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Validation.New("missing required fields: project_id"), http.StatusBadRequest, apperr.CodeValidationFailed},
		{"conflict", apperr.Conflict.New("a pending invite already exists"), http.StatusConflict, apperr.CodeConflict},
		{"not found", apperr.NotFound.New("project p-9"), http.StatusNotFound, apperr.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, newRouter(t, &mockService{err: tt.err}, owner), http.MethodPost, "/api/collaborator",
				`{"receiver_id":"alice","project_id":"p-1","type":"invite"}`)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestAcceptAndDecline(t *testing.T) {
	svc := &mockService{record: pending()}
	router := newRouter(t, svc, alice)

	rec, env := do(t, router, http.MethodPut, "/api/collaborator/c-1/accept", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var c models.Collaboration
	require.NoError(t, json.Unmarshal(env.Data, &c))
	assert.Equal(t, models.StatusAccepted, c.Status)

	rec, _ = do(t, router, http.MethodPut, "/api/collaborator/c-1/decline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []collab.Decision{collab.Accept, collab.Decline}, svc.decisions)
	assert.Equal(t, alice, svc.actor)
}

func TestAccept_AlreadyResponded(t *testing.T) {
	svc := &mockService{record: pending(), err: apperr.InvalidState.New("collaboration c-1 not found or already responded to")}
	rec, env := do(t, newRouter(t, svc, alice), http.MethodPut, "/api/collaborator/c-1/accept", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeInvalidState, env.Error.Code)
	assert.Contains(t, env.Error.Message, "already responded to")
}

func TestList_AdminOnly(t *testing.T) {
	svc := &mockService{record: pending()}

	rec, _ := do(t, newRouter(t, svc, alice), http.MethodGet, "/api/collaborator", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, newRouter(t, svc, admin), http.MethodGet, "/api/collaborator", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdate_AdminOnly(t *testing.T) {
	svc := &mockService{record: pending()}

	rec, _ := do(t, newRouter(t, svc, owner), http.MethodPut, "/api/collaborator/c-1", `{"message":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := do(t, newRouter(t, svc, admin), http.MethodPut, "/api/collaborator/c-1", `{"message":"edited"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var c models.Collaboration
	require.NoError(t, json.Unmarshal(env.Data, &c))
	assert.Equal(t, "edited", c.Message)
}

func TestListByReceiver_SelfOnly(t *testing.T) {
	svc := &mockService{details: []*models.CollaborationDetail{{Collaboration: *pending(), ProjectName: "Coral Reef Survey"}}}

	rec, env := do(t, newRouter(t, svc, alice), http.MethodGet, "/api/collaborator/receiver/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*models.CollaborationDetail
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Coral Reef Survey", list[0].ProjectName)

	rec, _ = do(t, newRouter(t, svc, owner), http.MethodGet, "/api/collaborator/receiver/alice", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, newRouter(t, svc, owner), http.MethodGet, "/api/collaborator/applications/owner", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDelete(t *testing.T) {
	rec, _ := do(t, newRouter(t, &mockService{}, owner), http.MethodDelete, "/api/collaborator/c-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env := do(t, newRouter(t, &mockService{err: apperr.Forbidden.New("only the sender may withdraw")}, alice),
		http.MethodDelete, "/api/collaborator/c-1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.CodeForbidden, env.Error.Code)
}

func TestGet_InternalErrorHidden(t *testing.T) {
	svc := &mockService{err: apperr.Persistence.New("database is locked")}
	rec, env := do(t, newRouter(t, svc, owner), http.MethodGet, "/api/collaborator/c-1", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", env.Error.Message)
}
