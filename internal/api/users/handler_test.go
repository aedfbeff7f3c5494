package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/good-yellow-bee/collabhub/internal/api/auth"
	"github.com/good-yellow-bee/collabhub/internal/api/middleware"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "users.db"), zaptest.NewLogger(t))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func seed(t *testing.T, store storage.Storage, id, username string, role models.Role) {
	t.Helper()
	u := models.NewUser(username, username+"@example.org", role)
	u.ID = id
	require.NoError(t, store.Users().Create(context.Background(), u))
}

func setupRouter(t *testing.T, store storage.Storage, actor models.Actor) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := &auth.Claims{UserID: actor.UserID, Role: actor.Role}
			next.ServeHTTP(w, req.WithContext(middleware.WithClaims(req.Context(), claims)))
		})
	})
	r.Route("/api/users", NewHandler(store.Users(), zaptest.NewLogger(t)).Routes)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeUser(t *testing.T, rec *httptest.ResponseRecorder) *models.User {
	t.Helper()
	var resp struct {
		Data *models.User `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Data
}

var (
	admin = models.Actor{UserID: "root", Role: models.RoleAdmin}
	alice = models.Actor{UserID: "alice", Role: models.RoleResearcher}
)

func TestCreate(t *testing.T) {
	store := setupStore(t)
	seed(t, store, "root", "root", models.RoleAdmin)

	rec := do(setupRouter(t, store, admin), http.MethodPost, "/api/users", `{"username":"marie","email":"marie@example.org"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	u := decodeUser(t, rec)
	assert.Equal(t, "marie", u.Username)
	assert.Equal(t, models.RoleResearcher, u.Role)
	assert.NotEmpty(t, u.ID)

	rec = do(setupRouter(t, store, admin), http.MethodPost, "/api/users", `{"username":"marie","email":"other@example.org"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreate_Validation(t *testing.T) {
	store := setupStore(t)
	router := setupRouter(t, store, admin)

	tests := []struct {
		name string
		body string
	}{
		{"short username", `{"username":"ab","email":"ab@example.org"}`},
		{"bad email", `{"username":"marie","email":"nope"}`},
		{"unknown role", `{"username":"marie","email":"marie@example.org","role":"viewer"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/api/users", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAdminOnlyRoutes(t *testing.T) {
	store := setupStore(t)
	router := setupRouter(t, store, alice)

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/api/users", "").Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodPost, "/api/users", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodDelete, "/api/users/bob", "").Code)
}

func TestGetByID_SelfOrAdmin(t *testing.T) {
	store := setupStore(t)
	seed(t, store, "alice", "alice", models.RoleResearcher)
	seed(t, store, "bob", "bob", models.RoleResearcher)

	rec := do(setupRouter(t, store, alice), http.MethodGet, "/api/users/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeUser(t, rec).Username)

	rec = do(setupRouter(t, store, alice), http.MethodGet, "/api/users/bob", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(setupRouter(t, store, admin), http.MethodGet, "/api/users/bob", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(setupRouter(t, store, admin), http.MethodGet, "/api/users/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCurrentUser(t *testing.T) {
	store := setupStore(t)
	seed(t, store, "alice", "alice", models.RoleResearcher)

	rec := do(setupRouter(t, store, alice), http.MethodGet, "/api/users/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeUser(t, rec).ID)
}

func TestUpdate(t *testing.T) {
	store := setupStore(t)
	seed(t, store, "root", "root", models.RoleAdmin)
	seed(t, store, "alice", "alice", models.RoleResearcher)

	rec := do(setupRouter(t, store, alice), http.MethodPut, "/api/users/alice", `{"email":"alice@lab.example.org"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@lab.example.org", decodeUser(t, rec).Email)

	rec = do(setupRouter(t, store, alice), http.MethodPut, "/api/users/alice", `{"role":"admin"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(setupRouter(t, store, admin), http.MethodPut, "/api/users/root", `{"role":"researcher"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(setupRouter(t, store, admin), http.MethodPut, "/api/users/alice", `{"role":"admin"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleAdmin, decodeUser(t, rec).Role)
}

func TestDelete(t *testing.T) {
	store := setupStore(t)
	seed(t, store, "root", "root", models.RoleAdmin)
	seed(t, store, "alice", "alice", models.RoleResearcher)
	router := setupRouter(t, store, admin)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodDelete, "/api/users/root", "").Code)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/api/users/alice", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodDelete, "/api/users/alice", "").Code)

	u, err := store.Users().GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestValidateRole(t *testing.T) {
	role, err := ValidateRole(" Researcher ")
	require.NoError(t, err)
	assert.Equal(t, models.RoleResearcher, role)

	_, err = ValidateRole("operator")
	assert.Error(t, err)
}
