package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
)

type fakeRepo struct {
	profiles map[int64]Profile
	nextID   int64
	calls    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{profiles: map[int64]Profile{}, nextID: 1}
}

func (f *fakeRepo) ListProfiles(ctx context.Context) ([]Profile, error) {
	f.calls++
	var out []Profile
	for i := int64(1); i < f.nextID; i++ {
		if p, ok := f.profiles[i]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetProfile(ctx context.Context, id int64) (Profile, error) {
	f.calls++
	p, ok := f.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) store(id int64, in Input) Profile {
	p := Profile{ID: id, Name: in.Name, Description: in.Description}
	for _, pid := range in.PermissionIDs {
		p.Permissions = append(p.Permissions, rbac.CatalogPermission{ID: pid})
	}
	f.profiles[id] = p
	return p
}

func (f *fakeRepo) CreateProfile(ctx context.Context, in Input) (Profile, error) {
	f.calls++
	for _, p := range f.profiles {
		if p.Name == in.Name {
			return Profile{}, ErrDuplicate
		}
	}
	p := f.store(f.nextID, in)
	f.nextID++
	return p, nil
}

func (f *fakeRepo) UpdateProfile(ctx context.Context, id int64, in Input) (Profile, error) {
	f.calls++
	if _, ok := f.profiles[id]; !ok {
		return Profile{}, ErrNotFound
	}
	return f.store(id, in), nil
}

func (f *fakeRepo) DeleteProfile(ctx context.Context, id int64) error {
	f.calls++
	if _, ok := f.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(f.profiles, id)
	return nil
}

type memAudit struct{ logs []shared.AuditLog }

func (m *memAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type failingAudit struct{}

func (failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	return errors.New("audit store unavailable")
}

func newRouter(repo *fakeRepo, audit shared.AuditRecorder, perms ...rbac.Permission) http.Handler {
	return newLoggedRouter(repo, audit, nil, perms...)
}

func newLoggedRouter(repo *fakeRepo, audit shared.AuditRecorder, logger *slog.Logger, perms ...rbac.Permission) http.Handler {
	h := NewHandler(nil, NewService(repo, audit, logger), rbac.Middleware{Authorize: shared.Check})
	sess := &shared.Session{ID: "s", UserID: 5, Active: true, Permissions: rbac.NewSet(perms...)}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/api/perfiles", h.MountRoutes)
	return r
}

func send(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestProfileRoutesRequirePermission(t *testing.T) {
	repo := newFakeRepo()
	router := newRouter(repo, nil, rbac.P(rbac.ModuleUsers, rbac.ActionView))

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/api/perfiles", ""},
		{http.MethodGet, "/api/perfiles/1", ""},
		{http.MethodPost, "/api/perfiles", `{"name":"X"}`},
		{http.MethodPut, "/api/perfiles/1", `{"name":"X"}`},
		{http.MethodPatch, "/api/perfiles/1", `{"name":"X"}`},
		{http.MethodDelete, "/api/perfiles/1", ""},
	} {
		assert.Equal(t, http.StatusForbidden, send(router, tc.method, tc.target, tc.body).Code, tc.method)
	}
	assert.Zero(t, repo.calls)
}

func TestProfileViewerCannotWrite(t *testing.T) {
	repo := newFakeRepo()
	router := newRouter(repo, nil, rbac.P(rbac.ModuleProfiles, rbac.ActionView))

	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/api/perfiles", "").Code)
	assert.Equal(t, http.StatusForbidden, send(router, http.MethodPost, "/api/perfiles", `{"name":"X"}`).Code)
}

func TestProfileLifecycle(t *testing.T) {
	repo := newFakeRepo()
	audit := &memAudit{}
	router := newRouter(repo, audit,
		rbac.P(rbac.ModuleProfiles, rbac.ActionView),
		rbac.P(rbac.ModuleProfiles, rbac.ActionCreate),
		rbac.P(rbac.ModuleProfiles, rbac.ActionEdit),
		rbac.P(rbac.ModuleProfiles, rbac.ActionDelete),
	)

	rec := send(router, http.MethodPost, "/api/perfiles", `{"name":"  Recepción ","permissionIds":[4,4,7]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Recepción", created.Name)
	assert.Len(t, created.Permissions, 2)

	assert.Equal(t, http.StatusConflict, send(router, http.MethodPost, "/api/perfiles", `{"name":"Recepción"}`).Code)

	rec = send(router, http.MethodPut, "/api/perfiles/1", `{"name":"Recepción","permissionIds":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Empty(t, updated.Permissions)

	rec = send(router, http.MethodGet, "/api/perfiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"profiles":[`)

	assert.Equal(t, http.StatusNoContent, send(router, http.MethodDelete, "/api/perfiles/1", "").Code)
	assert.Equal(t, http.StatusNotFound, send(router, http.MethodGet, "/api/perfiles/1", "").Code)

	require.Len(t, audit.logs, 3)
	for _, l := range audit.logs {
		assert.Equal(t, shared.AuditProfileChanged, l.Action)
		assert.Equal(t, int64(5), l.ActorID)
	}
}

func TestProfileValidation(t *testing.T) {
	router := newRouter(newFakeRepo(), nil, rbac.P(rbac.ModuleProfiles, rbac.ActionCreate))
	for _, body := range []string{`{"name":""}`, `{"name":"A","permissionIds":[0]}`, `{"name":"A","extra":1}`, `not json`} {
		assert.Equal(t, http.StatusBadRequest, send(router, http.MethodPost, "/api/perfiles", body).Code, body)
	}
}

func TestEmptyListIsArray(t *testing.T) {
	router := newRouter(newFakeRepo(), nil, rbac.P(rbac.ModuleProfiles, rbac.ActionView))
	rec := send(router, http.MethodGet, "/api/perfiles", "")
	assert.JSONEq(t, `{"profiles":[]}`, rec.Body.String())
}

func TestPatchProfileNeedsEdit(t *testing.T) {
	repo := newFakeRepo()
	router := newRouter(repo, nil,
		rbac.P(rbac.ModuleProfiles, rbac.ActionCreate),
		rbac.P(rbac.ModuleProfiles, rbac.ActionEdit),
	)
	require.Equal(t, http.StatusCreated, send(router, http.MethodPost, "/api/perfiles", `{"name":"Caja"}`).Code)

	rec := send(router, http.MethodPatch, "/api/perfiles/1", `{"name":"Caja","description":"turno tarde"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "turno tarde", updated.Description)

	creator := newRouter(repo, nil, rbac.P(rbac.ModuleProfiles, rbac.ActionCreate))
	assert.Equal(t, http.StatusForbidden, send(creator, http.MethodPatch, "/api/perfiles/1", `{"name":"Otro"}`).Code)
}

func TestAuditFailureIsLoggedNotReturned(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	router := newLoggedRouter(newFakeRepo(), failingAudit{}, logger, rbac.P(rbac.ModuleProfiles, rbac.ActionCreate))

	rec := send(router, http.MethodPost, "/api/perfiles", `{"name":"Archivo"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "audit store unavailable")
}
