package users

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
	"golang.org/x/crypto/bcrypt"

	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
)

type fakeRepo struct {
	users   map[int64]User
	hashes  map[int64]string
	nextID  int64
	calls   int
	lastFil ListFilters
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[int64]User{}, hashes: map[int64]string{}, nextID: 1}
}

func (f *fakeRepo) ListUsers(ctx context.Context, fil ListFilters) ([]User, int, error) {
	f.calls++
	f.lastFil = fil
	var out []User
	for i := int64(1); i < f.nextID; i++ {
		if u, ok := f.users[i]; ok {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) GetUser(ctx context.Context, id int64) (User, error) {
	f.calls++
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) CreateUser(ctx context.Context, in CreateInput, hash string) (User, error) {
	f.calls++
	for _, u := range f.users {
		if u.Email == in.Email {
			return User{}, ErrDuplicate
		}
	}
	u := User{ID: f.nextID, Email: in.Email, IsActive: in.Active, IsAdmin: in.Admin, Person: in.Person}
	for _, pid := range in.ProfileIDs {
		u.Profiles = append(u.Profiles, rbac.ProfileRef{ID: pid})
	}
	f.users[u.ID] = u
	f.hashes[u.ID] = hash
	f.nextID++
	return u, nil
}

func (f *fakeRepo) UpdateUser(ctx context.Context, id int64, in UpdateInput, hash *string) (User, error) {
	f.calls++
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if in.Active != nil {
		u.IsActive = *in.Active
	}
	if in.Admin != nil {
		u.IsAdmin = *in.Admin
	}
	if hash != nil {
		f.hashes[id] = *hash
	}
	if in.ProfileIDs != nil {
		u.Profiles = nil
		for _, pid := range *in.ProfileIDs {
			u.Profiles = append(u.Profiles, rbac.ProfileRef{ID: pid})
		}
	}
	f.users[id] = u
	return u, nil
}

func (f *fakeRepo) DeleteUser(ctx context.Context, id int64) error {
	f.calls++
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	delete(f.users, id)
	return nil
}

type failingAudit struct{ calls int }

func (f *failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.calls++
	return errors.New("audit store unavailable")
}

func newUsersRouter(repo *fakeRepo, sess *shared.Session) http.Handler {
	return newAuditedUsersRouter(repo, sess, nil, nil)
}

func newAuditedUsersRouter(repo *fakeRepo, sess *shared.Session, audit shared.AuditRecorder, logger *slog.Logger) http.Handler {
	svc := NewService(repo, audit, logger)
	svc.hashCost = bcrypt.MinCost
	h := NewHandler(nil, svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if sess != nil {
				req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/usuarios", h.MountRoutes)
	return r
}

func sessionWith(actions ...rbac.Action) *shared.Session {
	var set rbac.Set
	for _, a := range actions {
		set.Add(rbac.P(rbac.ModuleUsers, a))
	}
	return &shared.Session{ID: "s1", UserID: 99, Active: true, Permissions: set}
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const createBody = `{"email":"Nuevo@Example.com","password":"password123","person":{"name":"Luis","surname":"Mora","nationalId":"12345678","birthDate":"1990-04-01"},"profileIds":[2,2,3]}`

func TestHandlersRequireSession(t *testing.T) {
	repo := newFakeRepo()
	router := newUsersRouter(repo, nil)

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/api/usuarios", ""},
		{http.MethodGet, "/api/usuarios/1", ""},
		{http.MethodPost, "/api/usuarios", createBody},
		{http.MethodPut, "/api/usuarios/1", `{"active":false}`},
		{http.MethodDelete, "/api/usuarios/1", ""},
	} {
		rec := do(router, tc.method, tc.target, tc.body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.method)
	}
	assert.Zero(t, repo.calls)
}

func TestHandlersCheckOwnPermission(t *testing.T) {
	repo := newFakeRepo()
	// Every action except the one each route needs.
	cases := []struct {
		method, target, body string
		missing              rbac.Action
	}{
		{http.MethodGet, "/api/usuarios", "", rbac.ActionView},
		{http.MethodPost, "/api/usuarios", createBody, rbac.ActionCreate},
		{http.MethodPut, "/api/usuarios/1", `{"active":false}`, rbac.ActionEdit},
		{http.MethodDelete, "/api/usuarios/1", "", rbac.ActionDelete},
	}
	for _, tc := range cases {
		var granted []rbac.Action
		for _, a := range rbac.Actions() {
			if a != tc.missing {
				granted = append(granted, a)
			}
		}
		rec := do(newUsersRouter(repo, sessionWith(granted...)), tc.method, tc.target, tc.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.method)
	}
	assert.Zero(t, repo.calls, "denied requests must not reach persistence")
}

func TestCreateUser(t *testing.T) {
	repo := newFakeRepo()
	router := newUsersRouter(repo, sessionWith(rbac.ActionCreate))

	rec := do(router, http.MethodPost, "/api/usuarios", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var u User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "nuevo@example.com", u.Email)
	assert.True(t, u.IsActive)
	require.NotNil(t, u.Person.BirthDate)
	assert.Equal(t, 1990, u.Person.BirthDate.Year())
	assert.Len(t, u.Profiles, 2)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[u.ID]), []byte("password123")))

	rec = do(router, http.MethodPost, "/api/usuarios", createBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateUserValidation(t *testing.T) {
	router := newUsersRouter(newFakeRepo(), sessionWith(rbac.ActionCreate))
	for _, body := range []string{
		`{"email":"x","password":"password123","person":{"name":"a","surname":"b","nationalId":"1"}}`,
		`{"email":"a@b.co","password":"short","person":{"name":"a","surname":"b","nationalId":"1"}}`,
		`{"email":"a@b.co","password":"password123","person":{"name":"","surname":"b","nationalId":"1"}}`,
		`{"email":"a@b.co","password":"password123","person":{"name":"a","surname":"b","nationalId":"1","birthDate":"01/02/1990"}}`,
		`{"email":"a@b.co","unknown":true}`,
	} {
		rec := do(router, http.MethodPost, "/api/usuarios", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestUpdateAndDeleteUser(t *testing.T) {
	repo := newFakeRepo()
	router := newUsersRouter(repo, sessionWith(rbac.ActionCreate, rbac.ActionEdit, rbac.ActionDelete, rbac.ActionView))
	require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/usuarios", createBody).Code)

	rec := do(router, http.MethodPut, "/api/usuarios/1", `{"active":false,"profileIds":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var u User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.False(t, u.IsActive)
	assert.Empty(t, u.Profiles)

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPut, "/api/usuarios/42", `{"admin":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPut, "/api/usuarios/abc", `{}`).Code)

	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/api/usuarios/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/usuarios/1", "").Code)
}

func TestPatchUpdatesUserPartially(t *testing.T) {
	repo := newFakeRepo()
	router := newUsersRouter(repo, sessionWith(rbac.ActionCreate, rbac.ActionEdit))
	require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/usuarios", createBody).Code)

	rec := do(router, http.MethodPatch, "/api/usuarios/1", `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var u User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.False(t, u.IsActive)
	assert.Len(t, u.Profiles, 2)

	viewer := newUsersRouter(repo, sessionWith(rbac.ActionView))
	assert.Equal(t, http.StatusForbidden, do(viewer, http.MethodPatch, "/api/usuarios/1", `{"active":true}`).Code)
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	audit := &failingAudit{}
	repo := newFakeRepo()
	router := newAuditedUsersRouter(repo, sessionWith(rbac.ActionCreate), audit, logger)

	rec := do(router, http.MethodPost, "/api/usuarios", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, audit.calls)
	assert.Contains(t, logs.String(), "audit record")
	assert.Contains(t, logs.String(), "audit store unavailable")
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestCannotDeleteOrDeactivateSelf(t *testing.T) {
	repo := newFakeRepo()
	repo.users[99] = User{ID: 99, Email: "me@example.com", IsActive: true}
	router := newUsersRouter(repo, sessionWith(rbac.ActionEdit, rbac.ActionDelete))

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodDelete, "/api/usuarios/99", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPut, "/api/usuarios/99", `{"active":false}`).Code)
	assert.True(t, repo.users[99].IsActive)
}

func TestListUsersPaginates(t *testing.T) {
	repo := newFakeRepo()
	router := newUsersRouter(repo, sessionWith(rbac.ActionView))

	rec := do(router, http.MethodGet, "/api/usuarios?page=3&perPage=10&q=%20ana%20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ListFilters{Search: "ana", Limit: 10, Offset: 20}, repo.lastFil)

	var body struct {
		Users      []User            `json:"users"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Users)
	assert.Equal(t, 3, body.Pagination.Page)
}
