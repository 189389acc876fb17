package dashboard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
	"github.com/memopsy/memopsy/internal/view"
)

func newRouter(t *testing.T, sess *shared.Session) http.Handler {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, engine, shared.NewCSRFManager("csrf"), Paths{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if sess != nil {
				req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/dashboard", h.MountRoutes)
	return r
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHomeListsViewableSections(t *testing.T) {
	sess := &shared.Session{ID: "s", UserID: 1, Active: true, Person: shared.PersonSnapshot{Name: "Ana"},
		Permissions: rbac.NewSet(
			rbac.P(rbac.ModulePsychologists, rbac.ActionView),
			rbac.P(rbac.ModuleUsers, rbac.ActionView),
			rbac.P(rbac.ModuleProfiles, rbac.ActionCreate),
		)}
	rec := get(newRouter(t, sess), "/dashboard")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `href="/dashboard/usuarios"`)
	assert.Contains(t, body, `href="/dashboard/psicologos"`)
	assert.NotContains(t, body, `href="/dashboard/perfiles"`)
}

func TestSectionRechecksPermission(t *testing.T) {
	sess := &shared.Session{ID: "s", UserID: 1, Active: true, Permissions: rbac.NewSet(rbac.P(rbac.ModuleUsers, rbac.ActionView))}
	router := newRouter(t, sess)

	rec := get(router, "/dashboard/usuarios")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-module="Usuarios"`)

	rec = get(router, "/dashboard/pacientes")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/unauthorized", rec.Header().Get("Location"))

	rec = get(router, "/dashboard/contabilidad")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInactiveSessionSeesNoSection(t *testing.T) {
	sess := &shared.Session{ID: "s", UserID: 1, Active: false, Permissions: rbac.NewSet(rbac.P(rbac.ModuleUsers, rbac.ActionView))}
	router := newRouter(t, sess)

	for _, p := range []string{"/dashboard", "/dashboard/usuarios", "/dashboard/usuarios/..%2F..%2Fauth"} {
		rec := get(router, p)
		assert.Equal(t, http.StatusFound, rec.Code, p)
		assert.Equal(t, "/auth/inactive", rec.Header().Get("Location"), p)
		assert.NotContains(t, rec.Body.String(), `data-module="Usuarios"`, p)
	}
}

func TestWithoutSessionRedirectsToSignIn(t *testing.T) {
	router := newRouter(t, nil)
	for _, p := range []string{"/dashboard", "/dashboard/usuarios"} {
		rec := get(router, p)
		assert.Equal(t, http.StatusFound, rec.Code, p)
		assert.Contains(t, rec.Header().Get("Location"), "/auth/signin?callbackUrl=")
	}
}

func TestNavigationMarksCurrent(t *testing.T) {
	sess := &shared.Session{Permissions: rbac.NewSet(rbac.P(rbac.ModuleReports, rbac.ActionView), rbac.P(rbac.ModuleUsers, rbac.ActionView))}
	links := Navigation(sess, rbac.ModuleReports)
	require.Len(t, links, 2)
	assert.Equal(t, "Usuarios", links[0].Label)
	assert.False(t, links[0].Active)
	assert.Equal(t, "/dashboard/informes", links[1].Href)
	assert.True(t, links[1].Active)
	assert.Nil(t, Navigation(nil, rbac.ModuleUnknown))
}
