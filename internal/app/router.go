package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/memopsy/memopsy/internal/auth"
	"github.com/memopsy/memopsy/internal/dashboard"
	"github.com/memopsy/memopsy/internal/gate"
	"github.com/memopsy/memopsy/internal/observability"
	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/profiles"
	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
	"github.com/memopsy/memopsy/internal/users"
	"github.com/memopsy/memopsy/web"
)

// apiSignInPath is the JSON sign-in endpoint, exempt from CSRF like the form.
const apiSignInPath = "/api/auth/signin"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Gate               *gate.Gate
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	ProfilesHandler    *profiles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	DashboardHandler   *dashboard.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with MemoPsy defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := params.Gate.Policy()

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      logger,
		Config:      params.Config,
		Gate:        params.Gate,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
		CSRFExempt:  []string{policy.SignInPath, apiSignInPath},
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get(policy.RootPath, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, policy.HomePath, http.StatusFound)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route(policy.APIPrefix, func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, http.StatusNotFound, httpx.MsgNotFound)
		})
		r.Route("/auth", params.AuthHandler.MountAPIRoutes)
		if params.UsersHandler != nil {
			r.Route("/usuarios", params.UsersHandler.MountRoutes)
		}
		if params.ProfilesHandler != nil {
			r.Route("/perfiles", params.ProfilesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permisos", params.PermissionsHandler.MountRoutes)
			params.PermissionsHandler.MountCatalogRoutes(r)
		}
	})
	if params.DashboardHandler != nil {
		r.Route(policy.HomePath, params.DashboardHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
