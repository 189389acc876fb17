// Package dashboard serves the HTML shell of the admin area.
package dashboard

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
	"github.com/memopsy/memopsy/internal/view"
)

// Paths are the pages the dashboard sends users to when a check fails.
type Paths struct {
	SignIn       string
	Inactive     string
	Unauthorized string
}

// Handler renders dashboard pages.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	paths     Paths
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, paths Paths) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if paths.SignIn == "" {
		paths.SignIn = "/auth/signin"
	}
	if paths.Inactive == "" {
		paths.Inactive = "/auth/inactive"
	}
	if paths.Unauthorized == "" {
		paths.Unauthorized = "/auth/unauthorized"
	}
	return &Handler{logger: logger, templates: templates, csrf: csrf, paths: paths}
}

// MountRoutes registers dashboard routes under /dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/{section}", h.section)
	r.Get("/{section}/*", h.section)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.toSignIn(w, r)
		return
	}
	if !sess.Active {
		http.Redirect(w, r, h.paths.Inactive, http.StatusFound)
		return
	}
	h.render(w, r, sess, "pages/dashboard.html", "Inicio", rbac.ModuleUnknown, nil)
}

func (h *Handler) section(w http.ResponseWriter, r *http.Request) {
	module, ok := rbac.ModuleFromSlug(chi.URLParam(r, "section"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess, err := shared.Authorize(r.Context(), rbac.P(module, rbac.ActionView))
	if err != nil {
		if errors.Is(err, httpx.ErrUnauthorized) {
			h.toSignIn(w, r)
			return
		}
		if sess != nil {
			h.logger.Debug("dashboard section denied", slog.String("module", module.String()), slog.Int64("user_id", sess.UserID))
		}
		http.Redirect(w, r, h.paths.Unauthorized, http.StatusFound)
		return
	}
	if !sess.Active {
		h.logger.Info("inactive account reached dashboard section", slog.String("module", module.String()), slog.Int64("user_id", sess.UserID))
		http.Redirect(w, r, h.paths.Inactive, http.StatusFound)
		return
	}
	data := map[string]string{"Module": module.String(), "API": "/api/" + module.Slug()}
	h.render(w, r, sess, "pages/section.html", module.String(), module, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, sess *shared.Session, page, title string, current rbac.Module, data any) {
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   h.csrf.Token(sess),
		CurrentPath: r.URL.Path,
		Session:     sess,
		Nav:         Navigation(sess, current),
		Data:        data,
	}
	if err := h.templates.Render(w, page, viewData); err != nil {
		h.logger.Error("render dashboard", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) toSignIn(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.paths.SignIn+"?"+url.Values{"callbackUrl": {r.URL.RequestURI()}}.Encode(), http.StatusFound)
}

// Navigation lists the sections the session may view, in catalog order.
func Navigation(sess *shared.Session, current rbac.Module) []view.NavLink {
	if sess == nil {
		return nil
	}
	modules := sess.Permissions.Modules(rbac.ActionView)
	links := make([]view.NavLink, 0, len(modules))
	for _, m := range modules {
		links = append(links, view.NavLink{Label: m.String(), Href: "/dashboard/" + m.Slug(), Active: m == current})
	}
	return links
}
