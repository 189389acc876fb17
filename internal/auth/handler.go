package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
	"github.com/memopsy/memopsy/internal/view"
)

const (
	msgInvalidCredentials = "Correo o contraseña incorrectos"
	msgLoginFailed        = "No se pudo iniciar sesión, intente nuevamente"
)

// Paths are the auth pages the handler redirects between.
type Paths struct {
	SignIn string
	Home   string
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	paths          Paths
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, paths Paths) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if paths.SignIn == "" {
		paths.SignIn = "/auth/signin"
	}
	if paths.Home == "" {
		paths.Home = "/dashboard"
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		paths:          paths,
	}
}

// MountRoutes registers the HTML auth pages under /auth.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/signin", h.showSignIn)
	r.Post("/signin", h.handleSignIn)
	r.Get("/signout", h.handleSignOutPage)
	r.Get("/inactive", h.showStatic("pages/inactive.html", "Cuenta inactiva"))
	r.Get("/unauthorized", h.showStatic("pages/unauthorized.html", "Acceso denegado"))
}

// MountAPIRoutes registers the JSON auth endpoints under /api/auth.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Post("/signin", h.apiSignIn)
	r.Post("/signout", h.apiSignOut)
	r.Get("/session", h.apiSession)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

func (h *Handler) showSignIn(w http.ResponseWriter, r *http.Request) {
	h.renderSignIn(w, r, http.StatusOK, "", r.URL.Query().Get("callbackUrl"), "")
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	callback := r.PostFormValue("callbackUrl")
	if err := h.validator.Struct(form); err != nil {
		h.renderSignIn(w, r, http.StatusBadRequest, form.Email, callback, msgInvalidCredentials)
		return
	}

	result, err := h.service.Login(r.Context(), form.Email, form.Password, metaFrom(r))
	if err != nil {
		status, msg := h.loginFailure(err)
		h.renderSignIn(w, r, status, form.Email, callback, msg)
		return
	}
	h.sessionManager.SetCookie(w, result.Token, result.Session.ExpiresAt)
	http.Redirect(w, r, h.safeCallback(callback), http.StatusSeeOther)
}

func (h *Handler) handleSignOutPage(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), shared.SessionFromContext(r.Context()))
	h.sessionManager.Clear(w)
	http.Redirect(w, r, h.paths.SignIn, http.StatusSeeOther)
}

func (h *Handler) showStatic(page, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := view.TemplateData{Title: title, CurrentPath: r.URL.Path}
		if err := h.templates.Render(w, page, data); err != nil {
			h.logger.Error("render page", slog.String("page", page), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

func (h *Handler) apiSignIn(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "email y password son obligatorios")
		return
	}
	result, err := h.service.Login(r.Context(), form.Email, form.Password, metaFrom(r))
	if err != nil {
		status, msg := h.loginFailure(err)
		httpx.Error(w, status, msg)
		return
	}
	h.sessionManager.SetCookie(w, result.Token, result.Session.ExpiresAt)
	httpx.JSON(w, http.StatusOK, h.sessionBody(result.Session))
}

func (h *Handler) apiSignOut(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), shared.SessionFromContext(r.Context()))
	h.sessionManager.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apiSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, h.sessionBody(sess))
}

func (h *Handler) loginFailure(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgInvalidCredentials
	case errors.Is(err, shared.ErrTooManyAttempts):
		return http.StatusTooManyRequests, httpx.MsgTooMany
	default:
		h.logger.Error("login failed", slog.Any("error", err))
		return http.StatusInternalServerError, msgLoginFailed
	}
}

func (h *Handler) renderSignIn(w http.ResponseWriter, r *http.Request, status int, email, callback, errMsg string) {
	data := view.TemplateData{
		Title:       "Iniciar sesión",
		CurrentPath: r.URL.Path,
		Error:       errMsg,
		Data: map[string]string{
			"Email":       email,
			"CallbackURL": h.safeCallback(callback),
		},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/signin.html", data); err != nil {
		h.logger.Error("render signin", slog.Any("error", err))
	}
}

// safeCallback keeps redirects on this origin. Anything that is not a plain
// absolute path, including protocol-relative URLs, falls back to home.
func (h *Handler) safeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return h.paths.Home
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return h.paths.Home
	}
	if u.Path == h.paths.SignIn {
		return h.paths.Home
	}
	return u.RequestURI()
}

type permissionBody struct {
	Module string `json:"module"`
	Action string `json:"action"`
}

type userBody struct {
	ID          int64                 `json:"id"`
	Email       string                `json:"email"`
	Active      bool                  `json:"active"`
	Admin       bool                  `json:"admin"`
	Person      shared.PersonSnapshot `json:"person"`
	Profiles    []rbac.ProfileRef     `json:"profiles"`
	Permissions []permissionBody      `json:"permissions"`
}

type sessionBody struct {
	User      userBody  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
	CSRFToken string    `json:"csrfToken"`
}

func (h *Handler) sessionBody(sess *shared.Session) sessionBody {
	perms := make([]permissionBody, 0, sess.Permissions.Len())
	for _, p := range sess.Permissions.List() {
		perms = append(perms, permissionBody{Module: p.Module.String(), Action: p.Action.String()})
	}
	profiles := sess.Profiles
	if profiles == nil {
		profiles = []rbac.ProfileRef{}
	}
	return sessionBody{
		User: userBody{
			ID:          sess.UserID,
			Email:       sess.Email,
			Active:      sess.Active,
			Admin:       sess.Admin,
			Person:      sess.Person,
			Profiles:    profiles,
			Permissions: perms,
		},
		ExpiresAt: sess.ExpiresAt,
		CSRFToken: h.csrfManager.Token(sess),
	}
}

func metaFrom(r *http.Request) LoginMeta {
	return LoginMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
