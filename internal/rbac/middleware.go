package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/memopsy/memopsy/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handler groups.
type Middleware struct {
	Authorize Authorizer
	Logger    *slog.Logger
}

// RequireAny ensures the current session holds at least one of perms.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	required := NewSet(perms...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if required.Len() == 0 {
				next.ServeHTTP(w, r)
				return
			}
			var lastErr error
			for _, p := range required.List() {
				err := m.Authorize(r.Context(), p)
				if err == nil {
					next.ServeHTTP(w, r)
					return
				}
				lastErr = err
				if errors.Is(err, httpx.ErrUnauthorized) {
					break
				}
			}
			m.deny(w, r, lastErr)
		})
	}
}

// RequireAll ensures the current session holds every permission in perms.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	required := NewSet(perms...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range required.List() {
				if err := m.Authorize(r.Context(), p); err != nil {
					m.deny(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, err error) {
	if m.Logger != nil {
		m.Logger.Debug("rbac denied", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
