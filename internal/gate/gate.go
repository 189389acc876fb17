// Package gate enforces the route authorization policy in front of every
// handler. Decisions are pure functions of the request path, method and
// decoded session; no store is consulted.
package gate

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
)

// Outcome is the result of evaluating a request.
type Outcome uint8

const (
	Allow Outcome = iota
	RedirectSignIn
	RedirectInactive
	RedirectUnauthorized
	Forbidden
	RedirectCanonical
	BadPath
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectSignIn:
		return "redirect_signin"
	case RedirectInactive:
		return "redirect_inactive"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	case Forbidden:
		return "forbidden"
	case RedirectCanonical:
		return "redirect_canonical"
	case BadPath:
		return "bad_path"
	default:
		return "unknown"
	}
}

// Decision describes what the gate does with a request.
type Decision struct {
	Outcome  Outcome
	Location string
	Required rbac.Permission
}

// SessionDecoder extracts the session from a request.
type SessionDecoder interface {
	FromRequest(r *http.Request) (*shared.Session, error)
}

// Recorder observes gate outcomes.
type Recorder interface {
	ObserveGateDecision(outcome string)
}

// Gate evaluates the policy against each request.
type Gate struct {
	policy   *Policy
	sessions SessionDecoder
	recorder Recorder
	logger   *slog.Logger
}

// New constructs a Gate. recorder may be nil.
func New(policy *Policy, sessions SessionDecoder, recorder Recorder, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{policy: policy, sessions: sessions, recorder: recorder, logger: logger}
}

// Policy returns the policy the gate enforces.
func (g *Gate) Policy() *Policy {
	return g.policy
}

// Evaluate decides the fate of a request. sess is nil when no valid session
// was presented.
func (g *Gate) Evaluate(method, requestPath string, sess *shared.Session) Decision {
	p := cleanRequestPath(requestPath)
	if g.policy.IsPublic(p) {
		return Decision{Outcome: Allow}
	}
	ui := !g.policy.IsAPI(p)

	if sess == nil {
		if ui {
			return Decision{Outcome: RedirectSignIn, Location: g.signInURL(requestPath)}
		}
		// API handlers answer 401 themselves.
		return Decision{Outcome: Allow}
	}

	if !sess.Active && ui {
		return Decision{Outcome: RedirectInactive, Location: g.policy.InactivePath}
	}

	required, ok := g.policy.Required(method, p)
	if ok && !sess.Can(required) {
		if ui {
			return Decision{Outcome: RedirectUnauthorized, Location: g.policy.UnauthorizedPath, Required: required}
		}
		return Decision{Outcome: Forbidden, Required: required}
	}
	return Decision{Outcome: Allow, Required: required}
}

// Middleware decodes the session, attaches it to the request context and
// applies the decision. The decision is taken on the same path the router
// dispatches on, so requests whose path is not canonical are redirected or
// refused before any rule is consulted.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		routed, ok := routingPath(r.URL)
		if !ok {
			g.observe(BadPath)
			g.logger.Info("gate refused path", slog.String("path", r.URL.EscapedPath()), slog.String("method", r.Method))
			g.badPath(w, r)
			return
		}
		if canonical := canonicalPath(routed); canonical != routed {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				g.observe(BadPath)
				g.badPath(w, r)
				return
			}
			g.observe(RedirectCanonical)
			if r.URL.RawQuery != "" {
				canonical += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, canonical, http.StatusMovedPermanently)
			return
		}

		sess := g.decode(r)
		decision := g.Evaluate(r.Method, routed, sess)
		g.observe(decision.Outcome)

		switch decision.Outcome {
		case Allow:
			if sess != nil {
				r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		case Forbidden:
			g.logger.Info("gate denied request",
				slog.String("path", routed),
				slog.String("method", r.Method),
				slog.Int64("user_id", sess.UserID),
				slog.String("required", decision.Required.String()))
			httpx.Error(w, http.StatusForbidden, httpx.MsgForbidden)
		default:
			if decision.Outcome == RedirectUnauthorized {
				g.logger.Info("gate redirected request",
					slog.String("path", routed),
					slog.Int64("user_id", sess.UserID),
					slog.String("required", decision.Required.String()))
			}
			http.Redirect(w, r, decision.Location, http.StatusFound)
		}
	})
}

func (g *Gate) observe(o Outcome) {
	if g.recorder != nil {
		g.recorder.ObserveGateDecision(o.String())
	}
}

func (g *Gate) badPath(w http.ResponseWriter, r *http.Request) {
	if g.policy.IsAPI(cleanRequestPath(r.URL.EscapedPath())) {
		httpx.Error(w, http.StatusBadRequest, httpx.MsgBadPath)
		return
	}
	http.Error(w, httpx.MsgBadPath, http.StatusBadRequest)
}

// decode treats every failure, including a panic inside the token parser,
// as the absence of a session.
func (g *Gate) decode(r *http.Request) (sess *shared.Session) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Warn("session decode panicked", slog.Any("panic", rec))
			sess = nil
		}
	}()
	s, err := g.sessions.FromRequest(r)
	if err != nil {
		if !errors.Is(err, shared.ErrNoSession) {
			g.logger.Debug("discarding invalid session", slog.Any("error", err))
		}
		return nil
	}
	return s
}

func (g *Gate) signInURL(callback string) string {
	if callback == "" {
		callback = "/"
	}
	return g.policy.SignInPath + "?" + url.Values{"callbackUrl": {callback}}.Encode()
}

// routingPath returns the path chi dispatches on: the escaped form when the
// request carried one, the decoded path otherwise. Segments that only become
// separators or dot segments once decoded are refused, since the router and
// the policy would read them differently.
func routingPath(u *url.URL) (string, bool) {
	p := u.Path
	if u.RawPath != "" {
		p = u.RawPath
	}
	if p == "" {
		return "/", true
	}
	for _, seg := range strings.Split(p, "/") {
		if !strings.Contains(seg, "%") {
			continue
		}
		dec, err := url.PathUnescape(seg)
		if err != nil || dec == "." || dec == ".." || strings.ContainsAny(dec, "/\\") {
			return "", false
		}
	}
	return p, true
}

// canonicalPath cleans p but keeps a single trailing slash, which chi
// routes the same as its absence.
func canonicalPath(p string) string {
	c := cleanRequestPath(p)
	if c != "/" && strings.HasSuffix(p, "/") {
		c += "/"
	}
	return c
}

func cleanRequestPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
