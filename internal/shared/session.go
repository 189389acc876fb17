package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/memopsy/memopsy/internal/rbac"
)

const (
	// SessionCookieName is the cookie carrying the session token over plain HTTP.
	SessionCookieName = "memopsy.session-token"
	// SecureSessionCookieName is the cookie used when the application runs behind TLS.
	SecureSessionCookieName = "__Secure-memopsy.session-token"
	// DefaultSessionTTL is the fixed lifetime of an issued token.
	DefaultSessionTTL = 24 * time.Hour

	sessionIssuer = "memopsy"
)

var (
	// ErrNoSession indicates that the request carries no session cookie.
	ErrNoSession = errors.New("session: missing")
	// ErrMalformedSession indicates a token that failed verification or decoding.
	ErrMalformedSession = errors.New("session: malformed")
)

// PersonSnapshot is the display data of the person behind the account.
type PersonSnapshot struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

// Identity is everything needed to issue a session.
type Identity struct {
	UserID      int64
	Email       string
	Active      bool
	Admin       bool
	Person      PersonSnapshot
	Profiles    []rbac.ProfileRef
	Permissions rbac.Set
}

// Session is the decoded, verified content of a session token.
// Consumers treat it as read-only.
type Session struct {
	ID          string
	UserID      int64
	Email       string
	Active      bool
	Admin       bool
	Person      PersonSnapshot
	Profiles    []rbac.ProfileRef
	Permissions rbac.Set
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Can reports whether the session grants the permission.
func (s *Session) Can(p rbac.Permission) bool {
	return s != nil && s.Permissions.Has(p)
}

type namedRef struct {
	Name string `json:"name"`
}

type permissionClaim struct {
	Module namedRef `json:"module"`
	Action namedRef `json:"action"`
}

// Claims is the wire form of the session token.
type Claims struct {
	Email       string            `json:"email"`
	Active      bool              `json:"active"`
	Admin       bool              `json:"admin"`
	Person      PersonSnapshot    `json:"person"`
	Profiles    []rbac.ProfileRef `json:"profiles"`
	Permissions []permissionClaim `json:"permissions"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies signed session tokens carried in cookies.
// It keeps no server-side state.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewSessionManager constructs a SessionManager. A non-positive ttl falls back
// to DefaultSessionTTL.
func NewSessionManager(secret string, ttl time.Duration, secure bool) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (sm *SessionManager) WithClock(now func() time.Time) *SessionManager {
	sm.now = now
	return sm
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used when writing sessions.
func (sm *SessionManager) CookieName() string {
	if sm.secure {
		return SecureSessionCookieName
	}
	return SessionCookieName
}

// Issue signs a new token for the identity.
func (sm *SessionManager) Issue(id Identity) (string, *Session, error) {
	if id.UserID <= 0 {
		return "", nil, errors.New("session: user id required")
	}
	now := sm.now().UTC().Truncate(time.Second)
	perms := id.Permissions.List()
	claims := Claims{
		Email:       id.Email,
		Active:      id.Active,
		Admin:       id.Admin,
		Person:      id.Person,
		Profiles:    append([]rbac.ProfileRef{}, id.Profiles...),
		Permissions: make([]permissionClaim, 0, len(perms)),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sm.ttl)),
		},
	}
	for _, p := range perms {
		if !p.Valid() {
			return "", nil, fmt.Errorf("session: invalid permission %s", p)
		}
		claims.Permissions = append(claims.Permissions, permissionClaim{
			Module: namedRef{Name: p.Module.String()},
			Action: namedRef{Name: p.Action.String()},
		})
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(sm.secret)
	if err != nil {
		return "", nil, fmt.Errorf("session: sign token: %w", err)
	}
	sess, err := claims.toSession()
	if err != nil {
		return "", nil, err
	}
	return signed, sess, nil
}

// Parse verifies a token and decodes it into a Session. Every failure wraps
// ErrMalformedSession.
func (sm *SessionManager) Parse(raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrNoSession
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return sm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	return claims.toSession()
}

// FromRequest decodes the session cookie of r. Both cookie names are
// accepted; the secure variant wins when both are present.
func (sm *SessionManager) FromRequest(r *http.Request) (*Session, error) {
	for _, name := range []string{SecureSessionCookieName, SessionCookieName} {
		cookie, err := r.Cookie(name)
		if err != nil || cookie.Value == "" {
			continue
		}
		return sm.Parse(cookie.Value)
	}
	return nil, ErrNoSession
}

// SetCookie writes the session token cookie.
func (sm *SessionManager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires both session cookie variants.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	for _, name := range []string{SessionCookieName, SecureSessionCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   name == SecureSessionCookieName || sm.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (c Claims) toSession() (*Session, error) {
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: subject %q", ErrMalformedSession, c.Subject)
	}
	var perms rbac.Set
	for _, pc := range c.Permissions {
		p, err := rbac.ParsePermission(pc.Module.Name, pc.Action.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
		}
		perms.Add(p)
	}
	sess := &Session{
		ID:          c.ID,
		UserID:      userID,
		Email:       c.Email,
		Active:      c.Active,
		Admin:       c.Admin,
		Person:      c.Person,
		Profiles:    c.Profiles,
		Permissions: perms,
	}
	if c.IssuedAt != nil {
		sess.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		sess.ExpiresAt = c.ExpiresAt.Time
	}
	return sess, nil
}
