package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
)

// PermissionResolver computes the authorization snapshot of a user.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID int64) (rbac.Snapshot, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(id shared.Identity) (string, *shared.Session, error)
}

// Limiter throttles failed sign-in attempts.
type Limiter interface {
	Allow(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// LoginObserver counts sign-in results.
type LoginObserver interface {
	ObserveLogin(result string)
}

// Deps groups the collaborators of Service. Limiter, Audit and Observer are
// optional.
type Deps struct {
	Repo     Repository
	Resolver PermissionResolver
	Issuer   TokenIssuer
	Limiter  Limiter
	Audit    shared.AuditRecorder
	Observer LoginObserver
	Logger   *slog.Logger
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	resolver PermissionResolver
	issuer   TokenIssuer
	limiter  Limiter
	audit    shared.AuditRecorder
	observer LoginObserver
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(deps Deps) *Service {
	s := &Service{
		repo:     deps.Repo,
		resolver: deps.Resolver,
		issuer:   deps.Issuer,
		limiter:  deps.Limiter,
		audit:    deps.Audit,
		observer: deps.Observer,
		logger:   deps.Logger,
	}
	if s.audit == nil {
		s.audit = shared.NopAudit{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// compareDummy spends the same bcrypt work as a real comparison so that
// unknown emails cannot be told apart by response time.
func compareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("memopsy-not-a-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate validates email/password credentials. Unknown email and wrong
// password both return shared.ErrInvalidCredentials. Inactive accounts
// authenticate; the flag travels in the session.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			compareDummy(password)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: authenticate: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the credentials, resolves the user's permissions and
// issues a session token.
func (s *Service) Login(ctx context.Context, email, password string, meta LoginMeta) (*LoginResult, error) {
	key := NormalizeEmail(email)
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, key); err != nil {
			if errors.Is(err, shared.ErrTooManyAttempts) {
				s.observe("throttled")
				return nil, err
			}
			s.logger.Warn("login throttle unavailable", slog.Any("error", err))
		}
	}

	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			s.observe("invalid")
			s.recordFailure(ctx, key, meta)
			return nil, err
		}
		s.observe("error")
		return nil, err
	}

	snap, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		s.observe("error")
		return nil, fmt.Errorf("auth: resolve permissions: %w", err)
	}

	token, sess, err := s.issuer.Issue(shared.Identity{
		UserID:      user.ID,
		Email:       user.Email,
		Active:      user.IsActive,
		Admin:       user.IsAdmin,
		Person:      user.Person,
		Profiles:    snap.Profiles,
		Permissions: snap.Permissions,
	})
	if err != nil {
		s.observe("error")
		return nil, fmt.Errorf("auth: issue session: %w", err)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, key); err != nil {
			s.logger.Warn("reset login throttle", slog.Any("error", err))
		}
	}
	s.observe("success")
	s.record(ctx, shared.AuditLog{
		ActorID:  user.ID,
		Action:   shared.AuditLogin,
		Entity:   "user",
		EntityID: strconv.FormatInt(user.ID, 10),
		Meta:     map[string]any{"ip": meta.IP, "user_agent": meta.UserAgent, "session_id": sess.ID},
	})
	return &LoginResult{Token: token, Session: sess, User: user}, nil
}

// Logout records the end of a session. The token itself is stateless; the
// caller clears the cookie.
func (s *Service) Logout(ctx context.Context, sess *shared.Session) {
	if sess == nil {
		return
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  sess.UserID,
		Action:   shared.AuditLogout,
		Entity:   "user",
		EntityID: strconv.FormatInt(sess.UserID, 10),
		Meta:     map[string]any{"session_id": sess.ID},
	})
}

func (s *Service) recordFailure(ctx context.Context, key string, meta LoginMeta) {
	if s.limiter != nil {
		if err := s.limiter.Fail(ctx, key); err != nil {
			s.logger.Warn("count login failure", slog.Any("error", err))
		}
	}
	s.record(ctx, shared.AuditLog{
		Action:   shared.AuditLoginFailed,
		Entity:   "login",
		EntityID: key,
		Meta:     map[string]any{"ip": meta.IP, "user_agent": meta.UserAgent},
	})
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveLogin(result)
	}
}
