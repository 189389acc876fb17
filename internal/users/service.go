package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/shared"
)

const minPasswordLength = 8

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, f ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, in CreateInput, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, id int64, in UpdateInput, passwordHash *string) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	logger   *slog.Logger
	hashCost int
}

// NewService builds Service instance. audit and logger may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, hashCost: bcrypt.DefaultCost}
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, search string, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	list, total, err := s.repo.ListUsers(ctx, ListFilters{
		Search: strings.TrimSpace(search),
		Limit:  p.PerPage,
		Offset: p.Offset(),
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if list == nil {
		list = []User{}
	}
	return list, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser hashes the password and stores the account with its person and
// profile assignments.
func (s *Service) CreateUser(ctx context.Context, actorID int64, in CreateInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Person.Name = strings.TrimSpace(in.Person.Name)
	in.Person.Surname = strings.TrimSpace(in.Person.Surname)
	in.Person.NationalID = strings.TrimSpace(in.Person.NationalID)
	if len(in.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: la contraseña debe tener al menos %d caracteres", httpx.ErrValidation, minPasswordLength)
	}
	in.ProfileIDs = dedupIDs(in.ProfileIDs)
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	u, err := s.repo.CreateUser(ctx, in, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, shared.AuditUserCreated, u.ID, map[string]any{"email": u.Email, "profiles": in.ProfileIDs})
	return u, nil
}

// UpdateUser changes flags, password or profile assignment of a user.
// Changes reach the user's session at its next sign-in.
func (s *Service) UpdateUser(ctx context.Context, actorID, id int64, in UpdateInput) (User, error) {
	var hash *string
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return User{}, fmt.Errorf("%w: la contraseña debe tener al menos %d caracteres", httpx.ErrValidation, minPasswordLength)
		}
		h, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.hashCost)
		if err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
		hs := string(h)
		hash = &hs
	}
	if in.ProfileIDs != nil {
		ids := dedupIDs(*in.ProfileIDs)
		in.ProfileIDs = &ids
	}
	if actorID == id && in.Active != nil && !*in.Active {
		return User{}, fmt.Errorf("%w: no puede desactivar su propia cuenta", httpx.ErrValidation)
	}
	u, err := s.repo.UpdateUser(ctx, id, in, hash)
	if err != nil {
		return User{}, err
	}
	meta := map[string]any{"active": in.Active, "admin": in.Admin, "password_changed": hash != nil}
	if in.ProfileIDs != nil {
		meta["profiles"] = *in.ProfileIDs
	}
	s.record(ctx, actorID, shared.AuditUserUpdated, id, meta)
	return u, nil
}

// DeleteUser removes a user. Users cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return fmt.Errorf("%w: no puede eliminar su propia cuenta", httpx.ErrValidation)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditUserDeleted, id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
