package profiles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/shared"
)

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	GetProfile(ctx context.Context, id int64) (Profile, error)
	CreateProfile(ctx context.Context, in Input) (Profile, error)
	UpdateProfile(ctx context.Context, id int64, in Input) (Profile, error)
	DeleteProfile(ctx context.Context, id int64) error
}

// Service handles profile business logic.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance. audit and logger may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListProfiles returns all profiles with their permissions.
func (s *Service) ListProfiles(ctx context.Context) ([]Profile, error) {
	list, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Profile{}
	}
	return list, nil
}

// GetProfile returns one profile.
func (s *Service) GetProfile(ctx context.Context, id int64) (Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

// CreateProfile stores a new profile.
func (s *Service) CreateProfile(ctx context.Context, actorID int64, in Input) (Profile, error) {
	in, err := normalize(in)
	if err != nil {
		return Profile{}, err
	}
	p, err := s.repo.CreateProfile(ctx, in)
	if err != nil {
		return Profile{}, err
	}
	s.record(ctx, actorID, p.ID, "created", in)
	return p, nil
}

// UpdateProfile renames a profile and replaces its permission set. Users
// holding the profile see the change at their next sign-in.
func (s *Service) UpdateProfile(ctx context.Context, actorID, id int64, in Input) (Profile, error) {
	in, err := normalize(in)
	if err != nil {
		return Profile{}, err
	}
	p, err := s.repo.UpdateProfile(ctx, id, in)
	if err != nil {
		return Profile{}, err
	}
	s.record(ctx, actorID, id, "updated", in)
	return p, nil
}

// DeleteProfile removes a profile and its assignments.
func (s *Service) DeleteProfile(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteProfile(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, id, "deleted", Input{})
	return nil
}

func (s *Service) record(ctx context.Context, actorID, id int64, change string, in Input) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditProfileChanged,
		Entity:   "profile",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"change": change, "name": in.Name, "permissions": in.PermissionIDs},
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("change", change), slog.Int64("profile_id", id), slog.Any("error", err))
	}
}

func normalize(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return Input{}, fmt.Errorf("%w: el nombre es obligatorio", httpx.ErrValidation)
	}
	seen := make(map[int64]struct{}, len(in.PermissionIDs))
	ids := make([]int64, 0, len(in.PermissionIDs))
	for _, id := range in.PermissionIDs {
		if id <= 0 {
			return Input{}, fmt.Errorf("%w: permiso inválido %d", httpx.ErrValidation, id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	in.PermissionIDs = ids
	return in, nil
}
