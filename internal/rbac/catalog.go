package rbac

import (
	"context"
	"fmt"

	"github.com/memopsy/memopsy/internal/platform/httpx"
)

// CatalogRepository persists modules, actions and permissions.
type CatalogRepository interface {
	ListModules(ctx context.Context) ([]CatalogEntry, error)
	ListActions(ctx context.Context) ([]CatalogEntry, error)
	ListPermissions(ctx context.Context) ([]CatalogPermission, error)
	CreatePermission(ctx context.Context, moduleID, actionID int64, accept func(module, action string) error) (CatalogPermission, error)
	DeletePermission(ctx context.Context, id int64) error
}

// CatalogService exposes the permission catalog.
type CatalogService struct {
	repo CatalogRepository
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(repo CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

// ListModules returns all modules.
func (s *CatalogService) ListModules(ctx context.Context) ([]CatalogEntry, error) {
	return s.repo.ListModules(ctx)
}

// ListActions returns all actions.
func (s *CatalogService) ListActions(ctx context.Context) ([]CatalogEntry, error) {
	return s.repo.ListActions(ctx)
}

// ListPermissions returns all permissions ordered by module then action.
func (s *CatalogService) ListPermissions(ctx context.Context) ([]CatalogPermission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission adds a (module, action) pair to the catalog. The pair must
// resolve to a known Module and Action, otherwise the route gate could never
// match it. Names are checked before the row is written.
func (s *CatalogService) CreatePermission(ctx context.Context, moduleID, actionID int64) (CatalogPermission, error) {
	if moduleID <= 0 || actionID <= 0 {
		return CatalogPermission{}, fmt.Errorf("%w: moduleId y actionId son obligatorios", httpx.ErrValidation)
	}
	return s.repo.CreatePermission(ctx, moduleID, actionID, func(module, action string) error {
		if _, err := ParseModule(module); err != nil {
			return fmt.Errorf("%w: módulo desconocido %q", httpx.ErrValidation, module)
		}
		if _, err := ParseAction(action); err != nil {
			return fmt.Errorf("%w: acción desconocida %q", httpx.ErrValidation, action)
		}
		return nil
	})
}

// DeletePermission removes a permission by id.
func (s *CatalogService) DeletePermission(ctx context.Context, id int64) error {
	return s.repo.DeletePermission(ctx, id)
}
