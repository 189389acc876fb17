package profiles

import (
	"fmt"
	"time"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
)

var (
	// ErrNotFound indicates the profile does not exist.
	ErrNotFound = fmt.Errorf("profiles: %w", httpx.ErrNotFound)
	// ErrDuplicate indicates the profile name is taken.
	ErrDuplicate = fmt.Errorf("profiles: %w", httpx.ErrDuplicate)
)

// Profile is a named bundle of permissions assignable to users.
type Profile struct {
	ID          int64                    `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Permissions []rbac.CatalogPermission `json:"permissions"`
	UserCount   int                      `json:"userCount"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

// Input carries the writable fields of a profile. PermissionIDs replaces the
// whole permission set.
type Input struct {
	Name          string
	Description   string
	PermissionIDs []int64
}
