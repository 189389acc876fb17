package users

import (
	"fmt"
	"time"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = fmt.Errorf("users: %w", httpx.ErrNotFound)
	// ErrDuplicate indicates the email or national id is taken.
	ErrDuplicate = fmt.Errorf("users: %w", httpx.ErrDuplicate)
)

// Person is the human behind an account.
type Person struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Surname    string     `json:"surname"`
	NationalID string     `json:"nationalId"`
	BirthDate  *time.Time `json:"birthDate,omitempty"`
}

// User represents a user account for management.
type User struct {
	ID        int64             `json:"id"`
	Email     string            `json:"email"`
	IsActive  bool              `json:"active"`
	IsAdmin   bool              `json:"admin"`
	Person    Person            `json:"person"`
	Profiles  []rbac.ProfileRef `json:"profiles"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	Email      string
	Password   string
	Active     bool
	Admin      bool
	Person     Person
	ProfileIDs []int64
}

// UpdateInput carries a partial update. Nil fields are left untouched; a
// non-nil ProfileIDs replaces the whole profile assignment.
type UpdateInput struct {
	Active     *bool
	Admin      *bool
	Password   *string
	ProfileIDs *[]int64
}

// ListFilters narrows and pages a listing.
type ListFilters struct {
	Search string
	Limit  int
	Offset int
}
