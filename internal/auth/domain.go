package auth

import (
	"time"

	"github.com/memopsy/memopsy/internal/shared"
)

// User represents an account as seen by the authenticator.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	IsAdmin      bool
	Person       shared.PersonSnapshot
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginMeta carries request details recorded with a login attempt.
type LoginMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is a successful login: the signed token and its decoded form.
type LoginResult struct {
	Token   string
	Session *shared.Session
	User    *User
}
