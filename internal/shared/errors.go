package shared

import (
	"errors"
	"fmt"

	"github.com/memopsy/memopsy/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = fmt.Errorf("shared: %w", httpx.ErrNotFound)
	// ErrInvalidCredentials indicates login failure. Unknown email and wrong
	// password both collapse into it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts indicates the login throttle rejected the attempt.
	ErrTooManyAttempts = fmt.Errorf("login throttled: %w", httpx.ErrTooManyRequests)
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
