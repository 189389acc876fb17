package shared

import (
	"context"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
)

// Authorize is the capability check every feature handler runs before it
// touches persistence, independently of the route gate. It returns
// httpx.ErrUnauthorized without a session and httpx.ErrForbidden when the
// session's permission set lacks p.
func Authorize(ctx context.Context, p rbac.Permission) (*Session, error) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return nil, httpx.ErrUnauthorized
	}
	if err := sess.Permissions.Require(p); err != nil {
		return sess, httpx.ErrForbidden
	}
	return sess, nil
}

// Check adapts Authorize to rbac.Authorizer.
func Check(ctx context.Context, p rbac.Permission) error {
	_, err := Authorize(ctx, p)
	return err
}
