package rbac

import (
	"context"
	"fmt"
	"log/slog"
)

// PermissionRow is a permission as read from the catalog tables, still keyed
// by names. Rows may repeat when several profiles share a permission.
type PermissionRow struct {
	ProfileID int64
	Module    string
	Action    string
}

// Store is the persistence surface the resolver needs.
type Store interface {
	ProfilesForUser(ctx context.Context, userID int64) ([]ProfileRef, error)
	PermissionsForProfiles(ctx context.Context, profileIDs []int64) ([]PermissionRow, error)
}

// Snapshot is the authorization state embedded into a session at login.
type Snapshot struct {
	Profiles    []ProfileRef
	Permissions Set
}

// Resolver computes the effective permissions of a user.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the union of permissions across every profile assigned to
// the user through the user_profiles join table, de-duplicated by
// (Module, Action). Rows naming modules or actions outside the known catalog
// are skipped.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Snapshot, error) {
	profiles, err := r.store.ProfilesForUser(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rbac: profiles for user %d: %w", userID, err)
	}
	snap := Snapshot{Profiles: profiles}
	if len(profiles) == 0 {
		return snap, nil
	}
	ids := make([]int64, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	rows, err := r.store.PermissionsForProfiles(ctx, ids)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rbac: permissions for user %d: %w", userID, err)
	}
	for _, row := range rows {
		perm, err := ParsePermission(row.Module, row.Action)
		if err != nil {
			r.logger.Warn("rbac skip permission",
				slog.Int64("user_id", userID),
				slog.Int64("profile_id", row.ProfileID),
				slog.Any("error", err))
			continue
		}
		snap.Permissions.Add(perm)
	}
	return snap, nil
}
