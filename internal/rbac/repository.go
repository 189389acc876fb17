package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memopsy/memopsy/internal/platform/db"
)

// PGRepository implements Store and the permission catalog on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ProfilesForUser lists the profiles assigned through user_profiles.
func (r *PGRepository) ProfilesForUser(ctx context.Context, userID int64) ([]ProfileRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name
		FROM user_profiles up
		JOIN profiles p ON p.id = up.profile_id
		WHERE up.user_id = $1
		ORDER BY p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []ProfileRef
	for rows.Next() {
		var ref ProfileRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// PermissionsForProfiles returns the permission rows of all given profiles.
// Duplicates across profiles are kept; the resolver collapses them.
func (r *PGRepository) PermissionsForProfiles(ctx context.Context, profileIDs []int64) ([]PermissionRow, error) {
	if len(profileIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT pp.profile_id, m.name, a.name
		FROM profile_permissions pp
		JOIN permissions pe ON pe.id = pp.permission_id
		JOIN modules m ON m.id = pe.module_id
		JOIN actions a ON a.id = pe.action_id
		WHERE pp.profile_id = ANY($1)
		ORDER BY pp.profile_id, pe.id`, profileIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PermissionRow
	for rows.Next() {
		var row PermissionRow
		if err := rows.Scan(&row.ProfileID, &row.Module, &row.Action); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListModules returns the module catalog.
func (r *PGRepository) ListModules(ctx context.Context) ([]CatalogEntry, error) {
	return r.listCatalog(ctx, `SELECT id, name, description FROM modules ORDER BY id`)
}

// ListActions returns the action catalog.
func (r *PGRepository) ListActions(ctx context.Context) ([]CatalogEntry, error) {
	return r.listCatalog(ctx, `SELECT id, name, description FROM actions ORDER BY id`)
}

func (r *PGRepository) listCatalog(ctx context.Context, query string) ([]CatalogEntry, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Description); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListPermissions returns every permission with its module and action names.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]CatalogPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pe.id, m.id, m.name, a.id, a.name
		FROM permissions pe
		JOIN modules m ON m.id = pe.module_id
		JOIN actions a ON a.id = pe.action_id
		ORDER BY m.id, a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []CatalogPermission
	for rows.Next() {
		var p CatalogPermission
		if err := rows.Scan(&p.ID, &p.ModuleID, &p.ModuleName, &p.ActionID, &p.ActionName); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreatePermission inserts a (module, action) pair in one transaction. accept
// sees the module and action names before the insert and its error aborts
// it. An existing pair yields ErrDuplicate and an unknown module or action
// yields ErrNotFound.
func (r *PGRepository) CreatePermission(ctx context.Context, moduleID, actionID int64, accept func(module, action string) error) (CatalogPermission, error) {
	p := CatalogPermission{ModuleID: moduleID, ActionID: actionID}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT m.name, a.name
			FROM modules m, actions a
			WHERE m.id = $1 AND a.id = $2
			FOR SHARE`, moduleID, actionID).Scan(&p.ModuleName, &p.ActionName)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("module %d or action %d: %w", moduleID, actionID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if accept != nil {
			if err := accept(p.ModuleName, p.ActionName); err != nil {
				return err
			}
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO permissions (module_id, action_id) VALUES ($1, $2) RETURNING id`,
			moduleID, actionID).Scan(&p.ID)
		if db.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	})
	if err != nil {
		return CatalogPermission{}, err
	}
	return p, nil
}

// DeletePermission removes a permission and its profile assignments.
func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PGRepository)(nil)
