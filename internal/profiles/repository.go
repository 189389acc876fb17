package profiles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memopsy/memopsy/internal/platform/db"
	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectProfile = `
	SELECT p.id, p.name, p.description, p.created_at, p.updated_at,
	       (SELECT COUNT(*) FROM user_profiles up WHERE up.profile_id = p.id)
	FROM profiles p`

// ListProfiles returns all profiles ordered by name.
func (r *Repository) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx, selectProfile+` ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("profiles: list: %w", err)
	}
	defer rows.Close()
	var list []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.UserCount); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachPermissions(ctx, r.pool, list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetProfile returns one profile with its permissions.
func (r *Repository) GetProfile(ctx context.Context, id int64) (Profile, error) {
	return getProfile(ctx, r.pool, id)
}

func getProfile(ctx context.Context, q querier, id int64) (Profile, error) {
	var p Profile
	err := q.QueryRow(ctx, selectProfile+` WHERE p.id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.UserCount)
	if err != nil {
		if db.IsNoRows(err) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("profiles: get %d: %w", id, err)
	}
	list := []Profile{p}
	if err := attachPermissions(ctx, q, list); err != nil {
		return Profile{}, err
	}
	return list[0], nil
}

func attachPermissions(ctx context.Context, q querier, list []Profile) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	pos := make(map[int64]int, len(list))
	for i := range list {
		ids[i] = list[i].ID
		pos[list[i].ID] = i
		list[i].Permissions = []rbac.CatalogPermission{}
	}
	rows, err := q.Query(ctx, `
		SELECT pp.profile_id, pe.id, m.id, m.name, a.id, a.name
		FROM profile_permissions pp
		JOIN permissions pe ON pe.id = pp.permission_id
		JOIN modules m ON m.id = pe.module_id
		JOIN actions a ON a.id = pe.action_id
		WHERE pp.profile_id = ANY($1)
		ORDER BY pp.profile_id, m.id, a.id`, ids)
	if err != nil {
		return fmt.Errorf("profiles: load permissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var profileID int64
		var cp rbac.CatalogPermission
		if err := rows.Scan(&profileID, &cp.ID, &cp.ModuleID, &cp.ModuleName, &cp.ActionID, &cp.ActionName); err != nil {
			return err
		}
		i := pos[profileID]
		list[i].Permissions = append(list[i].Permissions, cp)
	}
	return rows.Err()
}

// CreateProfile inserts a profile with its permission set in one transaction.
func (r *Repository) CreateProfile(ctx context.Context, in Input) (Profile, error) {
	var created Profile
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `INSERT INTO profiles (name, description) VALUES ($1, $2) RETURNING id`,
			in.Name, in.Description).Scan(&id); err != nil {
			return mapWriteErr(err)
		}
		if err := replacePermissions(ctx, tx, id, in.PermissionIDs); err != nil {
			return err
		}
		p, err := getProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	return created, err
}

// UpdateProfile updates a profile and replaces its permission set in one
// transaction.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, in Input) (Profile, error) {
	var updated Profile
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE profiles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1`,
			id, in.Name, in.Description)
		if err != nil {
			return mapWriteErr(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if err := replacePermissions(ctx, tx, id, in.PermissionIDs); err != nil {
			return err
		}
		p, err := getProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	return updated, err
}

// DeleteProfile removes a profile. Assignments cascade.
func (r *Repository) DeleteProfile(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("profiles: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func replacePermissions(ctx context.Context, tx pgx.Tx, profileID int64, permissionIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM profile_permissions WHERE profile_id = $1`, profileID); err != nil {
		return fmt.Errorf("profiles: clear permissions: %w", err)
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO profile_permissions (profile_id, permission_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`, profileID, permissionIDs); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func mapWriteErr(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return ErrDuplicate
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: permiso inexistente", httpx.ErrValidation)
	default:
		return fmt.Errorf("profiles: write: %w", err)
	}
}
