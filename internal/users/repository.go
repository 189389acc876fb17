package users

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

const selectUser = `
	SELECT u.id, u.email, u.is_active, u.is_admin, u.created_at, u.updated_at,
	       p.id, p.name, p.surname, p.national_id, p.birth_date
	FROM users u
	JOIN people p ON p.id = u.person_id`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.IsActive, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt,
		&u.Person.ID, &u.Person.Name, &u.Person.Surname, &u.Person.NationalID, &u.Person.BirthDate)
	return u, err
}

// ListUsers returns a page of users and the total matching count.
func (r *Repository) ListUsers(ctx context.Context, f ListFilters) ([]User, int, error) {
	pattern := "%" + f.Search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM users u JOIN people p ON p.id = u.person_id
		WHERE $1 = '%%' OR u.email ILIKE $1 OR p.name ILIKE $1 OR p.surname ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}
	rows, err := r.pool.Query(ctx, selectUser+`
		WHERE $1 = '%%' OR u.email ILIKE $1 OR p.name ILIKE $1 OR p.surname ILIKE $1
		ORDER BY u.id
		LIMIT $2 OFFSET $3`, pattern, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var list []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachProfiles(ctx, r.pool, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// GetUser returns a single user with its profiles.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	return r.getUser(ctx, r.pool, id)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) getUser(ctx context.Context, q querier, id int64) (User, error) {
	u, err := scanUser(q.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("users: get %d: %w", id, err)
	}
	list := []User{u}
	if err := r.attachProfiles(ctx, q, list); err != nil {
		return User{}, err
	}
	return list[0], nil
}

func (r *Repository) attachProfiles(ctx context.Context, q querier, list []User) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	pos := make(map[int64]int, len(list))
	for i := range list {
		ids[i] = list[i].ID
		pos[list[i].ID] = i
		list[i].Profiles = []rbac.ProfileRef{}
	}
	rows, err := q.Query(ctx, `
		SELECT up.user_id, p.id, p.name
		FROM user_profiles up
		JOIN profiles p ON p.id = up.profile_id
		WHERE up.user_id = ANY($1)
		ORDER BY up.user_id, p.id`, ids)
	if err != nil {
		return fmt.Errorf("users: load profiles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID int64
		var ref rbac.ProfileRef
		if err := rows.Scan(&userID, &ref.ID, &ref.Name); err != nil {
			return err
		}
		i := pos[userID]
		list[i].Profiles = append(list[i].Profiles, ref)
	}
	return rows.Err()
}

// CreateUser inserts the person, the account and its profile assignments in
// one transaction.
func (r *Repository) CreateUser(ctx context.Context, in CreateInput, passwordHash string) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var personID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO people (name, surname, national_id, birth_date)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			in.Person.Name, in.Person.Surname, in.Person.NationalID, in.Person.BirthDate).Scan(&personID); err != nil {
			return mapWriteErr(err)
		}
		var userID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, is_active, is_admin, person_id)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			in.Email, passwordHash, in.Active, in.Admin, personID).Scan(&userID); err != nil {
			return mapWriteErr(err)
		}
		if err := replaceProfiles(ctx, tx, userID, in.ProfileIDs); err != nil {
			return err
		}
		u, err := r.getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		created = u
		return nil
	})
	return created, err
}

// UpdateUser applies a partial update in one transaction.
func (r *Repository) UpdateUser(ctx context.Context, id int64, in UpdateInput, passwordHash *string) (User, error) {
	var updated User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET
				is_active = COALESCE($2, is_active),
				is_admin = COALESCE($3, is_admin),
				password_hash = COALESCE($4, password_hash),
				updated_at = NOW()
			WHERE id = $1`, id, in.Active, in.Admin, passwordHash)
		if err != nil {
			return mapWriteErr(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if in.ProfileIDs != nil {
			if err := replaceProfiles(ctx, tx, id, *in.ProfileIDs); err != nil {
				return err
			}
		}
		u, err := r.getUser(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = u
		return nil
	})
	return updated, err
}

// DeleteUser removes the account and its person.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var personID int64
		if err := tx.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING person_id`, id).Scan(&personID); err != nil {
			if db.IsNoRows(err) {
				return ErrNotFound
			}
			return fmt.Errorf("users: delete %d: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM people WHERE id = $1`, personID); err != nil {
			return fmt.Errorf("users: delete person %d: %w", personID, err)
		}
		return nil
	})
}

func replaceProfiles(ctx context.Context, tx pgx.Tx, userID int64, profileIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("users: clear profiles: %w", err)
	}
	if len(profileIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_profiles (user_id, profile_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`, userID, profileIDs); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func mapWriteErr(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return ErrDuplicate
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: perfil inexistente", httpx.ErrValidation)
	default:
		return fmt.Errorf("users: write: %w", err)
	}
}
