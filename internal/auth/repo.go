package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memopsy/memopsy/internal/platform/db"
	"github.com/memopsy/memopsy/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user and its person by normalized email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.email, u.password_hash, u.is_active, u.is_admin,
		       p.name, p.surname, u.created_at, u.updated_at
		FROM users u
		JOIN people p ON p.id = u.person_id
		WHERE u.email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsAdmin,
			&u.Person.Name, &u.Person.Surname, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user by email: %w", err)
	}
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
