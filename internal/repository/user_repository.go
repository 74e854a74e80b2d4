package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-assist/internal/domain"
)

// UserRepository defines read access to accounts. Account management
// itself lives elsewhere; Create exists for seeding.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
	// FindByRoleAndSkill returns the oldest user with the role having at
	// least one skill matching the case-insensitive regular expression.
	FindByRoleAndSkill(ctx context.Context, role domain.Role, pattern string) (*domain.User, error)
	FindFirstByRole(ctx context.Context, role domain.Role) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id::text, email, role, skills, created_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	skills := user.Skills
	if skills == nil {
		skills = []string{}
	}
	const query = `
        INSERT INTO users (email, role, skills)
        VALUES ($1, $2, $3)
        RETURNING id::text, created_at`

	return r.pool.QueryRow(ctx, query,
		user.Email,
		string(user.Role),
		skills,
	).Scan(&user.ID, &user.CreatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	result := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id::text = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result[user.ID] = *user
	}
	return result, rows.Err()
}

func (r *userRepository) FindByRoleAndSkill(ctx context.Context, role domain.Role, pattern string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
        WHERE role=$1 AND EXISTS (SELECT 1 FROM unnest(skills) AS s WHERE s ~* $2)
        ORDER BY created_at ASC LIMIT 1`
	return scanUser(r.pool.QueryRow(ctx, query, string(role), pattern))
}

func (r *userRepository) FindFirstByRole(ctx context.Context, role domain.Role) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role=$1 ORDER BY created_at ASC LIMIT 1`
	return scanUser(r.pool.QueryRow(ctx, query, string(role)))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&role,
		&user.Skills,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}
