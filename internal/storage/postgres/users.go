package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/server/internal/domain/users"
)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *UserRepository) Create(ctx context.Context, user users.User) (err error) {
	defer func(start time.Time) { observe("create_user", start, err) }(time.Now())

	_, err = pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO users (id, email, password_hash, created_at)
VALUES ($1, $2, $3, $4)
`, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == pgUniqueViolation {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getOne(ctx, "get_user_by_email", `
SELECT id, email, password_hash, created_at
  FROM users
 WHERE lower(email) = lower($1)
`, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getOne(ctx, "get_user_by_id", `
SELECT id, email, password_hash, created_at
  FROM users
 WHERE id = $1
`, id)
}

func (r *UserRepository) getOne(ctx context.Context, operation, sql string, arg string) (_ *users.User, err error) {
	defer func(start time.Time) {
		if errors.Is(err, users.ErrNotFound) {
			observe(operation, start, nil)
			return
		}
		observe(operation, start, err)
	}(time.Now())

	var user users.User
	err = pick(r.pool, r.tx).QueryRow(ctx, sql, arg).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return &user, nil
}
