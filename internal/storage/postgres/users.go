package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/hongminglow/aria-characters/internal/models"
	"github.com/hongminglow/aria-characters/internal/storage"
)

const userColumns = `id::text, email, display_name, password_hash, created_at, updated_at`

// CreateUser inserts a new user row. A duplicate email yields storage.ErrAlreadyExists.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return models.User{}, oops.Code("USER_EXISTS").
				With("email", user.Email).
				Wrap(storage.ErrAlreadyExists)
		}
		return models.User{}, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return created, nil
}

// FindByEmail fetches a user by normalised email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// FindByID fetches a user by id.
func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(storage.ErrNotFound)
	}

	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id).
			Wrap(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}
