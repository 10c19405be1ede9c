package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"ticketing/entity"
)

type UsersRepository struct {
	db *sqlx.DB
}

func NewUsersRepository(db *sqlx.DB) *UsersRepository {
	if db == nil {
		panic("db is nil")
	}

	return &UsersRepository{db: db}
}

func (r *UsersRepository) GetUser(ctx context.Context, id string) (entity.User, error) {
	var user entity.User
	err := executorFor(ctx, r.db).GetContext(ctx, &user, `
		SELECT id, email, name, is_super_admin FROM users WHERE id = $1
	`, id)
	if err != nil {
		return entity.User{}, notFoundOr(err, "user %s not found", id)
	}

	return user, nil
}

func (r *UsersRepository) GetUserByEmail(ctx context.Context, email string) (entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user entity.User
	err := executorFor(ctx, r.db).GetContext(ctx, &user, `
		SELECT id, email, name, is_super_admin FROM users WHERE email = $1
	`, email)
	if err != nil {
		return entity.User{}, notFoundOr(err, "user with email %s not found", email)
	}

	return user, nil
}

// CreateUserIfNotExists inserts the user unless one with the same email exists,
// and returns whichever row is stored.
func (r *UsersRepository) CreateUserIfNotExists(ctx context.Context, user entity.User) (entity.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	_, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO users (id, email, name, is_super_admin)
		VALUES (:id, :email, :name, :is_super_admin)
		ON CONFLICT (email) DO NOTHING
	`, user)
	if err != nil {
		return entity.User{}, fmt.Errorf("could not insert user: %w", err)
	}

	return r.GetUserByEmail(ctx, user.Email)
}

func (r *UsersRepository) CreateUser(ctx context.Context, user entity.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	_, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO users (id, email, name, is_super_admin)
		VALUES (:id, :email, :name, :is_super_admin)
	`, user)
	if isUniqueViolation(err) {
		return entity.Conflict("user with email %s already exists", user.Email)
	}
	if err != nil {
		return fmt.Errorf("could not insert user: %w", err)
	}

	return nil
}
