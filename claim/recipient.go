package claim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ticketing/entity"
)

type UsersRepository interface {
	GetUserByEmail(ctx context.Context, email string) (entity.User, error)
	// CreateUserIfNotExists returns the stored user with the email of user, creating it when missing.
	CreateUserIfNotExists(ctx context.Context, user entity.User) (entity.User, error)
}

// RecipientResolver finds the user a ticket is transferred to, creating a bare
// account for unknown e-mails.
type RecipientResolver struct {
	users UsersRepository
}

func NewRecipientResolver(users UsersRepository) *RecipientResolver {
	if users == nil {
		panic("missing users")
	}

	return &RecipientResolver{users: users}
}

func (r *RecipientResolver) Resolve(ctx context.Context, info TransferInfo) (entity.User, error) {
	email := NormalizeEmail(info.Email)

	user, err := r.users.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return entity.User{}, fmt.Errorf("could not get user by email: %w", err)
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = email
	}

	user, err = r.users.CreateUserIfNotExists(ctx, entity.User{
		ID:    uuid.NewString(),
		Email: email,
		Name:  name,
	})
	if err != nil {
		return entity.User{}, fmt.Errorf("could not create user: %w", err)
	}

	return user, nil
}
