package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/types"
)

type UserLookup interface {
	GetUserById(ctx context.Context, id string) (database.User, error)
}

// Verifier turns a bearer credential into the user it identifies.
type Verifier struct {
	tokens *TokenManager
	users  UserLookup
}

func NewVerifier(tokens *TokenManager, users UserLookup) *Verifier {
	return &Verifier{tokens: tokens, users: users}
}

func (v *Verifier) Verify(ctx context.Context, token string) (types.User, error) {
	userId, err := v.tokens.UserId(token)
	if err != nil {
		return types.User{}, err
	}

	u, err := v.users.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, fmt.Errorf("get user: %w", err)
	}

	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		AvatarUrl:    u.AvatarUrl,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}, nil
}
