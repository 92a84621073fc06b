// Package identity resolves author ids to display names at the read
// boundary. Amendments keep a nullable author reference; a missing author
// renders as a fixed placeholder instead of failing the page.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

// DeletedUserName is shown for amendments whose author row is gone.
const DeletedUserName = "deleted user"

type Store interface {
	GetUser(ctx context.Context, id int64) (store.UserRow, error)
	EnsureUserByNickname(ctx context.Context, nickname string) (store.UserRow, error)
}

// Resolver turns author references into display names.
type Resolver struct {
	store Store
}

func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// DisplayName resolves the name for an optional author id. Both a nil id
// and a dangling id map to the deleted user placeholder.
func (r *Resolver) DisplayName(ctx context.Context, authorID *int64) (string, error) {
	if authorID == nil {
		return DeletedUserName, nil
	}
	user, err := r.store.GetUser(ctx, *authorID)
	if errors.Is(err, store.ErrNoRow) {
		return DeletedUserName, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve author %d: %w", *authorID, err)
	}
	return user.Nickname, nil
}

// Login resolves or creates the user for a nickname.
func (r *Resolver) Login(ctx context.Context, nickname string) (store.UserRow, error) {
	if nickname == "" {
		return store.UserRow{}, fmt.Errorf("nickname must not be empty")
	}
	return r.store.EnsureUserByNickname(ctx, nickname)
}
