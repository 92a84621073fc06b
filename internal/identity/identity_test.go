package identity

import (
	"context"
	"testing"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

func TestDisplayNameResolvesUser(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	user, err := mem.EnsureUserByNickname(ctx, "avery")
	if err != nil {
		t.Fatalf("EnsureUserByNickname: %v", err)
	}

	r := NewResolver(mem)
	name, err := r.DisplayName(ctx, &user.ID)
	if err != nil {
		t.Fatalf("DisplayName: %v", err)
	}
	if name != "avery" {
		t.Fatalf("expected avery, got %q", name)
	}
}

func TestDisplayNameFallsBackToPlaceholder(t *testing.T) {
	r := NewResolver(store.NewMemory())
	ctx := context.Background()

	name, err := r.DisplayName(ctx, nil)
	if err != nil {
		t.Fatalf("DisplayName nil: %v", err)
	}
	if name != DeletedUserName {
		t.Fatalf("expected placeholder for nil author, got %q", name)
	}

	dangling := int64(404)
	name, err = r.DisplayName(ctx, &dangling)
	if err != nil {
		t.Fatalf("DisplayName dangling: %v", err)
	}
	if name != DeletedUserName {
		t.Fatalf("expected placeholder for dangling author, got %q", name)
	}
}

func TestLoginReusesExistingUser(t *testing.T) {
	r := NewResolver(store.NewMemory())
	ctx := context.Background()

	first, err := r.Login(ctx, "avery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := r.Login(ctx, "avery")
	if err != nil {
		t.Fatalf("Login again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same user, got %d and %d", first.ID, second.ID)
	}

	if _, err := r.Login(ctx, ""); err == nil {
		t.Fatalf("expected error for empty nickname")
	}
}
