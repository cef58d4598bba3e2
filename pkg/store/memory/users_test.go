package memory

import (
	"context"
	"errors"
	"testing"

	"ebank-ledger/pkg/ledger"
)

func TestDirectory_AddAndFind(t *testing.T) {
	dir := NewDirectory()
	ctx := context.Background()

	user, err := dir.Add(ctx, "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if user.ID != 1 {
		t.Errorf("Expected id 1, got %d", user.ID)
	}

	got, err := dir.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername failed: %v", err)
	}
	if got != user {
		t.Errorf("Expected %+v, got %+v", user, got)
	}
}

func TestDirectory_Errors(t *testing.T) {
	dir := NewDirectory()
	ctx := context.Background()

	if _, err := dir.FindByUsername(ctx, "ghost"); !errors.Is(err, ledger.ErrOwnerNotFound) {
		t.Errorf("Expected ErrOwnerNotFound, got %v", err)
	}

	if _, err := dir.Add(ctx, "  ", ""); !errors.Is(err, ledger.ErrInvalidUsername) {
		t.Errorf("Expected ErrInvalidUsername, got %v", err)
	}

	if _, err := dir.Add(ctx, "bob", ""); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := dir.Add(ctx, "bob", ""); !errors.Is(err, ledger.ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
	if dir.Len() != 1 {
		t.Errorf("Expected 1 user, got %d", dir.Len())
	}
}
