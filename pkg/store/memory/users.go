package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ebank-ledger/pkg/ledger"
)

// Directory is an in-memory ledger.UserDirectory.
type Directory struct {
	mu     sync.RWMutex
	users  map[string]ledger.User
	nextID int64
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]ledger.User)}
}

// Add registers a user and returns it with its assigned id.
func (d *Directory) Add(ctx context.Context, username, email string) (ledger.User, error) {
	if err := ctx.Err(); err != nil {
		return ledger.User{}, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return ledger.User{}, ledger.ErrInvalidUsername
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[username]; ok {
		return ledger.User{}, fmt.Errorf("%w: %s", ledger.ErrUserExists, username)
	}

	d.nextID++
	user := ledger.User{ID: d.nextID, Username: username, Email: strings.TrimSpace(email)}
	d.users[username] = user
	return user, nil
}

// FindByUsername implements ledger.UserDirectory.
func (d *Directory) FindByUsername(ctx context.Context, username string) (ledger.User, error) {
	if err := ctx.Err(); err != nil {
		return ledger.User{}, err
	}

	d.mu.RLock()
	user, ok := d.users[username]
	d.mu.RUnlock()

	if !ok {
		return ledger.User{}, fmt.Errorf("%w: %s", ledger.ErrOwnerNotFound, username)
	}
	return user, nil
}

// Len returns the number of registered users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
