package ledger

import (
	"context"
	"slices"
	"sync"
)

// lockTable hands out one mutex per account id. Entries are reference counted
// and dropped when nobody holds or waits for them, so the table only grows
// with the number of accounts under concurrent use.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[int64]*lockEntry)}
}

// acquire locks every id in ascending order and returns the function that
// releases them. Duplicate ids are locked once. Two callers locking the same
// pair in opposite argument order still take the locks in the same order.
func (t *lockTable) acquire(ctx context.Context, ids ...int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	entries := make([]*lockEntry, len(ordered))
	t.mu.Lock()
	for i, id := range ordered {
		e, ok := t.locks[id]
		if !ok {
			e = &lockEntry{}
			t.locks[id] = e
		}
		e.refs++
		entries[i] = e
	}
	t.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		t.release(ordered, entries)
	}, nil
}

func (t *lockTable) release(ids []int64, entries []*lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, id := range ids {
		e := entries[i]
		e.refs--
		if e.refs == 0 {
			delete(t.locks, id)
		}
	}
}

// size returns the number of live entries.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
