package engine

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
)

// lockTable hands out one exclusive lock per account id. Entries are
// refcounted so the table does not grow with the account population, only
// with the accounts currently under transfer.
type lockTable struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[uuid.UUID]*lockEntry)}
}

func (lt *lockTable) entry(id uuid.UUID) *lockEntry {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	e, ok := lt.entries[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		lt.entries[id] = e
	}
	e.refs++
	return e
}

func (lt *lockTable) unref(id uuid.UUID) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	e := lt.entries[id]
	e.refs--
	if e.refs == 0 {
		delete(lt.entries, id)
	}
}

// acquire takes exclusive locks on ids in the order given. The caller must
// pass ids in global lock order; acquire itself does not sort. On success the
// returned release frees everything in reverse order. On ctx expiry any locks
// taken so far are released and ctx.Err() is returned.
func (lt *lockTable) acquire(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	held := make([]uuid.UUID, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			id := held[i]
			lt.mu.Lock()
			e := lt.entries[id]
			lt.mu.Unlock()
			<-e.sem
			lt.unref(id)
		}
	}

	for _, id := range ids {
		e := lt.entry(id)
		select {
		case e.sem <- struct{}{}:
			held = append(held, id)
		case <-ctx.Done():
			lt.unref(id)
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

// lockOrder returns a and b sorted byte-wise ascending. Every caller locking
// the same pair locks it in the same sequence, so mirror-image transfers
// (A→B racing B→A) cannot deadlock.
func lockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}
