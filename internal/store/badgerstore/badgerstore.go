// Package badgerstore implements store.Store on an embedded Badger KV.
// One badger transaction is the atomic unit: debit, credit and the transfer
// record commit together or not at all, and a conflicting concurrent writer
// aborts the commit with domain.ErrConflict.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"transfer-core/internal/domain"
	"transfer-core/internal/store"
)

const (
	acctPrefix  = "acct:"
	xferPrefix  = "xfer:"
	dedupPrefix = "dedup:"
)

type Store struct {
	db *badger.DB
}

var _ store.Store = (*Store)(nil)

// Open opens a Badger database at path. An empty path opens an in-memory
// database, handy for tests.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", domain.ErrStorage, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func acctKey(id uuid.UUID) []byte { return []byte(acctPrefix + id.String()) }
func xferKey(id uuid.UUID) []byte { return []byte(xferPrefix + id.String()) }
func dedupKey(key string) []byte  { return []byte(dedupPrefix + key) }

func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrStorage, key, err)
	}
	if err := txn.Set(key, b); err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStorage, key, err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, acc *domain.Account) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, acctKey(acc.ID), acc)
	})
	if err != nil && !errors.Is(err, domain.ErrStorage) {
		return fmt.Errorf("%w: create account: %v", domain.ErrStorage, err)
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var acc domain.Account
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, acctKey(id), &acc)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account: %v", domain.ErrStorage, err)
	}
	return &acc, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	var out []domain.Account
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   64,
			Prefix:         []byte(acctPrefix),
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var acc domain.Account
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &acc)
			})
			if err != nil {
				return err
			}
			out = append(out, acc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %v", domain.ErrStorage, err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) (bool, error) {
	found := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(acctKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		referenced, err := accountReferenced(txn, id)
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("%w: %s", domain.ErrAccountInUse, id)
		}
		found = true
		return txn.Delete(acctKey(id))
	})
	if errors.Is(err, domain.ErrAccountInUse) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("%w: delete account: %v", domain.ErrStorage, err)
	}
	return found, nil
}

// accountReferenced reports whether any transfer record touches id.
// Transfer history is the audit trail; a referenced account cannot go.
func accountReferenced(txn *badger.Txn, id uuid.UUID) (bool, error) {
	it := txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: true,
		PrefetchSize:   64,
		Prefix:         []byte(xferPrefix),
	})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		var tr domain.Transfer
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &tr)
		})
		if err != nil {
			return false, err
		}
		if tr.SenderID == id || tr.ReceiverID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	var tr domain.Transfer
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, xferKey(id), &tr)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get transfer: %v", domain.ErrStorage, err)
	}
	return &tr, nil
}

func (s *Store) ListTransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transfer, error) {
	var out []domain.Transfer
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   64,
			Prefix:         []byte(xferPrefix),
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var tr domain.Transfer
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &tr)
			})
			if err != nil {
				return err
			}
			if tr.SenderID == accountID || tr.ReceiverID == accountID {
				out = append(out, tr)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list transfers: %v", domain.ErrStorage, err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&btx{txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: badger txn conflict", domain.ErrConflict)
	}
	return err
}

// btx adapts a live badger transaction to store.Tx.
type btx struct {
	txn *badger.Txn
}

func (t *btx) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var acc domain.Account
	err := getJSON(t.txn, acctKey(id), &acc)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account: %v", domain.ErrStorage, err)
	}
	return &acc, nil
}

func (t *btx) PutAccount(ctx context.Context, acc *domain.Account) error {
	return setJSON(t.txn, acctKey(acc.ID), acc)
}

func (t *btx) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	var tr domain.Transfer
	err := getJSON(t.txn, xferKey(id), &tr)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get transfer: %v", domain.ErrStorage, err)
	}
	return &tr, nil
}

func (t *btx) PutTransfer(ctx context.Context, tr *domain.Transfer) error {
	return setJSON(t.txn, xferKey(tr.ID), tr)
}

func (t *btx) GetDedup(ctx context.Context, key string) (*store.DedupRecord, error) {
	var rec store.DedupRecord
	err := getJSON(t.txn, dedupKey(key), &rec)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get dedup: %v", domain.ErrStorage, err)
	}
	return &rec, nil
}

func (t *btx) PutDedup(ctx context.Context, rec store.DedupRecord) error {
	return setJSON(t.txn, dedupKey(rec.Key), rec)
}
