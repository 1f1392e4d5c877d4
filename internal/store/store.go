// Package store defines the persistence contract the transfer engine runs
// against. Two backends implement it: badgerstore (embedded KV) and pgstore
// (Postgres).
package store

import (
	"context"

	"github.com/google/uuid"

	"transfer-core/internal/domain"
)

// DedupRecord binds a client-supplied dedup key to the transfer it produced.
// RequestHash is the canonical-JSON hash of the originating request; a lookup
// whose hash differs means the key was reused for a different payload.
type DedupRecord struct {
	Key         string    `json:"key"`
	RequestHash string    `json:"request_hash"`
	TransferID  uuid.UUID `json:"transfer_id"`
}

// Tx is the view inside one atomic commit. Everything written through a Tx
// becomes visible all at once or not at all. GetAccount inside a Tx takes an
// exclusive claim on the row for backends that support it.
type Tx interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	PutAccount(ctx context.Context, acc *domain.Account) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	PutTransfer(ctx context.Context, tr *domain.Transfer) error
	GetDedup(ctx context.Context, key string) (*DedupRecord, error)
	PutDedup(ctx context.Context, rec DedupRecord) error
}

// Store is the durable backing for accounts and transfer records.
//
// DeleteAccount returns (false, nil) when the account does not exist and a
// non-nil error only for real store failures; the two outcomes are never
// folded together.
type Store interface {
	CreateAccount(ctx context.Context, acc *domain.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) (bool, error)

	GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	ListTransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transfer, error)

	// Atomically runs fn inside one all-or-nothing commit. fn returning an
	// error aborts the whole unit. A backend may fail the commit with
	// domain.ErrConflict when another writer touched the same keys; the
	// engine retries those.
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
