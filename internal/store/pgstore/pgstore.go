// Package pgstore implements store.Store on Postgres. One ReadCommitted
// transaction is the atomic unit; account rows are claimed with
// SELECT ... FOR UPDATE so multi-process deployments keep the same
// no-interleaving guarantee as the in-process lock table.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"transfer-core/internal/domain"
	"transfer-core/internal/store"
)

type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store { return &Store{db: db} }

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// storeErr wraps backend failures, keeping deadlocks and serialization
// aborts distinguishable as domain.ErrConflict.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %s: %s", domain.ErrConflict, op, pgErr.Code)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	var balance string
	if err := row.Scan(&acc.ID, &balance, &acc.Verified, &acc.CreatedAt); err != nil {
		return nil, err
	}
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, err
	}
	acc.Balance = bal
	return &acc, nil
}

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var tr domain.Transfer
	var amount string
	if err := row.Scan(&tr.ID, &tr.SenderID, &tr.ReceiverID, &amount, &tr.Reason, &tr.CreatedAt); err != nil {
		return nil, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	tr.Amount = amt
	return &tr, nil
}

func (s *Store) CreateAccount(ctx context.Context, acc *domain.Account) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts(id, balance, verified, created_at) VALUES($1,$2::numeric,$3,$4)`,
		acc.ID, acc.Balance.String(), acc.Verified, acc.CreatedAt,
	)
	if err != nil {
		return storeErr("insert account", err)
	}

	err = insertEvent(ctx, tx, "ACCOUNT_CREATED", acc.ID.String(), accountCreatedPayload{
		AccountID: acc.ID.String(),
		Balance:   acc.Balance.String(),
		Verified:  acc.Verified,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, balance::text, verified, created_at FROM accounts WHERE id=$1`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get account", err)
	}
	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, balance::text, verified, created_at FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, storeErr("list accounts", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, storeErr("scan account", err)
		}
		out = append(out, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list accounts", err)
	}
	return out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23503 foreign_key_violation: transfer records pin the account.
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, fmt.Errorf("%w: %s", domain.ErrAccountInUse, id)
		}
		return false, storeErr("delete account", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, sender_id, receiver_id, amount::text, reason, created_at FROM transfers WHERE id=$1`, id)
	tr, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get transfer", err)
	}
	return tr, nil
}

func (s *Store) ListTransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transfer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, sender_id, receiver_id, amount::text, reason, created_at
		   FROM transfers
		  WHERE sender_id=$1 OR receiver_id=$1
		  ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, storeErr("list transfers", err)
	}
	defer rows.Close()

	var out []domain.Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, storeErr("scan transfer", err)
		}
		out = append(out, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list transfers", err)
	}
	return out, nil
}

func (s *Store) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ptx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// ptx adapts a live pgx transaction to store.Tx.
type ptx struct {
	tx pgx.Tx
}

func (t *ptx) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, balance::text, verified, created_at FROM accounts WHERE id=$1 FOR UPDATE`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get account", err)
	}
	return acc, nil
}

func (t *ptx) PutAccount(ctx context.Context, acc *domain.Account) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance=$2::numeric, verified=$3 WHERE id=$1`,
		acc.ID, acc.Balance.String(), acc.Verified)
	if err != nil {
		return storeErr("put account", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, acc.ID)
	}
	return nil
}

func (t *ptx) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, sender_id, receiver_id, amount::text, reason, created_at FROM transfers WHERE id=$1`, id)
	tr, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get transfer", err)
	}
	return tr, nil
}

func (t *ptx) PutTransfer(ctx context.Context, tr *domain.Transfer) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transfers(id, sender_id, receiver_id, amount, reason, created_at)
		 VALUES($1,$2,$3,$4::numeric,$5,$6)`,
		tr.ID, tr.SenderID, tr.ReceiverID, tr.Amount.String(), tr.Reason, tr.CreatedAt)
	if err != nil {
		return storeErr("put transfer", err)
	}

	return insertEvent(ctx, t.tx, "TRANSFER_POSTED", tr.ID.String(), transferPostedPayload{
		TransferID: tr.ID.String(),
		SenderID:   tr.SenderID.String(),
		ReceiverID: tr.ReceiverID.String(),
		Amount:     tr.Amount.String(),
		Reason:     tr.Reason,
	})
}

func (t *ptx) GetDedup(ctx context.Context, key string) (*store.DedupRecord, error) {
	// Serialize same-key posts across processes. A second transaction blocks
	// here until the first commits, then reads its binding and replays
	// instead of racing it to the insert.
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return nil, storeErr("dedup key lock", err)
	}

	var rec store.DedupRecord
	err := t.tx.QueryRow(ctx,
		`SELECT key, request_hash, transfer_id FROM dedup WHERE key=$1`, key,
	).Scan(&rec.Key, &rec.RequestHash, &rec.TransferID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get dedup", err)
	}
	return &rec, nil
}

func (t *ptx) PutDedup(ctx context.Context, rec store.DedupRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO dedup(key, request_hash, transfer_id) VALUES($1,$2,$3)`,
		rec.Key, rec.RequestHash, rec.TransferID)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 unique_violation: another process bound this key first.
		// Surface as a conflict so the retry re-reads the binding.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: dedup key %q already bound", domain.ErrConflict, rec.Key)
		}
		return storeErr("put dedup", err)
	}
	return nil
}
