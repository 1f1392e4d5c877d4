// Package engine moves funds between accounts. A transfer debits the sender,
// credits the receiver and appends a transfer record in one atomic commit;
// per-account locks taken in global order keep concurrent transfers over
// overlapping accounts from interleaving their read-modify-write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"transfer-core/internal/domain"
	"transfer-core/internal/guard"
	"transfer-core/internal/store"
)

const (
	defaultLockTimeout = 5 * time.Second
	defaultMaxAttempts = 3
)

type Engine struct {
	st    store.Store
	locks *lockTable
	log   *zap.Logger

	requireVerified bool
	lockTimeout     time.Duration
	maxAttempts     int
	now             func() time.Time
}

type Option func(*Engine)

// WithRequireVerified gates transfers on the account verification flag for
// both parties. Off by default.
func WithRequireVerified(on bool) Option {
	return func(e *Engine) { e.requireVerified = on }
}

// WithLockTimeout bounds how long a transfer waits for account locks before
// failing with domain.ErrTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) { e.lockTimeout = d }
}

// WithMaxAttempts bounds internal retries on domain.ErrConflict.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithNow overrides the clock used for transfer timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		st:          st,
		locks:       newLockTable(),
		log:         zap.NewNop(),
		lockTimeout: defaultLockTimeout,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = 1
	}
	return e
}

// Transfer executes req end-to-end. On success both balances are updated and
// the returned transfer record is durably persisted, all in one commit; on
// any failure no state changes.
func (e *Engine) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transfer, error) {
	if req.SenderID == uuid.Nil || req.ReceiverID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing account id", domain.ErrAccountNotFound)
	}
	if req.SenderID == req.ReceiverID {
		return nil, fmt.Errorf("%w: %s", domain.ErrSameAccount, req.SenderID)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, req.Amount)
	}

	var reqHash string
	if req.DedupKey != "" {
		var err error
		reqHash, err = hashRequest(req)
		if err != nil {
			return nil, fmt.Errorf("%w: hash request: %v", domain.ErrStorage, err)
		}
	}

	first, second := lockOrder(req.SenderID, req.ReceiverID)
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	release, err := e.locks.acquire(lockCtx, first, second)
	if err != nil {
		// Caller cancellation is not a lock timeout; keep the two apart.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: waiting for accounts %s, %s", domain.ErrTimeout, first, second)
	}
	defer release()

	var out *domain.Transfer
	for attempt := 1; ; attempt++ {
		err = e.st.Atomically(ctx, func(tx store.Tx) error {
			var applyErr error
			out, applyErr = e.apply(ctx, tx, req, reqHash)
			return applyErr
		})
		if err == nil || !errors.Is(err, domain.ErrConflict) || attempt >= e.maxAttempts {
			break
		}
		e.log.Debug("transfer commit conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Stringer("sender", req.SenderID),
			zap.Stringer("receiver", req.ReceiverID))
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("transfer committed",
		zap.Stringer("transfer", out.ID),
		zap.Stringer("sender", out.SenderID),
		zap.Stringer("receiver", out.ReceiverID),
		zap.String("amount", out.Amount.String()))
	return out, nil
}

// apply runs inside one atomic commit. Accounts are loaded in lock order so
// backends that take row locks on read follow the same global order as the
// in-process lock table.
func (e *Engine) apply(ctx context.Context, tx store.Tx, req domain.TransferRequest, reqHash string) (*domain.Transfer, error) {
	if req.DedupKey != "" {
		rec, err := tx.GetDedup(ctx, req.DedupKey)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			if rec.RequestHash != reqHash {
				return nil, fmt.Errorf("%w: key %q", domain.ErrDedupReuse, req.DedupKey)
			}
			return tx.GetTransfer(ctx, rec.TransferID)
		}
	}

	first, second := lockOrder(req.SenderID, req.ReceiverID)
	a, err := tx.GetAccount(ctx, first)
	if err != nil {
		return nil, err
	}
	b, err := tx.GetAccount(ctx, second)
	if err != nil {
		return nil, err
	}
	sender, receiver := a, b
	if sender.ID != req.SenderID {
		sender, receiver = b, a
	}

	if err := guard.Validate(sender, receiver, req.Amount, e.requireVerified); err != nil {
		return nil, err
	}

	sender.Balance = sender.Balance.Sub(req.Amount)
	receiver.Balance = receiver.Balance.Add(req.Amount)

	tr := &domain.Transfer{
		ID:         uuid.New(),
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Amount:     req.Amount,
		Reason:     req.Reason,
		CreatedAt:  e.now().UTC(),
	}

	if err := tx.PutAccount(ctx, sender); err != nil {
		return nil, err
	}
	if err := tx.PutAccount(ctx, receiver); err != nil {
		return nil, err
	}
	if err := tx.PutTransfer(ctx, tr); err != nil {
		return nil, err
	}
	if req.DedupKey != "" {
		err := tx.PutDedup(ctx, store.DedupRecord{
			Key:         req.DedupKey,
			RequestHash: reqHash,
			TransferID:  tr.ID,
		})
		if err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// Preflight runs the balance guard against current account state without
// moving funds. Usable as a standalone admissibility check.
func (e *Engine) Preflight(ctx context.Context, senderID, receiverID uuid.UUID, amount decimal.Decimal) error {
	if senderID == receiverID {
		return fmt.Errorf("%w: %s", domain.ErrSameAccount, senderID)
	}
	sender, err := e.st.GetAccount(ctx, senderID)
	if err != nil {
		return err
	}
	receiver, err := e.st.GetAccount(ctx, receiverID)
	if err != nil {
		return err
	}
	return guard.Validate(sender, receiver, amount, e.requireVerified)
}
