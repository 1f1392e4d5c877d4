package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds a monetary balance. Balance is mutated only by the transfer
// engine or an explicit balance-set; it never goes negative.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Verified  bool            `json:"verified"`
	CreatedAt time.Time       `json:"created_at"`
}

// Transfer is the immutable record of one completed fund movement.
// Records are append-only: never updated, never deleted.
type Transfer struct {
	ID         uuid.UUID       `json:"id"`
	SenderID   uuid.UUID       `json:"sender_id"`
	ReceiverID uuid.UUID       `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TransferRequest is the engine input. DedupKey is optional: when set, a
// retried request with the same key and payload returns the transfer created
// by the first attempt instead of moving funds twice.
type TransferRequest struct {
	SenderID   uuid.UUID       `json:"sender_id"`
	ReceiverID uuid.UUID       `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	DedupKey   string          `json:"dedup_key,omitempty"`
}

type CreateAccountRequest struct {
	Balance  decimal.Decimal `json:"balance"`
	Verified bool            `json:"verified"`
}

type BalanceResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Verified  bool            `json:"verified"`
}
