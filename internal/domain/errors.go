package domain

import "errors"

// Domain errors. Handlers translate these to HTTP status codes; nothing in
// the core swallows or re-labels them.
var (
	// ErrAccountNotFound indicates a transfer party that does not resolve.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransferNotFound indicates a transfer record lookup miss.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrSameAccount indicates sender and receiver are the same account.
	ErrSameAccount = errors.New("sender and receiver cannot be the same account")

	// ErrInvalidAmount indicates a non-positive transfer amount.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInsufficientBalance indicates the sender cannot cover the amount.
	// Message casing is part of the external contract.
	ErrInsufficientBalance = errors.New("Insufficient balance")

	// ErrUnverifiedAccount indicates the verification policy rejected a party.
	ErrUnverifiedAccount = errors.New("account is not verified")

	// ErrAccountInUse indicates a deletion target still referenced by
	// transfer records. Transfer history is never deleted.
	ErrAccountInUse = errors.New("account has transfer history")

	// ErrConflict indicates a concurrent modification aborted the commit
	// after retries were exhausted.
	ErrConflict = errors.New("concurrent modification")

	// ErrTimeout indicates account locks could not be acquired in time.
	ErrTimeout = errors.New("transfer timed out")

	// ErrDedupReuse indicates a dedup key was reused with a different payload.
	ErrDedupReuse = errors.New("dedup key reused with different payload")

	// ErrStorage indicates the underlying store failed. Wrapped, never
	// swallowed: callers must be able to tell a store failure from a
	// legitimate not-found outcome.
	ErrStorage = errors.New("storage failure")
)
