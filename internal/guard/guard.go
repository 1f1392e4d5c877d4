// Package guard holds the pure admissibility check for transfers. It reads
// account state and decides; mutation is the engine's job.
package guard

import (
	"fmt"

	"github.com/shopspring/decimal"

	"transfer-core/internal/domain"
)

// Validate reports whether a transfer of amount from sender to receiver is
// admissible. It has no side effects. requireVerified gates both parties on
// the account verification flag.
func Validate(sender, receiver *domain.Account, amount decimal.Decimal, requireVerified bool) error {
	if sender == nil || receiver == nil {
		return domain.ErrAccountNotFound
	}
	if sender.ID == receiver.ID {
		return fmt.Errorf("%w: %s", domain.ErrSameAccount, sender.ID)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, amount)
	}
	if requireVerified {
		if !sender.Verified {
			return fmt.Errorf("%w: sender %s", domain.ErrUnverifiedAccount, sender.ID)
		}
		if !receiver.Verified {
			return fmt.Errorf("%w: receiver %s", domain.ErrUnverifiedAccount, receiver.ID)
		}
	}
	if sender.Balance.LessThan(amount) {
		return fmt.Errorf("%w: account %s holds %s, requested %s",
			domain.ErrInsufficientBalance, sender.ID, sender.Balance, amount)
	}
	return nil
}
