package guard_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-core/internal/domain"
	"transfer-core/internal/guard"
)

func acct(balance string, verified bool) *domain.Account {
	return &domain.Account{
		ID:       uuid.New(),
		Balance:  decimal.RequireFromString(balance),
		Verified: verified,
	}
}

func TestValidateOK(t *testing.T) {
	sender := acct("400.00", true)
	receiver := acct("0.00", true)

	err := guard.Validate(sender, receiver, decimal.RequireFromString("300.00"), false)
	require.NoError(t, err)

	// Validate never mutates.
	assert.True(t, sender.Balance.Equal(decimal.RequireFromString("400.00")))
	assert.True(t, receiver.Balance.Equal(decimal.Zero))
}

func TestValidateSameAccount(t *testing.T) {
	a := acct("400.00", true)

	err := guard.Validate(a, a, decimal.RequireFromString("10.00"), false)
	require.ErrorIs(t, err, domain.ErrSameAccount)
	assert.Contains(t, err.Error(), "same account")
}

func TestValidateSameAccountBeatsAmountCheck(t *testing.T) {
	a := acct("0.00", true)

	// Identity conflict wins regardless of amount or balance.
	err := guard.Validate(a, a, decimal.NewFromInt(-5), false)
	require.ErrorIs(t, err, domain.ErrSameAccount)
}

func TestValidateInvalidAmount(t *testing.T) {
	sender := acct("400.00", true)
	receiver := acct("0.00", true)

	for _, amt := range []string{"0", "-0.01", "-100"} {
		err := guard.Validate(sender, receiver, decimal.RequireFromString(amt), false)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, "amount %s", amt)
	}
}

func TestValidateInsufficientBalance(t *testing.T) {
	sender := acct("400.00", true)
	receiver := acct("0.00", true)

	err := guard.Validate(sender, receiver, decimal.RequireFromString("1000000.00"), false)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.True(t, strings.Contains(err.Error(), "Insufficient balance"))
}

func TestValidateExactBalanceAllowed(t *testing.T) {
	sender := acct("400.00", true)
	receiver := acct("0.00", true)

	require.NoError(t, guard.Validate(sender, receiver, decimal.RequireFromString("400.00"), false))
}

func TestValidateVerificationPolicy(t *testing.T) {
	verified := acct("400.00", true)
	unverified := acct("400.00", false)

	// Policy off: unverified parties pass.
	require.NoError(t, guard.Validate(unverified, verified, decimal.NewFromInt(1), false))

	// Policy on: either side being unverified rejects.
	err := guard.Validate(unverified, verified, decimal.NewFromInt(1), true)
	assert.ErrorIs(t, err, domain.ErrUnverifiedAccount)

	err = guard.Validate(verified, unverified, decimal.NewFromInt(1), true)
	assert.ErrorIs(t, err, domain.ErrUnverifiedAccount)
}

func TestValidateNilAccounts(t *testing.T) {
	a := acct("1.00", true)

	assert.ErrorIs(t, guard.Validate(nil, a, decimal.NewFromInt(1), false), domain.ErrAccountNotFound)
	assert.ErrorIs(t, guard.Validate(a, nil, decimal.NewFromInt(1), false), domain.ErrAccountNotFound)
}
