package badgerstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-core/internal/domain"
	"transfer-core/internal/store"
	"transfer-core/internal/store/badgerstore"
)

func newStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	st, err := badgerstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newAccount(t *testing.T, st *badgerstore.Store, balance string) *domain.Account {
	t.Helper()
	acc := &domain.Account{
		ID:        uuid.New(),
		Balance:   decimal.RequireFromString(balance),
		Verified:  true,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, st.CreateAccount(context.Background(), acc))
	return acc
}

func TestAccountRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	acc := newAccount(t, st, "123.45")

	got, err := st.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("123.45")))
	assert.True(t, got.Verified)
}

func TestGetAccountMissing(t *testing.T) {
	st := newStore(t)

	_, err := st.GetAccount(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestListAccounts(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	got, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	a := newAccount(t, st, "1.00")
	time.Sleep(2 * time.Millisecond)
	b := newAccount(t, st, "2.00")

	got, err = st.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by creation time.
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)
}

func TestDeleteAccount(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	acc := newAccount(t, st, "1.00")

	found, err := st.DeleteAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, found)

	// Missing account is a clean false, not an error.
	found, err = st.DeleteAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteAccountWithHistory(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	a := newAccount(t, st, "10.00")
	b := newAccount(t, st, "0.00")

	err := st.Atomically(ctx, func(tx store.Tx) error {
		return tx.PutTransfer(ctx, &domain.Transfer{
			ID:         uuid.New(),
			SenderID:   a.ID,
			ReceiverID: b.ID,
			Amount:     decimal.RequireFromString("5.00"),
			CreatedAt:  time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	_, err = st.DeleteAccount(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrAccountInUse)
	_, err = st.DeleteAccount(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrAccountInUse)
}

func TestAtomicallyRollsBackOnError(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	acc := newAccount(t, st, "100.00")
	boom := errors.New("boom")

	err := st.Atomically(ctx, func(tx store.Tx) error {
		got, err := tx.GetAccount(ctx, acc.ID)
		if err != nil {
			return err
		}
		got.Balance = decimal.Zero
		if err := tx.PutAccount(ctx, got); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The aborted write must not be visible.
	got, err := st.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("100.00")))
}

func TestTransferRecordRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	a := newAccount(t, st, "10.00")
	b := newAccount(t, st, "0.00")

	tr := &domain.Transfer{
		ID:         uuid.New(),
		SenderID:   a.ID,
		ReceiverID: b.ID,
		Amount:     decimal.RequireFromString("2.50"),
		Reason:     "lunch",
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	err := st.Atomically(ctx, func(tx store.Tx) error {
		return tx.PutTransfer(ctx, tr)
	})
	require.NoError(t, err)

	got, err := st.GetTransfer(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
	assert.Equal(t, "lunch", got.Reason)
	assert.True(t, got.Amount.Equal(tr.Amount))

	_, err = st.GetTransfer(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrTransferNotFound)
}

func TestListTransfersByAccount(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	a := newAccount(t, st, "10.00")
	b := newAccount(t, st, "0.00")
	c := newAccount(t, st, "0.00")

	base := time.Now().UTC().Truncate(time.Millisecond)
	mk := func(sender, receiver uuid.UUID, offset time.Duration) {
		err := st.Atomically(ctx, func(tx store.Tx) error {
			return tx.PutTransfer(ctx, &domain.Transfer{
				ID:         uuid.New(),
				SenderID:   sender,
				ReceiverID: receiver,
				Amount:     decimal.RequireFromString("1.00"),
				CreatedAt:  base.Add(offset),
			})
		})
		require.NoError(t, err)
	}
	mk(a.ID, b.ID, 2*time.Second)
	mk(a.ID, c.ID, time.Second)
	mk(b.ID, c.ID, 3*time.Second)

	got, err := st.ListTransfersByAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by creation time.
	assert.Equal(t, c.ID, got[0].ReceiverID)
	assert.Equal(t, b.ID, got[1].ReceiverID)

	got, err = st.ListTransfersByAccount(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = st.ListTransfersByAccount(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDedupRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	rec := store.DedupRecord{Key: "k1", RequestHash: "h1", TransferID: uuid.New()}

	err := st.Atomically(ctx, func(tx store.Tx) error {
		got, err := tx.GetDedup(ctx, "k1")
		require.NoError(t, err)
		require.Nil(t, got)
		return tx.PutDedup(ctx, rec)
	})
	require.NoError(t, err)

	err = st.Atomically(ctx, func(tx store.Tx) error {
		got, err := tx.GetDedup(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rec, *got)
		return nil
	})
	require.NoError(t, err)
}
