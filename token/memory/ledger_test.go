package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody/token"
	"github.com/xraph/custody/token/memory"
	"github.com/xraph/custody/types"
)

func balance(t *testing.T, l *memory.Ledger, a types.Address) types.Amount {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), a)
	require.NoError(t, err)
	return b
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	l := memory.New()
	l.Mint("alice", types.NewAmount(100))

	require.NoError(t, l.Transfer(ctx, "alice", "bob", types.NewAmount(40)))
	assert.True(t, balance(t, l, "alice").Equal(types.NewAmount(60)))
	assert.True(t, balance(t, l, "bob").Equal(types.NewAmount(40)))

	err := l.Transfer(ctx, "alice", "bob", types.NewAmount(61))
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.True(t, balance(t, l, "alice").Equal(types.NewAmount(60)))
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	l := memory.New()
	l.Mint("alice", types.NewAmount(100))

	err := l.TransferFrom(ctx, "vault", "alice", "vault", types.NewAmount(10))
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	l.Approve("alice", "vault", types.NewAmount(30))
	require.NoError(t, l.TransferFrom(ctx, "vault", "alice", "vault", types.NewAmount(10)))
	assert.True(t, l.Allowance("alice", "vault").Equal(types.NewAmount(20)))
	assert.True(t, balance(t, l, "vault").Equal(types.NewAmount(10)))
}

func TestTransferBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	l := memory.New()
	l.Mint("vault", types.NewAmount(100))

	err := l.TransferBatch(ctx, "vault", []token.Transfer{
		{To: "a", Amount: types.NewAmount(60)},
		{To: "b", Amount: types.NewAmount(60)},
	})
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.True(t, balance(t, l, "vault").Equal(types.NewAmount(100)))
	assert.True(t, balance(t, l, "a").IsZero())

	require.NoError(t, l.TransferBatch(ctx, "vault", []token.Transfer{
		{To: "a", Amount: types.NewAmount(60)},
		{To: "b", Amount: types.NewAmount(40)},
	}))
	assert.True(t, balance(t, l, "vault").IsZero())
}

func TestHooks(t *testing.T) {
	ctx := context.Background()
	l := memory.New()
	l.Mint("vault", types.NewAmount(100))

	veto := errors.New("blocked")
	l.SetBeforeTransfer(func(_ context.Context, _, to types.Address, _ types.Amount) error {
		if to == "mallory" {
			return veto
		}
		return nil
	})

	var seen []types.Address
	l.SetAfterTransfer(func(_ context.Context, _, to types.Address, _ types.Amount) {
		seen = append(seen, to)
	})

	assert.ErrorIs(t, l.Transfer(ctx, "vault", "mallory", types.NewAmount(1)), veto)
	require.NoError(t, l.Transfer(ctx, "vault", "bob", types.NewAmount(1)))
	assert.Equal(t, []types.Address{"bob"}, seen)
}
