package custody_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
)

// fundStaker mints amount to account and approves the staking custody
// account to pull it.
func fundStaker(h *harness, account types.Address, amount int64) {
	h.ledger.Mint(account, amt(amount))
	h.ledger.Approve(account, h.c.Staking().Account(), amt(amount))
}

func TestStakingFlexibleClaim(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	require.NoError(t, s.UpdateAPY(h.ctx, admin, staking.TierFlexible, 100))

	fundStaker(h, bob, 10_000)
	h.ledger.Mint(s.Account(), amt(1_000))

	p, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assertAmount(t, 0, h.balance(t, bob))

	h.at(t0 + 365*day)
	pending, err := s.PendingRewards(h.ctx, bob)
	require.NoError(t, err)
	assertAmount(t, 100, pending)

	reward, err := s.ClaimRewards(h.ctx, bob)
	require.NoError(t, err)
	assertAmount(t, 100, reward)
	assertAmount(t, 100, h.balance(t, bob))

	_, err = s.ClaimRewards(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrNothingToClaim)
	assert.ErrorIs(t, err, custody.ErrNothingToDo)

	totals, err := s.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 10_000, totals.TotalStaked)
	assertAmount(t, 100, totals.ClaimedRewards)
	assert.Equal(t, int64(1), totals.ActivePositions)

	assert.Equal(t, 1, h.events.count(plugin.SignalStakeCreated))
	assert.Equal(t, 1, h.events.count(plugin.SignalRewardsClaimed))
}

func TestStakingLockedUnstake(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 10_000)
	h.ledger.Mint(s.Account(), amt(1_000))

	p, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierLocked3M)
	require.NoError(t, err)
	assert.Equal(t, t0+90*day, p.UnlocksAt())

	_, err = s.ClaimRewards(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrWrongTier)
	_, err = s.EmergencyWithdraw(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrWrongTier)

	h.at(t0 + 90*day - 1)
	_, err = s.Unstake(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrStillLocked)
	assert.True(t, custody.IsStateConflict(err))

	h.at(t0 + 90*day)
	evt, err := s.Unstake(h.ctx, bob)
	require.NoError(t, err)
	assertAmount(t, 10_000, evt.Principal)
	assertAmount(t, 197, evt.Rewards)
	assertAmount(t, 10_197, h.balance(t, bob))

	_, err = s.Position(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrNotActive)

	history, err := s.Positions(h.ctx, bob, staking.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	assert.Equal(t, staking.CloseUnstaked, history[0].CloseReason)

	totals, err := s.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 0, totals.TotalStaked)
	assert.Equal(t, int64(0), totals.ActivePositions)
	assert.Equal(t, 1, h.events.count(plugin.SignalStakeWithdrawn))
}

func TestStakingRestakeAfterUnstake(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 20_000)

	_, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)
	_, err = s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	assert.ErrorIs(t, err, custody.ErrAlreadyActive)

	_, err = s.Unstake(h.ctx, bob)
	require.NoError(t, err)
	_, err = s.Stake(h.ctx, bob, amt(10_000), staking.TierLocked6M)
	require.NoError(t, err)

	history, err := s.Positions(h.ctx, bob, staking.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 2)
	active, err := s.Positions(h.ctx, bob, staking.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, staking.TierLocked6M, active[0].Tier)
}

func TestStakingEmergencyWithdrawForfeitsRewards(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 10_000)
	h.ledger.Mint(s.Account(), amt(1_000))

	_, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)

	h.at(t0 + 100*day)
	evt, err := s.EmergencyWithdraw(h.ctx, bob)
	require.NoError(t, err)
	assertAmount(t, 10_000, evt.Principal)
	assert.True(t, evt.Forfeited.IsPositive())
	assertAmount(t, 10_000, h.balance(t, bob))
	assertAmount(t, 1_000, h.balance(t, s.Account()))

	history, err := s.Positions(h.ctx, bob, staking.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, staking.CloseEmergency, history[0].CloseReason)

	assert.Equal(t, 1, h.events.count(plugin.SignalStakeWithdrawn))
	assert.Equal(t, 1, h.events.count(plugin.SignalStakeEmergency))
}

func TestStakingStakeValidation(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 50)

	_, err := s.Stake(h.ctx, bob, amt(500), "forever")
	assert.ErrorIs(t, err, custody.ErrInvalidTier)

	_, err = s.Stake(h.ctx, bob, types.ZeroAmount(), staking.TierFlexible)
	assert.ErrorIs(t, err, custody.ErrBelowMinimum)
	assert.ErrorIs(t, err, custody.ErrInvalidParameter)

	_, err = s.Stake(h.ctx, bob, amt(50), staking.TierFlexible)
	assert.ErrorIs(t, err, custody.ErrBelowMinimum)

	_, err = s.Stake(h.ctx, bob, amt(500), staking.TierFlexible)
	assert.ErrorIs(t, err, custody.ErrInsufficientCallerBalance)
}

func TestStakingStakeWithoutAllowanceLeavesNoPosition(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	h.ledger.Mint(bob, amt(10_000))

	_, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.ErrorIs(t, err, custody.ErrTransferFailed)

	_, err = s.Position(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrNotActive)

	totals, err := s.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 0, totals.TotalStaked)
	assert.Equal(t, int64(0), totals.ActivePositions)
	assertAmount(t, 10_000, h.balance(t, bob))
	assert.Equal(t, 0, h.events.count(plugin.SignalStakeCreated))
}

func TestStakingRewardsNeverComeFromPrincipal(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 10_000)
	fundStaker(h, carol, 10_000)

	_, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)
	_, err = s.Stake(h.ctx, carol, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)

	h.at(t0 + 365*day)
	_, err = s.ClaimRewards(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrInsufficientFunds)
	_, err = s.Unstake(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrInsufficientFunds)

	// Forfeiting rewards needs no surplus.
	_, err = s.EmergencyWithdraw(h.ctx, bob)
	require.NoError(t, err)
	assertAmount(t, 10_000, h.balance(t, s.Account()))
}

func TestStakingSplitClaimsNeverExceedSingleClaim(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 10_007)
	fundStaker(h, carol, 10_007)
	h.ledger.Mint(s.Account(), amt(10_000))

	_, err := s.Stake(h.ctx, bob, amt(10_007), staking.TierFlexible)
	require.NoError(t, err)
	_, err = s.Stake(h.ctx, carol, amt(10_007), staking.TierFlexible)
	require.NoError(t, err)

	split := types.ZeroAmount()
	for _, at := range []int64{t0 + 13*day + 7, t0 + 101*day + 3, t0 + 200*day + 11} {
		h.at(at)
		r, err := s.ClaimRewards(h.ctx, bob)
		require.NoError(t, err)
		split = split.Add(r)
	}
	h.at(t0 + 300*day)
	r, err := s.ClaimRewards(h.ctx, bob)
	require.NoError(t, err)
	split = split.Add(r)

	single, err := s.ClaimRewards(h.ctx, carol)
	require.NoError(t, err)
	assert.False(t, split.GreaterThan(single), "split %s > single %s", split, single)
}

func TestStakingAPYAdministration(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()

	apy, err := s.APY(h.ctx, staking.TierLocked12M)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), apy)

	assert.ErrorIs(t, s.UpdateAPY(h.ctx, bob, staking.TierFlexible, 10), custody.ErrNotAdmin)
	assert.ErrorIs(t, s.UpdateAPY(h.ctx, admin, staking.TierFlexible, 5001), custody.ErrAPYTooHigh)
	assert.ErrorIs(t, s.UpdateAPY(h.ctx, admin, staking.TierFlexible, -1), custody.ErrInvalidParameter)
	assert.ErrorIs(t, s.UpdateAPY(h.ctx, admin, "weekly", 10), custody.ErrInvalidTier)

	require.NoError(t, s.UpdateAPY(h.ctx, admin, staking.TierFlexible, 0))
	apy, err = s.APY(h.ctx, staking.TierFlexible)
	require.NoError(t, err)
	assert.Equal(t, int64(0), apy)
	assert.Equal(t, 1, h.events.count(plugin.SignalAPYUpdated))

	fundStaker(h, bob, 1_000)
	_, err = s.Stake(h.ctx, bob, amt(1_000), staking.TierFlexible)
	require.NoError(t, err)
	h.at(t0 + 365*day)
	_, err = s.ClaimRewards(h.ctx, bob)
	assert.ErrorIs(t, err, custody.ErrNothingToClaim)
}

func TestStakingRewardsReserve(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	h.ledger.Mint(admin, amt(5_000))
	h.ledger.Approve(admin, s.Account(), amt(5_000))

	assert.ErrorIs(t, s.AddRewardsReserve(h.ctx, bob, amt(1)), custody.ErrNotAdmin)
	assert.ErrorIs(t, s.AddRewardsReserve(h.ctx, admin, types.ZeroAmount()), custody.ErrZeroAmount)

	require.NoError(t, s.AddRewardsReserve(h.ctx, admin, amt(5_000)))
	assertAmount(t, 5_000, h.balance(t, s.Account()))

	err := s.DistributeRewards(h.ctx, admin, amt(5_001))
	assert.ErrorIs(t, err, custody.ErrInsufficientReserve)

	require.NoError(t, s.DistributeRewards(h.ctx, admin, amt(2_000)))
	totals, err := s.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 3_000, totals.RewardReserve)
	assertAmount(t, 2_000, totals.DistributedRewards)

	// Reserve without allowance fails and is not credited.
	h.ledger.Mint(admin, amt(100))
	require.ErrorIs(t, s.AddRewardsReserve(h.ctx, admin, amt(100)), custody.ErrTransferFailed)
	totals, err = s.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 3_000, totals.RewardReserve)

	assert.Equal(t, 1, h.events.count(plugin.SignalRewardsReserveAdded))
	assert.Equal(t, 1, h.events.count(plugin.SignalRewardsDistributed))
}

func TestStakingCalculateRewards(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()

	r, err := s.CalculateRewards(h.ctx, bob, t0+day)
	require.NoError(t, err)
	assertAmount(t, 0, r)

	fundStaker(h, bob, 10_000)
	_, err = s.Stake(h.ctx, bob, amt(10_000), staking.TierLocked12M)
	require.NoError(t, err)

	r, err = s.CalculateRewards(h.ctx, bob, t0)
	require.NoError(t, err)
	assertAmount(t, 0, r)

	r, err = s.CalculateRewards(h.ctx, bob, t0+365*day)
	require.NoError(t, err)
	assertAmount(t, 2_000, r)

	r, err = s.CalculateRewards(h.ctx, bob, t0-day)
	require.NoError(t, err)
	assertAmount(t, 0, r)
}

func TestStakingReentrantUnstakeFindsNoPosition(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 10_000)
	_, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)

	var reentrant error
	calls := 0
	h.ledger.SetAfterTransfer(func(ctx context.Context, _, to types.Address, _ types.Amount) {
		if to != bob || calls > 0 {
			return
		}
		calls++
		_, reentrant = s.Unstake(ctx, bob)
	})

	_, err = s.Unstake(h.ctx, bob)
	require.NoError(t, err)
	assert.ErrorIs(t, reentrant, custody.ErrNotActive)
	assertAmount(t, 10_000, h.balance(t, bob))
}

func TestStakingReentrantUnstakeDuringStakePull(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 10_000)
	_, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)

	// alice holds the funds but never approved the custody account.
	h.ledger.Mint(alice, amt(500))

	var reentrant error
	calls := 0
	h.ledger.SetBeforeTransfer(func(ctx context.Context, from, _ types.Address, _ types.Amount) error {
		if from != alice || calls > 0 {
			return nil
		}
		calls++
		_, reentrant = s.Unstake(ctx, alice)
		return nil
	})

	_, err = s.Stake(h.ctx, alice, amt(500), staking.TierFlexible)
	require.ErrorIs(t, err, custody.ErrTransferFailed)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, reentrant, custody.ErrNotActive)

	assertAmount(t, 500, h.balance(t, alice))
	assertAmount(t, 0, h.balance(t, bob))
	assertAmount(t, 10_000, h.balance(t, s.Account()))

	totals, err := s.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 10_000, totals.TotalStaked)
	assertAmount(t, 10_000, totals.StakedByTier[staking.TierFlexible])
	assert.Equal(t, int64(1), totals.ActivePositions)

	_, err = s.Position(h.ctx, alice)
	assert.ErrorIs(t, err, custody.ErrNotActive)
	p, err := s.Position(h.ctx, bob)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, 0, h.events.count(plugin.SignalStakeWithdrawn))
}

func TestStakingReentrantStakeDuringStakePull(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, alice, 1_000)

	var reentrant error
	calls := 0
	h.ledger.SetBeforeTransfer(func(ctx context.Context, from, _ types.Address, _ types.Amount) error {
		if from != alice || calls > 0 {
			return nil
		}
		calls++
		_, reentrant = s.Stake(ctx, alice, amt(500), staking.TierFlexible)
		return nil
	})

	_, err := s.Stake(h.ctx, alice, amt(500), staking.TierFlexible)
	require.NoError(t, err)
	assert.ErrorIs(t, reentrant, custody.ErrAlreadyActive)

	totals, err := s.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 500, totals.TotalStaked)
	assert.Equal(t, int64(1), totals.ActivePositions)
	assertAmount(t, 500, h.balance(t, alice))
	assertAmount(t, 500, h.balance(t, s.Account()))
}

func TestStakingUnrecordedDepositIsNotSurplus(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	require.NoError(t, s.UpdateAPY(h.ctx, admin, staking.TierFlexible, 100))
	fundStaker(h, bob, 10_000)
	_, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)

	h.at(t0 + 365*day)
	fundStaker(h, alice, 500)

	// alice's principal has landed in custody but is not yet recorded.
	var reentrant error
	calls := 0
	h.ledger.SetAfterTransfer(func(ctx context.Context, from, _ types.Address, _ types.Amount) {
		if from != alice || calls > 0 {
			return
		}
		calls++
		_, reentrant = s.ClaimRewards(ctx, bob)
	})

	_, err = s.Stake(h.ctx, alice, amt(500), staking.TierFlexible)
	require.NoError(t, err)
	assert.ErrorIs(t, reentrant, custody.ErrInsufficientFunds)
	assertAmount(t, 0, h.balance(t, bob))
	assertAmount(t, 10_500, h.balance(t, s.Account()))
}

func TestStakingFailedClaimAfterReentrantUnstake(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	require.NoError(t, s.UpdateAPY(h.ctx, admin, staking.TierFlexible, 100))
	fundStaker(h, bob, 10_000)
	h.ledger.Mint(s.Account(), amt(1_000))
	_, err := s.Stake(h.ctx, bob, amt(10_000), staking.TierFlexible)
	require.NoError(t, err)
	h.at(t0 + 365*day)

	// The claim transfer re-enters Unstake, which succeeds, and then fails.
	var reentrant error
	calls := 0
	h.ledger.SetBeforeTransfer(func(ctx context.Context, _, to types.Address, _ types.Amount) error {
		if to != bob {
			return nil
		}
		calls++
		if calls > 1 {
			return nil
		}
		_, reentrant = s.Unstake(ctx, bob)
		return errors.New("ledger offline")
	})

	_, err = s.ClaimRewards(h.ctx, bob)
	require.ErrorIs(t, err, custody.ErrTransferFailed)
	assert.ErrorIs(t, err, custody.ErrChangedInFlight)
	require.NoError(t, reentrant)

	// Principal came back once; the failed reward was never counted and the
	// closed position stayed closed.
	assertAmount(t, 10_000, h.balance(t, bob))
	totals, err := s.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 0, totals.TotalStaked)
	assertAmount(t, 0, totals.ClaimedRewards)
	assert.Equal(t, int64(0), totals.ActivePositions)

	history, err := s.Positions(h.ctx, bob, staking.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	assert.True(t, history[0].Claimed.IsZero())
}

func TestStakingLedgerPanicLeavesEngineUsable(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, alice, 1_000)

	h.ledger.SetBeforeTransfer(func(context.Context, types.Address, types.Address, types.Amount) error {
		panic("ledger crashed")
	})
	assert.Panics(t, func() {
		_, _ = s.Stake(h.ctx, alice, amt(500), staking.TierFlexible)
	})
	h.ledger.SetBeforeTransfer(nil)

	_, err := s.Stake(h.ctx, alice, amt(500), staking.TierFlexible)
	require.NoError(t, err)

	// The aborted pull no longer counts against the custody balance.
	_, err = s.EmergencyWithdraw(h.ctx, alice)
	require.NoError(t, err)
	assertAmount(t, 1_000, h.balance(t, alice))
	assertAmount(t, 0, h.balance(t, s.Account()))
}

func TestStakingPaused(t *testing.T) {
	h := newHarness(t)
	s := h.c.Staking()
	fundStaker(h, bob, 1_000)

	h.auth.Pause()
	_, err := s.Stake(h.ctx, bob, amt(1_000), staking.TierFlexible)
	assert.ErrorIs(t, err, custody.ErrPaused)
	assert.ErrorIs(t, s.UpdateAPY(h.ctx, admin, staking.TierFlexible, 1), custody.ErrPaused)
}
