package custody_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

func linearParams(beneficiary types.Address, amount int64) custody.ScheduleParams {
	return custody.ScheduleParams{
		Beneficiary: beneficiary,
		Kind:        vesting.KindLinear,
		Start:       t0,
		Duration:    365 * day,
		SlicePeriod: 1,
		Amount:      amt(amount),
	}
}

func fundedSchedule(t *testing.T, h *harness, p custody.ScheduleParams) *vesting.Schedule {
	t.Helper()
	h.ledger.Mint(h.c.Vesting().Account(), p.Amount)
	sc, err := h.c.Vesting().CreateSchedule(h.ctx, admin, p)
	require.NoError(t, err)
	return sc
}

func TestVestingLinearRelease(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	sc := fundedSchedule(t, h, linearParams(alice, 100_000))

	rel, err := v.Releasable(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 0, rel)

	h.at(t0 + 182*day)
	rel, err = v.Releasable(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 49_863, rel)

	h.at(t0 + 365*day/2)
	rel, err = v.Releasable(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 50_000, rel)

	require.NoError(t, v.Release(h.ctx, alice, sc.ID, amt(50_000)))
	assertAmount(t, 50_000, h.balance(t, alice))

	err = v.Release(h.ctx, alice, sc.ID, amt(1))
	assert.ErrorIs(t, err, custody.ErrInsufficientVested)
	assert.ErrorIs(t, err, custody.ErrInsufficientFunds)

	h.at(t0 + 400*day)
	err = v.Release(h.ctx, alice, sc.ID, amt(50_001))
	assert.ErrorIs(t, err, custody.ErrInsufficientVested)

	got, err := v.ReleaseAll(h.ctx, alice, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 50_000, got)
	assertAmount(t, 100_000, h.balance(t, alice))
	assertAmount(t, 0, h.balance(t, v.Account()))

	_, err = v.ReleaseAll(h.ctx, alice, sc.ID)
	assert.ErrorIs(t, err, custody.ErrNothingToRelease)
	assert.ErrorIs(t, err, custody.ErrNothingToDo)

	totals, err := v.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 0, totals.Committed)
	assertAmount(t, 100_000, totals.Released)
	assert.Equal(t, int64(1), totals.Schedules)

	assert.Equal(t, 1, h.events.count(plugin.SignalScheduleCreated))
	assert.Equal(t, 2, h.events.count(plugin.SignalTokensReleased))
}

func TestVestingCliff(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	sc := fundedSchedule(t, h, custody.ScheduleParams{
		Beneficiary: alice,
		Kind:        vesting.KindCliff,
		Start:       t0,
		Cliff:       100 * day,
		Duration:    365 * day,
		SlicePeriod: 1,
		Amount:      amt(1_000),
	})

	h.at(t0 + 100*day - 1)
	vested, err := v.Vested(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 0, vested)

	_, err = v.ReleaseAll(h.ctx, alice, sc.ID)
	assert.ErrorIs(t, err, custody.ErrNothingToRelease)

	h.at(t0 + 101*day)
	vested, err = v.Vested(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 3, vested)

	h.at(t0 + 365*day)
	vested, err = v.Vested(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 1_000, vested)
}

func TestVestingLinearIgnoresCliff(t *testing.T) {
	h := newHarness(t)
	p := linearParams(alice, 1_000)
	p.Cliff = 200 * day
	sc := fundedSchedule(t, h, p)
	assert.Equal(t, int64(0), sc.Cliff)

	h.at(t0 + 365*day/2)
	vested, err := h.c.Vesting().Vested(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 500, vested)
}

func TestVestingCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*custody.ScheduleParams)
		want   error
	}{
		{"zero beneficiary", func(p *custody.ScheduleParams) { p.Beneficiary = "" }, custody.ErrZeroAddress},
		{"zero amount", func(p *custody.ScheduleParams) { p.Amount = types.ZeroAmount() }, custody.ErrInvalidAmount},
		{"negative amount", func(p *custody.ScheduleParams) { p.Amount = amt(-5) }, custody.ErrInvalidAmount},
		{"unknown kind", func(p *custody.ScheduleParams) { p.Kind = "step" }, custody.ErrInvalidKind},
		{"duration too short", func(p *custody.ScheduleParams) { p.Duration = 60 }, custody.ErrInvalidDuration},
		{"zero slice period", func(p *custody.ScheduleParams) { p.SlicePeriod = 0 }, custody.ErrInvalidSlicePeriod},
		{"cliff beyond duration", func(p *custody.ScheduleParams) {
			p.Kind = vesting.KindCliff
			p.Cliff = 400 * day
		}, custody.ErrInvalidCliff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ledger.Mint(h.c.Vesting().Account(), amt(1_000))

			p := linearParams(alice, 1_000)
			tt.mutate(&p)
			_, err := h.c.Vesting().CreateSchedule(h.ctx, admin, p)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, custody.ErrInvalidParameter)
		})
	}
}

func TestVestingSliceLongerThanDuration(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	p := linearParams(alice, 1_000)
	p.SlicePeriod = 400 * day
	sc := fundedSchedule(t, h, p)

	h.at(t0 + 364*day)
	vested, err := v.Vested(h.ctx, sc.ID)
	require.NoError(t, err)
	assert.True(t, vested.IsZero())

	h.at(t0 + 365*day)
	vested, err = v.Vested(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 1_000, vested)
}

func TestVestingCreateRequiresFreeBalance(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	h.ledger.Mint(v.Account(), amt(1_500))

	_, err := v.CreateSchedule(h.ctx, admin, linearParams(alice, 1_000))
	require.NoError(t, err)

	_, err = v.CreateSchedule(h.ctx, admin, linearParams(bob, 600))
	assert.ErrorIs(t, err, custody.ErrInsufficientCustodiedBalance)
	assert.True(t, custody.IsInsufficientFunds(err))

	free, err := v.Withdrawable(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 500, free)
}

func TestVestingCreateRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	h.ledger.Mint(h.c.Vesting().Account(), amt(1_000))

	_, err := h.c.Vesting().CreateSchedule(h.ctx, alice, linearParams(alice, 1_000))
	assert.ErrorIs(t, err, custody.ErrNotAdmin)
	assert.ErrorIs(t, err, custody.ErrUnauthorized)
}

func TestVestingDeterministicIDs(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()

	first := fundedSchedule(t, h, linearParams(alice, 100))
	second := fundedSchedule(t, h, linearParams(alice, 100))
	other := fundedSchedule(t, h, linearParams(bob, 100))

	assert.Equal(t, uint64(0), first.Sequence)
	assert.Equal(t, uint64(1), second.Sequence)
	assert.Equal(t, uint64(0), other.Sequence)
	assert.NotEqual(t, first.ID.String(), second.ID.String())
	assert.NotEqual(t, first.ID.String(), other.ID.String())

	assert.Equal(t, first.ID.String(), v.ScheduleIDAt(alice, 0).String())
	assert.Equal(t, second.ID.String(), v.ScheduleIDAt(alice, 1).String())

	list, err := v.Schedules(h.ctx, alice, vesting.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID.String(), list[0].ID.String())
}

func TestVestingReleaseAuthorization(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	sc := fundedSchedule(t, h, linearParams(alice, 1_000))
	h.at(t0 + 365*day)

	err := v.Release(h.ctx, bob, sc.ID, amt(10))
	assert.ErrorIs(t, err, custody.ErrNotBeneficiary)

	require.NoError(t, v.Release(h.ctx, admin, sc.ID, amt(10)))
	assertAmount(t, 10, h.balance(t, alice))
	assertAmount(t, 0, h.balance(t, admin))

	err = v.Release(h.ctx, alice, sc.ID, types.ZeroAmount())
	assert.ErrorIs(t, err, custody.ErrZeroAmount)
}

func TestVestingUnknownSchedule(t *testing.T) {
	h := newHarness(t)
	_, err := h.c.Vesting().ReleaseAll(h.ctx, alice, h.c.Vesting().ScheduleIDAt(alice, 7))
	assert.ErrorIs(t, err, custody.ErrNotInitialized)
	assert.True(t, custody.IsNotFound(err))
}

func TestVestingRevoke(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	sc := fundedSchedule(t, h, linearParams(alice, 100_000))

	h.at(t0 + 365*day/4)
	require.NoError(t, v.Release(h.ctx, alice, sc.ID, amt(10_000)))

	h.at(t0 + 365*day/2)
	assert.ErrorIs(t, v.Revoke(h.ctx, alice, sc.ID), custody.ErrNotAdmin)
	require.NoError(t, v.Revoke(h.ctx, admin, sc.ID))
	assertAmount(t, 50_000, h.balance(t, alice))

	got, err := v.Schedule(h.ctx, sc.ID)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, t0+365*day/2, got.RevokedAt)

	h.at(t0 + 365*day)
	vested, err := v.Vested(h.ctx, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 50_000, vested)

	err = v.Release(h.ctx, alice, sc.ID, amt(1))
	assert.ErrorIs(t, err, custody.ErrRevoked)
	assert.True(t, custody.IsStateConflict(err))
	assert.ErrorIs(t, v.Revoke(h.ctx, admin, sc.ID), custody.ErrAlreadyRevoked)

	totals, err := v.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 0, totals.Committed)
	assertAmount(t, 50_000, totals.Released)
	assertAmount(t, 50_000, totals.Reclaimed)

	free, err := v.Withdrawable(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 50_000, free)

	assert.Equal(t, 2, h.events.count(plugin.SignalTokensReleased))
	assert.Equal(t, 1, h.events.count(plugin.SignalScheduleRevoked))

	active, err := v.Schedules(h.ctx, alice, vesting.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := v.Schedules(h.ctx, alice, vesting.ListOpts{IncludeRevoked: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVestingRevokeBeforeStartReclaimsEverything(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	p := linearParams(alice, 1_000)
	p.Start = t0 + day
	sc := fundedSchedule(t, h, p)

	require.NoError(t, v.Revoke(h.ctx, admin, sc.ID))
	assertAmount(t, 0, h.balance(t, alice))
	assert.Equal(t, 0, h.events.count(plugin.SignalTokensReleased))

	totals, err := v.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 1_000, totals.Reclaimed)
	assertAmount(t, 0, totals.Committed)
}

func TestVestingTransferFailureRestoresState(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	sc := fundedSchedule(t, h, linearParams(alice, 1_000))
	h.at(t0 + 365*day/2)

	h.ledger.SetBeforeTransfer(func(context.Context, types.Address, types.Address, types.Amount) error {
		return errors.New("ledger offline")
	})

	err := v.Release(h.ctx, alice, sc.ID, amt(100))
	require.ErrorIs(t, err, custody.ErrTransferFailed)
	assert.True(t, custody.IsRetryable(err))

	err = v.Revoke(h.ctx, admin, sc.ID)
	require.ErrorIs(t, err, custody.ErrTransferFailed)

	got, err := v.Schedule(h.ctx, sc.ID)
	require.NoError(t, err)
	assert.False(t, got.Revoked)
	assertAmount(t, 0, got.Released)

	totals, err := v.Totals(h.ctx)
	require.NoError(t, err)
	assertAmount(t, 1_000, totals.Committed)
	assertAmount(t, 0, totals.Released)
	assertAmount(t, 0, totals.Reclaimed)
	assert.Equal(t, 0, h.events.count(plugin.SignalTokensReleased))

	h.ledger.SetBeforeTransfer(nil)
	require.NoError(t, v.Release(h.ctx, alice, sc.ID, amt(100)))
	assertAmount(t, 100, h.balance(t, alice))
}

func TestVestingReentrantReleaseSeesCommittedState(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	sc := fundedSchedule(t, h, linearParams(alice, 100_000))
	h.at(t0 + 365*day/2)

	var (
		once      sync.Once
		reentrant error
	)
	h.ledger.SetAfterTransfer(func(ctx context.Context, _, _ types.Address, _ types.Amount) {
		once.Do(func() {
			_, reentrant = v.ReleaseAll(ctx, alice, sc.ID)
		})
	})

	got, err := v.ReleaseAll(h.ctx, alice, sc.ID)
	require.NoError(t, err)
	assertAmount(t, 50_000, got)
	assert.ErrorIs(t, reentrant, custody.ErrNothingToRelease)
	assertAmount(t, 50_000, h.balance(t, alice))
}

func TestVestingPaused(t *testing.T) {
	h := newHarness(t)
	v := h.c.Vesting()
	sc := fundedSchedule(t, h, linearParams(alice, 1_000))
	h.at(t0 + 365*day)

	h.auth.Pause()
	err := v.Release(h.ctx, alice, sc.ID, amt(1))
	assert.ErrorIs(t, err, custody.ErrPaused)
	_, err = v.CreateSchedule(h.ctx, admin, linearParams(bob, 1))
	assert.ErrorIs(t, err, custody.ErrPaused)

	h.auth.Unpause()
	require.NoError(t, v.Release(h.ctx, alice, sc.ID, amt(1)))
}
