package custody

import (
	"context"
	"fmt"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

// ScheduleParams describes a schedule to create. Times are Unix seconds.
type ScheduleParams struct {
	Beneficiary types.Address
	Kind        vesting.Kind
	Start       int64
	Cliff       int64
	Duration    int64
	SlicePeriod int64
	Amount      types.Amount
}

// VestingEngine releases committed tokens to beneficiaries over time.
type VestingEngine struct {
	*core
	store vesting.Store
	cfg   VestingConfig
}

func newVestingEngine(c *core, s vesting.Store, cfg VestingConfig) *VestingEngine {
	return &VestingEngine{core: c, store: s, cfg: cfg}
}

// Account returns the custody address that holds vesting funds.
func (v *VestingEngine) Account() types.Address { return v.account }

// ──────────────────────────────────────────────────
// Schedule management
// ──────────────────────────────────────────────────

// CreateSchedule funds a new schedule from the custody account's free balance.
func (v *VestingEngine) CreateSchedule(ctx context.Context, caller types.Address, p ScheduleParams) (*vesting.Schedule, error) {
	if err := v.requireNotPaused(ctx); err != nil {
		return nil, err
	}
	if err := v.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	if err := v.validateParams(p); err != nil {
		return nil, err
	}

	sc, err := v.createSchedule(ctx, p)
	if err != nil {
		return nil, err
	}

	v.logger.Info("vesting schedule created",
		"schedule_id", sc.ID.String(),
		"beneficiary", sc.Beneficiary,
		"kind", sc.Kind,
		"amount", sc.AmountTotal.String(),
	)
	v.plugins.EmitScheduleCreated(ctx, &plugin.ScheduleCreated{
		ScheduleID:  sc.ID,
		Beneficiary: sc.Beneficiary,
		Kind:        sc.Kind,
		Amount:      sc.AmountTotal,
		Start:       sc.Start,
		Cliff:       sc.Cliff,
		Duration:    sc.Duration,
		At:          sc.CreatedAt.Unix(),
	})
	return sc, nil
}

func (v *VestingEngine) validateParams(p ScheduleParams) error {
	switch {
	case p.Beneficiary.IsZero():
		return ErrZeroAddress
	case !p.Amount.IsPositive():
		return fmt.Errorf("%w: %s", ErrInvalidAmount, p.Amount)
	case !p.Kind.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidKind, p.Kind)
	case p.Duration < int64(v.cfg.MinDuration.Seconds()) || p.Duration > int64(v.cfg.MaxDuration.Seconds()):
		return fmt.Errorf("%w: %ds not within [%s, %s]", ErrInvalidDuration, p.Duration, v.cfg.MinDuration, v.cfg.MaxDuration)
	case p.SlicePeriod < 1:
		return fmt.Errorf("%w: %ds", ErrInvalidSlicePeriod, p.SlicePeriod)
	case p.Kind == vesting.KindCliff && (p.Cliff < 0 || p.Cliff > p.Duration):
		return fmt.Errorf("%w: %ds", ErrInvalidCliff, p.Cliff)
	}
	return nil
}

func (v *VestingEngine) createSchedule(ctx context.Context, p ScheduleParams) (*vesting.Schedule, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	totals, err := v.store.GetVestingTotals(ctx)
	if err != nil {
		return nil, err
	}
	avail, err := v.available(ctx)
	if err != nil {
		return nil, err
	}
	if avail.Sub(totals.Committed).LessThan(p.Amount) {
		return nil, fmt.Errorf("%w: free balance %s, requested %s",
			ErrInsufficientCustodiedBalance, avail.Sub(totals.Committed).ClampZero(), p.Amount)
	}

	beneficiary := p.Beneficiary.Normalize()
	seq, err := v.store.CountSchedules(ctx, beneficiary)
	if err != nil {
		return nil, err
	}

	cliff := p.Cliff
	if p.Kind == vesting.KindLinear {
		cliff = 0
	}

	now := v.clock.Now()
	sc := &vesting.Schedule{
		Entity:      types.NewEntityAt(now),
		ID:          id.NewScheduleID(v.account.String(), beneficiary.String(), seq),
		Beneficiary: beneficiary,
		Sequence:    seq,
		Kind:        p.Kind,
		Start:       p.Start,
		Cliff:       cliff,
		Duration:    p.Duration,
		SlicePeriod: p.SlicePeriod,
		AmountTotal: p.Amount,
		Released:    types.ZeroAmount(),
		Initialized: true,
	}

	totals.Committed = totals.Committed.Add(p.Amount)
	totals.Schedules++
	if err := v.store.InsertSchedule(ctx, sc, totals); err != nil {
		return nil, err
	}
	return sc, nil
}

// ──────────────────────────────────────────────────
// Release
// ──────────────────────────────────────────────────

// Release pays amount of the schedule's releasable tokens to its beneficiary.
// The caller must be the beneficiary or an admin.
func (v *VestingEngine) Release(ctx context.Context, caller types.Address, scheduleID id.ScheduleID, amount types.Amount) error {
	if err := v.requireNotPaused(ctx); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrZeroAmount
	}
	evt, err := v.release(ctx, caller, scheduleID, func(releasable types.Amount) (types.Amount, error) {
		if amount.GreaterThan(releasable) {
			return types.Amount{}, fmt.Errorf("%w: requested %s, releasable %s", ErrInsufficientVested, amount, releasable)
		}
		return amount, nil
	})
	if err != nil {
		return err
	}
	v.emitReleased(ctx, evt)
	return nil
}

// ReleaseAll pays everything currently releasable and returns the amount.
func (v *VestingEngine) ReleaseAll(ctx context.Context, caller types.Address, scheduleID id.ScheduleID) (types.Amount, error) {
	if err := v.requireNotPaused(ctx); err != nil {
		return types.Amount{}, err
	}
	evt, err := v.release(ctx, caller, scheduleID, func(releasable types.Amount) (types.Amount, error) {
		if releasable.IsZero() {
			return types.Amount{}, ErrNothingToRelease
		}
		return releasable, nil
	})
	if err != nil {
		return types.Amount{}, err
	}
	v.emitReleased(ctx, evt)
	return evt.Amount, nil
}

// release runs the shared release path. pick chooses the amount to pay from
// what is releasable now.
func (v *VestingEngine) release(ctx context.Context, caller types.Address, scheduleID id.ScheduleID, pick func(types.Amount) (types.Amount, error)) (*plugin.TokensReleased, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sc, err := v.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if caller.Normalize() != sc.Beneficiary && !v.auth.IsAuthorizedAdmin(ctx, caller.Normalize()) {
		return nil, ErrNotBeneficiary
	}
	if sc.Revoked {
		return nil, ErrRevoked
	}

	now := v.now()
	amount, err := pick(sc.ReleasableAmount(now))
	if err != nil {
		return nil, err
	}

	totals, err := v.store.GetVestingTotals(ctx)
	if err != nil {
		return nil, err
	}
	sc.Released = sc.Released.Add(amount)
	sc.Touch(v.clock.Now())
	totals.Committed = totals.Committed.Sub(amount)
	totals.Released = totals.Released.Add(amount)
	if err := v.store.UpdateSchedule(ctx, sc, totals); err != nil {
		return nil, err
	}

	err = v.payOut(ctx, sc.Beneficiary, amount, func(ctx context.Context) error {
		return v.undoRelease(ctx, scheduleID, amount, false, types.ZeroAmount())
	})
	if err != nil {
		return nil, err
	}

	return &plugin.TokensReleased{
		ScheduleID:  sc.ID,
		Beneficiary: sc.Beneficiary,
		Amount:      amount,
		At:          now,
	}, nil
}

// undoRelease reverses a release of amount and, for a revocation, the
// revoked flag and the reclaimed remainder. It reloads the schedule so
// commits made while the transfer was pending survive.
func (v *VestingEngine) undoRelease(ctx context.Context, scheduleID id.ScheduleID, amount types.Amount, unrevoke bool, reclaimed types.Amount) error {
	sc, err := v.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	totals, err := v.store.GetVestingTotals(ctx)
	if err != nil {
		return err
	}

	sc.Released = sc.Released.Sub(amount)
	totals.Committed = totals.Committed.Add(amount)
	totals.Released = totals.Released.Sub(amount)
	if unrevoke {
		sc.Revoked = false
		sc.RevokedAt = 0
		totals.Committed = totals.Committed.Add(reclaimed)
		totals.Reclaimed = totals.Reclaimed.Sub(reclaimed)
	}
	sc.Touch(v.clock.Now())
	return v.store.UpdateSchedule(ctx, sc, totals)
}

func (v *VestingEngine) emitReleased(ctx context.Context, evt *plugin.TokensReleased) {
	v.logger.Info("vesting tokens released",
		"schedule_id", evt.ScheduleID.String(),
		"beneficiary", evt.Beneficiary,
		"amount", evt.Amount.String(),
	)
	v.plugins.EmitTokensReleased(ctx, evt)
}

// ──────────────────────────────────────────────────
// Revocation
// ──────────────────────────────────────────────────

// Revoke freezes a schedule. The vested but unreleased part is paid to the
// beneficiary; the unvested remainder stops being committed.
func (v *VestingEngine) Revoke(ctx context.Context, caller types.Address, scheduleID id.ScheduleID) error {
	if err := v.requireNotPaused(ctx); err != nil {
		return err
	}
	if err := v.requireAdmin(ctx, caller); err != nil {
		return err
	}

	evt, err := v.revoke(ctx, scheduleID)
	if err != nil {
		return err
	}

	if evt.Released.IsPositive() {
		v.emitReleased(ctx, &plugin.TokensReleased{
			ScheduleID:  evt.ScheduleID,
			Beneficiary: evt.Beneficiary,
			Amount:      evt.Released,
			At:          evt.At,
		})
	}
	v.logger.Info("vesting schedule revoked",
		"schedule_id", evt.ScheduleID.String(),
		"released", evt.Released.String(),
		"reclaimed", evt.Reclaimed.String(),
	)
	v.plugins.EmitScheduleRevoked(ctx, evt)
	return nil
}

func (v *VestingEngine) revoke(ctx context.Context, scheduleID id.ScheduleID) (*plugin.ScheduleRevoked, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sc, err := v.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sc.Revoked {
		return nil, ErrAlreadyRevoked
	}
	totals, err := v.store.GetVestingTotals(ctx)
	if err != nil {
		return nil, err
	}

	now := v.now()
	vested := sc.VestedAmount(now)
	payout := vested.Sub(sc.Released).ClampZero()
	reclaimed := sc.AmountTotal.Sub(vested)

	sc.Released = sc.Released.Add(payout)
	sc.Revoked = true
	sc.RevokedAt = now
	sc.Touch(v.clock.Now())
	totals.Committed = totals.Committed.Sub(payout).Sub(reclaimed)
	totals.Released = totals.Released.Add(payout)
	totals.Reclaimed = totals.Reclaimed.Add(reclaimed)
	if err := v.store.UpdateSchedule(ctx, sc, totals); err != nil {
		return nil, err
	}

	if payout.IsPositive() {
		err = v.payOut(ctx, sc.Beneficiary, payout, func(ctx context.Context) error {
			return v.undoRelease(ctx, scheduleID, payout, true, reclaimed)
		})
		if err != nil {
			return nil, err
		}
	}

	return &plugin.ScheduleRevoked{
		ScheduleID:  sc.ID,
		Beneficiary: sc.Beneficiary,
		Released:    payout,
		Reclaimed:   reclaimed,
		At:          now,
	}, nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Schedule returns a schedule by ID.
func (v *VestingEngine) Schedule(ctx context.Context, scheduleID id.ScheduleID) (*vesting.Schedule, error) {
	return v.store.GetSchedule(ctx, scheduleID)
}

// Schedules lists a beneficiary's schedules in creation order.
func (v *VestingEngine) Schedules(ctx context.Context, beneficiary types.Address, opts vesting.ListOpts) ([]*vesting.Schedule, error) {
	return v.store.ListSchedules(ctx, beneficiary.Normalize(), opts)
}

// ScheduleIDAt returns the ID of a beneficiary's schedule at the given
// sequence number, whether or not it exists yet.
func (v *VestingEngine) ScheduleIDAt(beneficiary types.Address, sequence uint64) id.ScheduleID {
	return id.NewScheduleID(v.account.String(), beneficiary.Normalize().String(), sequence)
}

// Vested returns how much of the schedule has vested now.
func (v *VestingEngine) Vested(ctx context.Context, scheduleID id.ScheduleID) (types.Amount, error) {
	sc, err := v.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return types.Amount{}, err
	}
	return sc.VestedAmount(v.now()), nil
}

// Releasable returns how much the beneficiary could release now.
func (v *VestingEngine) Releasable(ctx context.Context, scheduleID id.ScheduleID) (types.Amount, error) {
	sc, err := v.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return types.Amount{}, err
	}
	return sc.ReleasableAmount(v.now()), nil
}

// Totals returns the vesting counters.
func (v *VestingEngine) Totals(ctx context.Context) (vesting.Totals, error) {
	return v.store.GetVestingTotals(ctx)
}

// Withdrawable returns the custody balance not committed to any schedule.
func (v *VestingEngine) Withdrawable(ctx context.Context) (types.Amount, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	totals, err := v.store.GetVestingTotals(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	avail, err := v.available(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return avail.Sub(totals.Committed).ClampZero(), nil
}
