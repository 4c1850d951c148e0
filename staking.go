package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
)

// StakingEngine holds staked principal and pays APY rewards.
//
// Rewards come from the custody account's surplus: its balance minus
// in-flight transfers minus total staked principal. Principal is never used
// to pay rewards.
type StakingEngine struct {
	*core
	store staking.Store
	cfg   StakingConfig

	// opening holds accounts whose stake is being pulled and is not yet
	// recorded. Guarded by mu.
	opening map[types.Address]struct{}
}

func newStakingEngine(c *core, s staking.Store, cfg StakingConfig) *StakingEngine {
	return &StakingEngine{
		core:    c,
		store:   s,
		cfg:     cfg,
		opening: make(map[types.Address]struct{}),
	}
}

// Account returns the custody address that holds staked funds.
func (s *StakingEngine) Account() types.Address { return s.account }

// loadTotals returns the stored totals. Until an APY table has been saved
// the rates come from config.
func (s *StakingEngine) loadTotals(ctx context.Context) (staking.Totals, error) {
	t, ok, err := s.store.GetStakingTotals(ctx)
	if err != nil {
		return staking.Totals{}, err
	}
	if !ok {
		seeded := staking.NewTotals(s.cfg.APYTable())
		seeded.TotalStaked = t.TotalStaked
		seeded.ActivePositions = t.ActivePositions
		seeded.ClaimedRewards = t.ClaimedRewards
		for tier, amount := range t.StakedByTier {
			seeded.StakedByTier[tier] = amount
		}
		return seeded, nil
	}
	return t, nil
}

func (s *StakingEngine) activePosition(ctx context.Context, account types.Address) (*staking.Position, error) {
	p, err := s.store.GetActivePosition(ctx, account)
	if errors.Is(err, ErrPositionNotFound) {
		return nil, ErrNotActive
	}
	return p, err
}

// surplus is what the custody account holds beyond staked principal.
// Callers hold mu.
func (s *StakingEngine) surplus(ctx context.Context, totals staking.Totals) (types.Amount, error) {
	avail, err := s.available(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return avail.Sub(totals.TotalStaked), nil
}

// ──────────────────────────────────────────────────
// Positions
// ──────────────────────────────────────────────────

// Stake opens a position for caller. The custody account pulls amount from
// caller, so caller must have approved it on the ledger.
func (s *StakingEngine) Stake(ctx context.Context, caller types.Address, amount types.Amount, tier staking.Tier) (*staking.Position, error) {
	if err := s.requireNotPaused(ctx); err != nil {
		return nil, err
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	if amount.LessThan(types.NewAmount(s.cfg.MinStake)) {
		return nil, fmt.Errorf("%w: %s < %d", ErrBelowMinimum, amount, s.cfg.MinStake)
	}

	p, err := s.stake(ctx, caller.Normalize(), amount, tier)
	if err != nil {
		return nil, err
	}

	s.logger.Info("stake created",
		"position_id", p.ID.String(),
		"account", p.Account,
		"amount", p.Amount.String(),
		"tier", p.Tier,
	)
	s.plugins.EmitStakeCreated(ctx, &plugin.StakeCreated{
		PositionID:   p.ID,
		Account:      p.Account,
		Amount:       p.Amount,
		Tier:         p.Tier,
		LockDuration: p.LockDuration,
		At:           p.Start,
	})
	return p, nil
}

func (s *StakingEngine) stake(ctx context.Context, account types.Address, amount types.Amount, tier staking.Tier) (*staking.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.opening[account]; ok {
		return nil, ErrAlreadyActive
	}
	if _, err := s.activePosition(ctx, account); err == nil {
		return nil, ErrAlreadyActive
	} else if !errors.Is(err, ErrNotActive) {
		return nil, err
	}

	bal, err := s.ledger.BalanceOf(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("custody/staking: balance of %s: %w", account, err)
	}
	if bal.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, stake %s", ErrInsufficientCallerBalance, bal, amount)
	}

	// The position exists only once the principal is in custody.
	s.opening[account] = struct{}{}
	defer delete(s.opening, account)
	if err := s.collect(ctx, account, amount); err != nil {
		return nil, err
	}

	totals, err := s.loadTotals(ctx)
	if err != nil {
		return nil, s.refund(ctx, account, amount, err)
	}

	now := s.now()
	p := &staking.Position{
		Entity:         types.NewEntityAt(s.clock.Now()),
		ID:             id.NewPositionID(),
		Account:        account,
		Amount:         amount,
		Tier:           tier,
		LockDuration:   tier.LockDuration(),
		Start:          now,
		LastCheckpoint: now,
		Claimed:        types.ZeroAmount(),
		Active:         true,
	}
	totals.TotalStaked = totals.TotalStaked.Add(amount)
	totals.StakedByTier[tier] = totals.StakedByTier[tier].Add(amount)
	totals.ActivePositions++
	if err := s.store.InsertPosition(ctx, p, totals); err != nil {
		return nil, s.refund(ctx, account, amount, err)
	}
	return p, nil
}

// ClaimRewards pays a flexible position's accrued rewards and moves its
// checkpoint to now.
func (s *StakingEngine) ClaimRewards(ctx context.Context, caller types.Address) (types.Amount, error) {
	if err := s.requireNotPaused(ctx); err != nil {
		return types.Amount{}, err
	}

	evt, err := s.claim(ctx, caller.Normalize())
	if err != nil {
		return types.Amount{}, err
	}

	s.logger.Info("rewards claimed",
		"position_id", evt.PositionID.String(),
		"account", evt.Account,
		"amount", evt.Amount.String(),
	)
	s.plugins.EmitRewardsClaimed(ctx, evt)
	return evt.Amount, nil
}

func (s *StakingEngine) claim(ctx context.Context, account types.Address) (*plugin.RewardsClaimed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activePosition(ctx, account)
	if err != nil {
		return nil, err
	}
	if p.Tier != staking.TierFlexible {
		return nil, fmt.Errorf("%w: claim is flexible only, position is %s", ErrWrongTier, p.Tier)
	}
	totals, err := s.loadTotals(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reward := p.Rewards(now, totals.APY[p.Tier])
	if reward.IsZero() {
		return nil, ErrNothingToClaim
	}
	surplus, err := s.surplus(ctx, totals)
	if err != nil {
		return nil, err
	}
	if surplus.LessThan(reward) {
		return nil, fmt.Errorf("%w: surplus %s, reward %s", ErrInsufficientFunds, surplus.ClampZero(), reward)
	}

	prevCheckpoint := p.LastCheckpoint
	p.LastCheckpoint = now
	p.Claimed = p.Claimed.Add(reward)
	p.Touch(s.clock.Now())
	totals.ClaimedRewards = totals.ClaimedRewards.Add(reward)
	if err := s.store.UpdatePosition(ctx, p, totals); err != nil {
		return nil, err
	}

	err = s.payOut(ctx, account, reward, func(ctx context.Context) error {
		return s.undoPayout(ctx, p.ID, reward, prevCheckpoint, now, false)
	})
	if err != nil {
		return nil, err
	}

	return &plugin.RewardsClaimed{
		PositionID: p.ID,
		Account:    account,
		Amount:     reward,
		At:         now,
	}, nil
}

// Unstake closes caller's position, paying principal plus final rewards in
// one transfer. Locked tiers must have reached their unlock time.
func (s *StakingEngine) Unstake(ctx context.Context, caller types.Address) (*plugin.StakeWithdrawn, error) {
	if err := s.requireNotPaused(ctx); err != nil {
		return nil, err
	}

	evt, err := s.unstake(ctx, caller.Normalize())
	if err != nil {
		return nil, err
	}

	s.logger.Info("stake withdrawn",
		"position_id", evt.PositionID.String(),
		"account", evt.Account,
		"principal", evt.Principal.String(),
		"rewards", evt.Rewards.String(),
	)
	s.plugins.EmitStakeWithdrawn(ctx, evt)
	return evt, nil
}

func (s *StakingEngine) unstake(ctx context.Context, account types.Address) (*plugin.StakeWithdrawn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activePosition(ctx, account)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if p.Tier.IsLocked() && !p.Unlocked(now) {
		return nil, fmt.Errorf("%w: unlocks at %d", ErrStillLocked, p.UnlocksAt())
	}
	totals, err := s.loadTotals(ctx)
	if err != nil {
		return nil, err
	}

	reward := p.Rewards(now, totals.APY[p.Tier])
	if reward.IsPositive() {
		surplus, err := s.surplus(ctx, totals)
		if err != nil {
			return nil, err
		}
		if surplus.LessThan(reward) {
			return nil, fmt.Errorf("%w: surplus %s, reward %s", ErrInsufficientFunds, surplus.ClampZero(), reward)
		}
	}

	prevCheckpoint := p.LastCheckpoint
	s.closePosition(p, &totals, now, staking.CloseUnstaked)
	p.Claimed = p.Claimed.Add(reward)
	totals.ClaimedRewards = totals.ClaimedRewards.Add(reward)
	if err := s.store.UpdatePosition(ctx, p, totals); err != nil {
		return nil, err
	}

	err = s.payOut(ctx, account, p.Amount.Add(reward), func(ctx context.Context) error {
		return s.undoPayout(ctx, p.ID, reward, prevCheckpoint, now, true)
	})
	if err != nil {
		return nil, err
	}

	return &plugin.StakeWithdrawn{
		PositionID: p.ID,
		Account:    account,
		Principal:  p.Amount,
		Rewards:    reward,
		At:         now,
	}, nil
}

// EmergencyWithdraw closes a flexible position and returns principal only.
// Accrued rewards are forfeited.
func (s *StakingEngine) EmergencyWithdraw(ctx context.Context, caller types.Address) (*plugin.StakeEmergencyWithdrawn, error) {
	if err := s.requireNotPaused(ctx); err != nil {
		return nil, err
	}

	evt, err := s.emergencyWithdraw(ctx, caller.Normalize())
	if err != nil {
		return nil, err
	}

	s.logger.Warn("stake emergency withdrawn",
		"position_id", evt.PositionID.String(),
		"account", evt.Account,
		"principal", evt.Principal.String(),
		"forfeited", evt.Forfeited.String(),
	)
	s.plugins.EmitStakeWithdrawn(ctx, &plugin.StakeWithdrawn{
		PositionID: evt.PositionID,
		Account:    evt.Account,
		Principal:  evt.Principal,
		Rewards:    types.ZeroAmount(),
		At:         evt.At,
	})
	s.plugins.EmitStakeEmergencyWithdrawn(ctx, evt)
	return evt, nil
}

func (s *StakingEngine) emergencyWithdraw(ctx context.Context, account types.Address) (*plugin.StakeEmergencyWithdrawn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activePosition(ctx, account)
	if err != nil {
		return nil, err
	}
	if p.Tier != staking.TierFlexible {
		return nil, fmt.Errorf("%w: emergency withdraw is flexible only, position is %s", ErrWrongTier, p.Tier)
	}
	totals, err := s.loadTotals(ctx)
	if err != nil {
		return nil, err
	}
	avail, err := s.available(ctx)
	if err != nil {
		return nil, err
	}
	if avail.LessThan(p.Amount) {
		return nil, fmt.Errorf("%w: custody holds %s, principal %s", ErrInsufficientFunds, avail.ClampZero(), p.Amount)
	}

	now := s.now()
	forfeited := p.Rewards(now, totals.APY[p.Tier])
	prevCheckpoint := p.LastCheckpoint
	s.closePosition(p, &totals, now, staking.CloseEmergency)
	if err := s.store.UpdatePosition(ctx, p, totals); err != nil {
		return nil, err
	}

	err = s.payOut(ctx, account, p.Amount, func(ctx context.Context) error {
		return s.undoPayout(ctx, p.ID, types.ZeroAmount(), prevCheckpoint, now, true)
	})
	if err != nil {
		return nil, err
	}

	return &plugin.StakeEmergencyWithdrawn{
		PositionID: p.ID,
		Account:    account,
		Principal:  p.Amount,
		Forfeited:  forfeited,
		At:         now,
	}, nil
}

// closePosition marks p closed at now and removes its principal from totals.
func (s *StakingEngine) closePosition(p *staking.Position, totals *staking.Totals, now int64, reason staking.CloseReason) {
	p.Active = false
	p.ClosedAt = now
	p.CloseReason = reason
	p.LastCheckpoint = now
	p.Touch(s.clock.Now())
	totals.TotalStaked = totals.TotalStaked.Sub(p.Amount)
	totals.StakedByTier[p.Tier] = totals.StakedByTier[p.Tier].Sub(p.Amount)
	totals.ActivePositions--
}

// undoPayout reverses a claim, unstake or emergency exit whose transfer
// failed. reopen restores a closed position. committed is the checkpoint the
// operation wrote.
//
// The unpaid reward is always taken back out of the claimed counters. The
// checkpoint and the open state are restored only if nothing touched the
// position while the transfer was in flight; otherwise ErrChangedInFlight is
// returned and the position keeps its current state.
func (s *StakingEngine) undoPayout(ctx context.Context, positionID id.PositionID, reward types.Amount, checkpoint, committed int64, reopen bool) error {
	p, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	totals, err := s.loadTotals(ctx)
	if err != nil {
		return err
	}

	changed := p.Active == reopen || p.LastCheckpoint != committed
	if !changed && reopen {
		if _, err := s.activePosition(ctx, p.Account); err == nil {
			changed = true
		} else if !errors.Is(err, ErrNotActive) {
			return err
		}
	}

	p.Claimed = p.Claimed.Sub(reward)
	totals.ClaimedRewards = totals.ClaimedRewards.Sub(reward)
	if !changed {
		p.LastCheckpoint = checkpoint
		if reopen {
			p.Active = true
			p.ClosedAt = 0
			p.CloseReason = staking.CloseNone
			totals.TotalStaked = totals.TotalStaked.Add(p.Amount)
			totals.StakedByTier[p.Tier] = totals.StakedByTier[p.Tier].Add(p.Amount)
			totals.ActivePositions++
		}
	}
	p.Touch(s.clock.Now())
	if err := s.store.UpdatePosition(ctx, p, totals); err != nil {
		return err
	}
	if changed {
		return fmt.Errorf("%w: position %s", ErrChangedInFlight, positionID)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Administration
// ──────────────────────────────────────────────────

// UpdateAPY sets a tier's rate. Open positions accrue at the new rate from
// their last checkpoint.
func (s *StakingEngine) UpdateAPY(ctx context.Context, caller types.Address, tier staking.Tier, apy int64) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if !tier.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	if apy < 0 {
		return ValidationError{Field: "apy", Message: "must not be negative"}
	}
	if apy > s.cfg.MaxAPY {
		return fmt.Errorf("%w: %d > %d", ErrAPYTooHigh, apy, s.cfg.MaxAPY)
	}

	s.mu.Lock()
	totals, err := s.loadTotals(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	old := totals.APY[tier]
	totals.APY[tier] = apy
	err = s.store.SaveStakingTotals(ctx, totals)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("apy updated", "tier", tier, "old", old, "new", apy)
	s.plugins.EmitAPYUpdated(ctx, &plugin.APYUpdated{
		Tier:   tier,
		OldAPY: old,
		NewAPY: apy,
		At:     s.now(),
	})
	return nil
}

// DistributeRewards draws amount from the reward reserve into the
// distributed counter. No tokens move; the reserve is bookkeeping over the
// custody surplus.
func (s *StakingEngine) DistributeRewards(ctx context.Context, caller types.Address, amount types.Amount) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrZeroAmount
	}

	s.mu.Lock()
	totals, err := s.loadTotals(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if totals.RewardReserve.LessThan(amount) {
		s.mu.Unlock()
		return fmt.Errorf("%w: reserve %s, requested %s", ErrInsufficientReserve, totals.RewardReserve, amount)
	}
	totals.RewardReserve = totals.RewardReserve.Sub(amount)
	totals.DistributedRewards = totals.DistributedRewards.Add(amount)
	err = s.store.SaveStakingTotals(ctx, totals)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("rewards distributed", "amount", amount.String(), "reserve", totals.RewardReserve.String())
	s.plugins.EmitRewardsDistributed(ctx, &plugin.RewardsDistributed{
		Amount:       amount,
		ReserveAfter: totals.RewardReserve,
		At:           s.now(),
	})
	return nil
}

// AddRewardsReserve pulls amount from caller into custody and credits the
// reward reserve. Caller must have approved the custody account.
func (s *StakingEngine) AddRewardsReserve(ctx context.Context, caller types.Address, amount types.Amount) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrZeroAmount
	}

	evt, err := s.addReserve(ctx, caller.Normalize(), amount)
	if err != nil {
		return err
	}

	s.logger.Info("rewards reserve added", "from", evt.From, "amount", amount.String())
	s.plugins.EmitRewardsReserveAdded(ctx, evt)
	return nil
}

func (s *StakingEngine) addReserve(ctx context.Context, from types.Address, amount types.Amount) (*plugin.RewardsReserveAdded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.collect(ctx, from, amount); err != nil {
		return nil, err
	}

	totals, err := s.loadTotals(ctx)
	if err != nil {
		return nil, s.refund(ctx, from, amount, err)
	}
	totals.RewardReserve = totals.RewardReserve.Add(amount)
	if err := s.store.SaveStakingTotals(ctx, totals); err != nil {
		return nil, s.refund(ctx, from, amount, err)
	}

	return &plugin.RewardsReserveAdded{
		From:         from,
		Amount:       amount,
		ReserveAfter: totals.RewardReserve,
		At:           s.now(),
	}, nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// CalculateRewards returns what account's active position has accrued at
// now. Zero when there is no active position.
func (s *StakingEngine) CalculateRewards(ctx context.Context, account types.Address, now int64) (types.Amount, error) {
	p, err := s.activePosition(ctx, account.Normalize())
	if errors.Is(err, ErrNotActive) {
		return types.ZeroAmount(), nil
	}
	if err != nil {
		return types.Amount{}, err
	}
	totals, err := s.loadTotals(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return p.Rewards(now, totals.APY[p.Tier]), nil
}

// PendingRewards is CalculateRewards at the engine clock's now.
func (s *StakingEngine) PendingRewards(ctx context.Context, account types.Address) (types.Amount, error) {
	return s.CalculateRewards(ctx, account, s.now())
}

// Position returns account's active position.
func (s *StakingEngine) Position(ctx context.Context, account types.Address) (*staking.Position, error) {
	return s.activePosition(ctx, account.Normalize())
}

// Positions lists account's positions, newest first, closed ones included
// unless opts.ActiveOnly is set.
func (s *StakingEngine) Positions(ctx context.Context, account types.Address, opts staking.ListOpts) ([]*staking.Position, error) {
	return s.store.ListPositions(ctx, account.Normalize(), opts)
}

// Totals returns the staking counters.
func (s *StakingEngine) Totals(ctx context.Context) (staking.Totals, error) {
	return s.loadTotals(ctx)
}

// APY returns a tier's current rate.
func (s *StakingEngine) APY(ctx context.Context, tier staking.Tier) (int64, error) {
	if !tier.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	totals, err := s.loadTotals(ctx)
	if err != nil {
		return 0, err
	}
	return totals.APY[tier], nil
}
