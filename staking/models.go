// Package staking holds the staking position model and reward accrual math.
package staking

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

const (
	// SecondsPerYear is the fixed 365-day year rewards accrue over.
	SecondsPerYear int64 = 31_536_000

	// APYPrecision is the APY scale: 100 is 1%, 10000 is 100%.
	APYPrecision int64 = 10_000

	day int64 = 86_400
)

// Tier selects lock length and APY.
type Tier string

const (
	TierFlexible  Tier = "flexible"
	TierLocked3M  Tier = "locked_3m"
	TierLocked6M  Tier = "locked_6m"
	TierLocked12M Tier = "locked_12m"
)

// Tiers lists every tier in lock order.
func Tiers() []Tier {
	return []Tier{TierFlexible, TierLocked3M, TierLocked6M, TierLocked12M}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFlexible, TierLocked3M, TierLocked6M, TierLocked12M:
		return true
	}
	return false
}

// LockDuration returns how long principal is locked, in seconds.
func (t Tier) LockDuration() int64 {
	switch t {
	case TierLocked3M:
		return 90 * day
	case TierLocked6M:
		return 180 * day
	case TierLocked12M:
		return 365 * day
	default:
		return 0
	}
}

// IsLocked reports whether the tier locks principal.
func (t Tier) IsLocked() bool { return t.LockDuration() > 0 }

// CloseReason records how a position ended.
type CloseReason string

const (
	CloseNone      CloseReason = ""
	CloseUnstaked  CloseReason = "unstaked"
	CloseEmergency CloseReason = "emergency"
)

// Position is an account's stake. At most one position per account is active;
// closed positions are kept as history.
type Position struct {
	types.Entity
	ID             id.PositionID `json:"id"`
	Account        types.Address `json:"account"`
	Amount         types.Amount  `json:"amount"`
	Tier           Tier          `json:"tier"`
	LockDuration   int64         `json:"lock_duration"`
	Start          int64         `json:"start"`
	LastCheckpoint int64         `json:"last_checkpoint"`
	Claimed        types.Amount  `json:"claimed"`
	Active         bool          `json:"active"`
	ClosedAt       int64         `json:"closed_at,omitempty"`
	CloseReason    CloseReason   `json:"close_reason,omitempty"`
}

// Rewards returns what the position has accrued since its last checkpoint at
// the given APY.
func (p *Position) Rewards(now, apy int64) types.Amount {
	if !p.Active {
		return types.ZeroAmount()
	}
	return Accrue(p.Amount, apy, now-p.LastCheckpoint)
}

// UnlocksAt returns the first time the principal may be withdrawn.
func (p *Position) UnlocksAt() int64 {
	return p.Start + p.LockDuration
}

// Unlocked reports whether the lock has elapsed at now.
func (p *Position) Unlocked(now int64) bool {
	return now >= p.UnlocksAt()
}

// Accrue computes amount * apy * elapsed / (SecondsPerYear * APYPrecision),
// truncated. Non-positive elapsed time accrues nothing.
func Accrue(amount types.Amount, apy, elapsed int64) types.Amount {
	if elapsed <= 0 || apy <= 0 {
		return types.ZeroAmount()
	}
	return amount.MulDiv(
		types.NewAmount(apy).MulInt(elapsed),
		types.NewAmount(SecondsPerYear).MulInt(APYPrecision),
	)
}

// Totals aggregates every position held by one staking custody account.
type Totals struct {
	TotalStaked        types.Amount          `json:"total_staked"`
	StakedByTier       map[Tier]types.Amount `json:"staked_by_tier"`
	ActivePositions    int64                 `json:"active_positions"`
	RewardReserve      types.Amount          `json:"reward_reserve"`
	DistributedRewards types.Amount          `json:"distributed_rewards"`
	ClaimedRewards     types.Amount          `json:"claimed_rewards"`
	APY                map[Tier]int64        `json:"apy"`
}

// NewTotals returns empty totals seeded with the given APY table.
func NewTotals(apy map[Tier]int64) Totals {
	t := Totals{
		StakedByTier: make(map[Tier]types.Amount, len(Tiers())),
		APY:          make(map[Tier]int64, len(Tiers())),
	}
	for _, tier := range Tiers() {
		t.StakedByTier[tier] = types.ZeroAmount()
		t.APY[tier] = apy[tier]
	}
	return t
}

// Clone returns a deep copy, so callers can mutate maps freely.
func (t Totals) Clone() Totals {
	c := t
	c.StakedByTier = make(map[Tier]types.Amount, len(t.StakedByTier))
	for k, v := range t.StakedByTier {
		c.StakedByTier[k] = v
	}
	c.APY = make(map[Tier]int64, len(t.APY))
	for k, v := range t.APY {
		c.APY[k] = v
	}
	return c
}
