package plugin

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

// Signal names, one per event type. Audit and metrics plugins key on these.
const (
	SignalScheduleCreated     = "schedule.created"
	SignalTokensReleased      = "tokens.released"
	SignalScheduleRevoked     = "schedule.revoked"
	SignalStakeCreated        = "stake.created"
	SignalStakeWithdrawn      = "stake.withdrawn"
	SignalRewardsClaimed      = "rewards.claimed"
	SignalStakeEmergency      = "stake.emergency_withdrawn"
	SignalAPYUpdated          = "apy.updated"
	SignalRewardsDistributed  = "rewards.distributed"
	SignalRewardsReserveAdded = "rewards.reserve_added"
	SignalCategoryCreated     = "category.created"
	SignalTokensDistributed   = "tokens.distributed"
	SignalBatchCompleted      = "batch.completed"
	SignalCategoryPaused      = "category.paused"
	SignalCategoryResumed     = "category.resumed"
	SignalUnusedWithdrawn     = "unused.withdrawn"
	SignalEmergencySwept      = "emergency.swept"
)

// ScheduleCreated is emitted after a vesting schedule is funded and stored.
type ScheduleCreated struct {
	ScheduleID  id.ScheduleID
	Beneficiary types.Address
	Kind        vesting.Kind
	Amount      types.Amount
	Start       int64
	Cliff       int64
	Duration    int64
	At          int64
}

// TokensReleased is emitted after vested tokens reach the beneficiary.
type TokensReleased struct {
	ScheduleID  id.ScheduleID
	Beneficiary types.Address
	Amount      types.Amount
	At          int64
}

// ScheduleRevoked is emitted after a revocation. Released is the vested
// remainder paid out as part of the revocation; Reclaimed is the unvested
// part that returned to the custody account's free balance.
type ScheduleRevoked struct {
	ScheduleID  id.ScheduleID
	Beneficiary types.Address
	Released    types.Amount
	Reclaimed   types.Amount
	At          int64
}

// StakeCreated is emitted after principal is collected into custody.
type StakeCreated struct {
	PositionID   id.PositionID
	Account      types.Address
	Amount       types.Amount
	Tier         staking.Tier
	LockDuration int64
	At           int64
}

// StakeWithdrawn is emitted after a normal unstake pays principal and rewards.
type StakeWithdrawn struct {
	PositionID id.PositionID
	Account    types.Address
	Principal  types.Amount
	Rewards    types.Amount
	At         int64
}

// RewardsClaimed is emitted after a flexible position claims its rewards.
type RewardsClaimed struct {
	PositionID id.PositionID
	Account    types.Address
	Amount     types.Amount
	At         int64
}

// StakeEmergencyWithdrawn is emitted when a flexible position exits with
// principal only. Forfeited is the accrued reward given up.
type StakeEmergencyWithdrawn struct {
	PositionID id.PositionID
	Account    types.Address
	Principal  types.Amount
	Forfeited  types.Amount
	At         int64
}

// APYUpdated is emitted after an admin changes a tier's rate.
type APYUpdated struct {
	Tier   staking.Tier
	OldAPY int64
	NewAPY int64
	At     int64
}

// RewardsDistributed is emitted when the reward reserve is drawn down.
type RewardsDistributed struct {
	Amount       types.Amount
	ReserveAfter types.Amount
	At           int64
}

// RewardsReserveAdded is emitted after reserve funds are collected.
type RewardsReserveAdded struct {
	From         types.Address
	Amount       types.Amount
	ReserveAfter types.Amount
	At           int64
}

// CategoryCreated is emitted after a distribution category is opened.
type CategoryCreated struct {
	CategoryID   id.CategoryID
	Name         string
	Capacity     types.Amount
	RecipientCap int64
	At           int64
}

// TokensDistributed is emitted once per recipient paid, including each
// recipient of a batch.
type TokensDistributed struct {
	PayoutID  id.PayoutID
	BatchID   id.BatchID
	Category  string
	Recipient types.Address
	Amount    types.Amount
	At        int64
}

// BatchCompleted is emitted after every transfer of a batch succeeded.
type BatchCompleted struct {
	BatchID    id.BatchID
	Category   string
	Recipients int
	Total      types.Amount
	At         int64
}

// CategoryStatusChanged is emitted when a category is paused or resumed.
type CategoryStatusChanged struct {
	Name   string
	Active bool
	At     int64
}

// UnusedWithdrawn is emitted after unallocated surplus leaves custody.
type UnusedWithdrawn struct {
	To     types.Address
	Amount types.Amount
	At     int64
}

// EmergencySwept is emitted after the break-glass sweep of a custody account.
type EmergencySwept struct {
	Account types.Address
	To      types.Address
	Amount  types.Amount
	At      int64
}
