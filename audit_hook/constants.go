package audithook

import "github.com/xraph/custody/plugin"

// Action constants for audit events. They share the plugin signal names.
const (
	// Vesting actions
	ActionScheduleCreated = plugin.SignalScheduleCreated
	ActionTokensReleased  = plugin.SignalTokensReleased
	ActionScheduleRevoked = plugin.SignalScheduleRevoked

	// Staking actions
	ActionStakeCreated        = plugin.SignalStakeCreated
	ActionStakeWithdrawn      = plugin.SignalStakeWithdrawn
	ActionRewardsClaimed      = plugin.SignalRewardsClaimed
	ActionStakeEmergency      = plugin.SignalStakeEmergency
	ActionAPYUpdated          = plugin.SignalAPYUpdated
	ActionRewardsDistributed  = plugin.SignalRewardsDistributed
	ActionRewardsReserveAdded = plugin.SignalRewardsReserveAdded

	// Distribution actions
	ActionCategoryCreated   = plugin.SignalCategoryCreated
	ActionTokensDistributed = plugin.SignalTokensDistributed
	ActionBatchCompleted    = plugin.SignalBatchCompleted
	ActionCategoryPaused    = plugin.SignalCategoryPaused
	ActionCategoryResumed   = plugin.SignalCategoryResumed
	ActionUnusedWithdrawn   = plugin.SignalUnusedWithdrawn
	ActionEmergencySwept    = plugin.SignalEmergencySwept
)

// Resource constants for audit events.
const (
	ResourceSchedule = "schedule"
	ResourcePosition = "position"
	ResourceReserve  = "reward_reserve"
	ResourceCategory = "category"
	ResourcePayout   = "payout"
	ResourceBatch    = "batch"
	ResourceAccount  = "account"
)

// Category constants for audit events.
const (
	CategoryVesting      = "vesting"
	CategoryStaking      = "staking"
	CategoryDistribution = "distribution"
	CategoryAdmin        = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
