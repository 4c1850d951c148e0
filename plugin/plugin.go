// Package plugin provides an extensible plugin system for Custody.
// Plugins observe engine signals; they run after state is committed and
// tokens have moved, so a failing plugin never undoes an operation.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, c interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Vesting hooks
// ──────────────────────────────────────────────────

// OnScheduleCreated is called when a vesting schedule is created.
type OnScheduleCreated interface {
	Plugin
	OnScheduleCreated(ctx context.Context, evt *ScheduleCreated) error
}

// OnTokensReleased is called when vested tokens are released.
type OnTokensReleased interface {
	Plugin
	OnTokensReleased(ctx context.Context, evt *TokensReleased) error
}

// OnScheduleRevoked is called when a schedule is revoked.
type OnScheduleRevoked interface {
	Plugin
	OnScheduleRevoked(ctx context.Context, evt *ScheduleRevoked) error
}

// ──────────────────────────────────────────────────
// Staking hooks
// ──────────────────────────────────────────────────

// OnStakeCreated is called when a position opens.
type OnStakeCreated interface {
	Plugin
	OnStakeCreated(ctx context.Context, evt *StakeCreated) error
}

// OnStakeWithdrawn is called when a position is unstaked.
type OnStakeWithdrawn interface {
	Plugin
	OnStakeWithdrawn(ctx context.Context, evt *StakeWithdrawn) error
}

// OnRewardsClaimed is called when rewards are claimed.
type OnRewardsClaimed interface {
	Plugin
	OnRewardsClaimed(ctx context.Context, evt *RewardsClaimed) error
}

// OnStakeEmergencyWithdrawn is called when a position exits without rewards.
type OnStakeEmergencyWithdrawn interface {
	Plugin
	OnStakeEmergencyWithdrawn(ctx context.Context, evt *StakeEmergencyWithdrawn) error
}

// OnAPYUpdated is called when a tier's APY changes.
type OnAPYUpdated interface {
	Plugin
	OnAPYUpdated(ctx context.Context, evt *APYUpdated) error
}

// OnRewardsDistributed is called when the reward reserve is drawn down.
type OnRewardsDistributed interface {
	Plugin
	OnRewardsDistributed(ctx context.Context, evt *RewardsDistributed) error
}

// OnRewardsReserveAdded is called when the reward reserve is topped up.
type OnRewardsReserveAdded interface {
	Plugin
	OnRewardsReserveAdded(ctx context.Context, evt *RewardsReserveAdded) error
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnCategoryCreated is called when a category is created.
type OnCategoryCreated interface {
	Plugin
	OnCategoryCreated(ctx context.Context, evt *CategoryCreated) error
}

// OnTokensDistributed is called for each recipient paid.
type OnTokensDistributed interface {
	Plugin
	OnTokensDistributed(ctx context.Context, evt *TokensDistributed) error
}

// OnBatchCompleted is called after a batch fully settles.
type OnBatchCompleted interface {
	Plugin
	OnBatchCompleted(ctx context.Context, evt *BatchCompleted) error
}

// OnCategoryStatusChanged is called when a category is paused or resumed.
type OnCategoryStatusChanged interface {
	Plugin
	OnCategoryStatusChanged(ctx context.Context, evt *CategoryStatusChanged) error
}

// OnUnusedWithdrawn is called when unallocated tokens are withdrawn.
type OnUnusedWithdrawn interface {
	Plugin
	OnUnusedWithdrawn(ctx context.Context, evt *UnusedWithdrawn) error
}

// OnEmergencySwept is called after an emergency sweep.
type OnEmergencySwept interface {
	Plugin
	OnEmergencySwept(ctx context.Context, evt *EmergencySwept) error
}
