// Package observability provides a metrics extension for Custody that records
// engine signal counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                    = (*MetricsExtension)(nil)
	_ plugin.OnInit                    = (*MetricsExtension)(nil)
	_ plugin.OnScheduleCreated         = (*MetricsExtension)(nil)
	_ plugin.OnTokensReleased          = (*MetricsExtension)(nil)
	_ plugin.OnScheduleRevoked         = (*MetricsExtension)(nil)
	_ plugin.OnStakeCreated            = (*MetricsExtension)(nil)
	_ plugin.OnStakeWithdrawn          = (*MetricsExtension)(nil)
	_ plugin.OnRewardsClaimed          = (*MetricsExtension)(nil)
	_ plugin.OnStakeEmergencyWithdrawn = (*MetricsExtension)(nil)
	_ plugin.OnAPYUpdated              = (*MetricsExtension)(nil)
	_ plugin.OnRewardsDistributed      = (*MetricsExtension)(nil)
	_ plugin.OnRewardsReserveAdded     = (*MetricsExtension)(nil)
	_ plugin.OnCategoryCreated         = (*MetricsExtension)(nil)
	_ plugin.OnTokensDistributed       = (*MetricsExtension)(nil)
	_ plugin.OnBatchCompleted          = (*MetricsExtension)(nil)
	_ plugin.OnCategoryStatusChanged   = (*MetricsExtension)(nil)
	_ plugin.OnUnusedWithdrawn         = (*MetricsExtension)(nil)
	_ plugin.OnEmergencySwept          = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records custody signal metrics.
// Register it as a Custody plugin to track token movements automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Vesting metrics
	SchedulesCreated Counter
	TokensReleased   Counter
	ReleaseAmount    Histogram
	SchedulesRevoked Counter

	// Staking metrics
	StakesCreated        Counter
	StakeAmount          Histogram
	StakesWithdrawn      Counter
	RewardsClaimed       Counter
	RewardsPaid          Histogram
	EmergencyWithdrawals Counter
	APYUpdates           Counter
	ReserveDrawdowns     Counter
	ReserveTopUps        Counter

	// Distribution metrics
	CategoriesCreated Counter
	Payouts           Counter
	PayoutAmount      Histogram
	BatchesCompleted  Counter
	BatchSize         Histogram
	CategoriesPaused  Counter
	CategoriesResumed Counter
	UnusedWithdrawals Counter
	EmergencySweeps   Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory for a Prometheus registry.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Vesting metrics
		SchedulesCreated: factory.Counter("custody.vesting.schedules.created"),
		TokensReleased:   factory.Counter("custody.vesting.releases"),
		ReleaseAmount:    factory.Histogram("custody.vesting.release.amount"),
		SchedulesRevoked: factory.Counter("custody.vesting.schedules.revoked"),

		// Staking metrics
		StakesCreated:        factory.Counter("custody.staking.stakes.created"),
		StakeAmount:          factory.Histogram("custody.staking.stake.amount"),
		StakesWithdrawn:      factory.Counter("custody.staking.stakes.withdrawn"),
		RewardsClaimed:       factory.Counter("custody.staking.rewards.claimed"),
		RewardsPaid:          factory.Histogram("custody.staking.rewards.amount"),
		EmergencyWithdrawals: factory.Counter("custody.staking.emergency_withdrawals"),
		APYUpdates:           factory.Counter("custody.staking.apy.updates"),
		ReserveDrawdowns:     factory.Counter("custody.staking.reserve.drawdowns"),
		ReserveTopUps:        factory.Counter("custody.staking.reserve.topups"),

		// Distribution metrics
		CategoriesCreated: factory.Counter("custody.distribution.categories.created"),
		Payouts:           factory.Counter("custody.distribution.payouts"),
		PayoutAmount:      factory.Histogram("custody.distribution.payout.amount"),
		BatchesCompleted:  factory.Counter("custody.distribution.batches.completed"),
		BatchSize:         factory.Histogram("custody.distribution.batch.size"),
		CategoriesPaused:  factory.Counter("custody.distribution.categories.paused"),
		CategoriesResumed: factory.Counter("custody.distribution.categories.resumed"),
		UnusedWithdrawals: factory.Counter("custody.distribution.unused_withdrawals"),
		EmergencySweeps:   factory.Counter("custody.emergency.sweeps"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Vesting hooks
// ──────────────────────────────────────────────────

// OnScheduleCreated implements plugin.OnScheduleCreated.
func (m *MetricsExtension) OnScheduleCreated(_ context.Context, _ *plugin.ScheduleCreated) error {
	m.SchedulesCreated.Inc()
	return nil
}

// OnTokensReleased implements plugin.OnTokensReleased.
func (m *MetricsExtension) OnTokensReleased(_ context.Context, evt *plugin.TokensReleased) error {
	m.TokensReleased.Inc()
	m.ReleaseAmount.Observe(units(evt.Amount))
	return nil
}

// OnScheduleRevoked implements plugin.OnScheduleRevoked.
func (m *MetricsExtension) OnScheduleRevoked(_ context.Context, _ *plugin.ScheduleRevoked) error {
	m.SchedulesRevoked.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Staking hooks
// ──────────────────────────────────────────────────

// OnStakeCreated implements plugin.OnStakeCreated.
func (m *MetricsExtension) OnStakeCreated(_ context.Context, evt *plugin.StakeCreated) error {
	m.StakesCreated.Inc()
	m.StakeAmount.Observe(units(evt.Amount))
	return nil
}

// OnStakeWithdrawn implements plugin.OnStakeWithdrawn.
func (m *MetricsExtension) OnStakeWithdrawn(_ context.Context, evt *plugin.StakeWithdrawn) error {
	m.StakesWithdrawn.Inc()
	if evt.Rewards.IsPositive() {
		m.RewardsPaid.Observe(units(evt.Rewards))
	}
	return nil
}

// OnRewardsClaimed implements plugin.OnRewardsClaimed.
func (m *MetricsExtension) OnRewardsClaimed(_ context.Context, evt *plugin.RewardsClaimed) error {
	m.RewardsClaimed.Inc()
	m.RewardsPaid.Observe(units(evt.Amount))
	return nil
}

// OnStakeEmergencyWithdrawn implements plugin.OnStakeEmergencyWithdrawn.
func (m *MetricsExtension) OnStakeEmergencyWithdrawn(_ context.Context, _ *plugin.StakeEmergencyWithdrawn) error {
	m.EmergencyWithdrawals.Inc()
	return nil
}

// OnAPYUpdated implements plugin.OnAPYUpdated.
func (m *MetricsExtension) OnAPYUpdated(_ context.Context, _ *plugin.APYUpdated) error {
	m.APYUpdates.Inc()
	return nil
}

// OnRewardsDistributed implements plugin.OnRewardsDistributed.
func (m *MetricsExtension) OnRewardsDistributed(_ context.Context, _ *plugin.RewardsDistributed) error {
	m.ReserveDrawdowns.Inc()
	return nil
}

// OnRewardsReserveAdded implements plugin.OnRewardsReserveAdded.
func (m *MetricsExtension) OnRewardsReserveAdded(_ context.Context, _ *plugin.RewardsReserveAdded) error {
	m.ReserveTopUps.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnCategoryCreated implements plugin.OnCategoryCreated.
func (m *MetricsExtension) OnCategoryCreated(_ context.Context, _ *plugin.CategoryCreated) error {
	m.CategoriesCreated.Inc()
	return nil
}

// OnTokensDistributed implements plugin.OnTokensDistributed.
func (m *MetricsExtension) OnTokensDistributed(_ context.Context, evt *plugin.TokensDistributed) error {
	m.Payouts.Inc()
	m.PayoutAmount.Observe(units(evt.Amount))
	return nil
}

// OnBatchCompleted implements plugin.OnBatchCompleted.
func (m *MetricsExtension) OnBatchCompleted(_ context.Context, evt *plugin.BatchCompleted) error {
	m.BatchesCompleted.Inc()
	m.BatchSize.Observe(float64(evt.Recipients))
	return nil
}

// OnCategoryStatusChanged implements plugin.OnCategoryStatusChanged.
func (m *MetricsExtension) OnCategoryStatusChanged(_ context.Context, evt *plugin.CategoryStatusChanged) error {
	if evt.Active {
		m.CategoriesResumed.Inc()
	} else {
		m.CategoriesPaused.Inc()
	}
	return nil
}

// OnUnusedWithdrawn implements plugin.OnUnusedWithdrawn.
func (m *MetricsExtension) OnUnusedWithdrawn(_ context.Context, _ *plugin.UnusedWithdrawn) error {
	m.UnusedWithdrawals.Inc()
	return nil
}

// OnEmergencySwept implements plugin.OnEmergencySwept.
func (m *MetricsExtension) OnEmergencySwept(_ context.Context, _ *plugin.EmergencySwept) error {
	m.EmergencySweeps.Inc()
	return nil
}

// units converts an amount for observation. Precision loss above 2^53 is
// acceptable for histograms.
func units(a types.Amount) float64 {
	return a.Decimal().InexactFloat64()
}
