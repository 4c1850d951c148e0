package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used to report recorder failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions restricts auditing to the given actions.
// Without it every action is audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = toSet(actions)
	}
}

// WithDisabledActions audits every action except the given ones. Applied
// after WithEnabledActions it removes from that narrower set.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = toSet(allActions())
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

func toSet(actions []string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

// allActions lists every signal the extension can audit, grouped by engine.
func allActions() []string {
	return []string{
		// vesting
		ActionScheduleCreated, ActionTokensReleased, ActionScheduleRevoked,
		// staking
		ActionStakeCreated, ActionStakeWithdrawn, ActionRewardsClaimed, ActionStakeEmergency,
		ActionAPYUpdated, ActionRewardsDistributed, ActionRewardsReserveAdded,
		// distribution
		ActionCategoryCreated, ActionTokensDistributed, ActionBatchCompleted,
		ActionCategoryPaused, ActionCategoryResumed, ActionUnusedWithdrawn, ActionEmergencySwept,
	}
}
