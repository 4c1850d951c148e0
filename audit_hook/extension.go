// Package audithook bridges Custody engine signals to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import a
// concrete audit store. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/custody/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                    = (*Extension)(nil)
	_ plugin.OnScheduleCreated         = (*Extension)(nil)
	_ plugin.OnTokensReleased          = (*Extension)(nil)
	_ plugin.OnScheduleRevoked         = (*Extension)(nil)
	_ plugin.OnStakeCreated            = (*Extension)(nil)
	_ plugin.OnStakeWithdrawn          = (*Extension)(nil)
	_ plugin.OnRewardsClaimed          = (*Extension)(nil)
	_ plugin.OnStakeEmergencyWithdrawn = (*Extension)(nil)
	_ plugin.OnAPYUpdated              = (*Extension)(nil)
	_ plugin.OnRewardsDistributed      = (*Extension)(nil)
	_ plugin.OnRewardsReserveAdded     = (*Extension)(nil)
	_ plugin.OnCategoryCreated         = (*Extension)(nil)
	_ plugin.OnTokensDistributed       = (*Extension)(nil)
	_ plugin.OnBatchCompleted          = (*Extension)(nil)
	_ plugin.OnCategoryStatusChanged   = (*Extension)(nil)
	_ plugin.OnUnusedWithdrawn         = (*Extension)(nil)
	_ plugin.OnEmergencySwept          = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Custody signals to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Vesting hooks
// ──────────────────────────────────────────────────

// OnScheduleCreated implements plugin.OnScheduleCreated.
func (e *Extension) OnScheduleCreated(ctx context.Context, evt *plugin.ScheduleCreated) error {
	return e.record(ctx, ActionScheduleCreated, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, evt.ScheduleID.String(), CategoryVesting, nil,
		"beneficiary", evt.Beneficiary.String(),
		"kind", string(evt.Kind),
		"amount", evt.Amount.String(),
		"start", evt.Start,
		"cliff", evt.Cliff,
		"duration", evt.Duration,
	)
}

// OnTokensReleased implements plugin.OnTokensReleased.
func (e *Extension) OnTokensReleased(ctx context.Context, evt *plugin.TokensReleased) error {
	return e.record(ctx, ActionTokensReleased, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, evt.ScheduleID.String(), CategoryVesting, nil,
		"beneficiary", evt.Beneficiary.String(),
		"amount", evt.Amount.String(),
	)
}

// OnScheduleRevoked implements plugin.OnScheduleRevoked.
func (e *Extension) OnScheduleRevoked(ctx context.Context, evt *plugin.ScheduleRevoked) error {
	return e.record(ctx, ActionScheduleRevoked, SeverityWarning, OutcomeSuccess,
		ResourceSchedule, evt.ScheduleID.String(), CategoryAdmin, nil,
		"beneficiary", evt.Beneficiary.String(),
		"released", evt.Released.String(),
		"reclaimed", evt.Reclaimed.String(),
	)
}

// ──────────────────────────────────────────────────
// Staking hooks
// ──────────────────────────────────────────────────

// OnStakeCreated implements plugin.OnStakeCreated.
func (e *Extension) OnStakeCreated(ctx context.Context, evt *plugin.StakeCreated) error {
	return e.record(ctx, ActionStakeCreated, SeverityInfo, OutcomeSuccess,
		ResourcePosition, evt.PositionID.String(), CategoryStaking, nil,
		"account", evt.Account.String(),
		"amount", evt.Amount.String(),
		"tier", string(evt.Tier),
		"lock_duration", evt.LockDuration,
	)
}

// OnStakeWithdrawn implements plugin.OnStakeWithdrawn.
func (e *Extension) OnStakeWithdrawn(ctx context.Context, evt *plugin.StakeWithdrawn) error {
	return e.record(ctx, ActionStakeWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourcePosition, evt.PositionID.String(), CategoryStaking, nil,
		"account", evt.Account.String(),
		"principal", evt.Principal.String(),
		"rewards", evt.Rewards.String(),
	)
}

// OnRewardsClaimed implements plugin.OnRewardsClaimed.
func (e *Extension) OnRewardsClaimed(ctx context.Context, evt *plugin.RewardsClaimed) error {
	return e.record(ctx, ActionRewardsClaimed, SeverityInfo, OutcomeSuccess,
		ResourcePosition, evt.PositionID.String(), CategoryStaking, nil,
		"account", evt.Account.String(),
		"amount", evt.Amount.String(),
	)
}

// OnStakeEmergencyWithdrawn implements plugin.OnStakeEmergencyWithdrawn.
func (e *Extension) OnStakeEmergencyWithdrawn(ctx context.Context, evt *plugin.StakeEmergencyWithdrawn) error {
	return e.record(ctx, ActionStakeEmergency, SeverityWarning, OutcomeSuccess,
		ResourcePosition, evt.PositionID.String(), CategoryStaking, nil,
		"account", evt.Account.String(),
		"principal", evt.Principal.String(),
		"forfeited", evt.Forfeited.String(),
	)
}

// OnAPYUpdated implements plugin.OnAPYUpdated.
func (e *Extension) OnAPYUpdated(ctx context.Context, evt *plugin.APYUpdated) error {
	return e.record(ctx, ActionAPYUpdated, SeverityInfo, OutcomeSuccess,
		ResourceReserve, string(evt.Tier), CategoryAdmin, nil,
		"tier", string(evt.Tier),
		"old_apy", evt.OldAPY,
		"new_apy", evt.NewAPY,
	)
}

// OnRewardsDistributed implements plugin.OnRewardsDistributed.
func (e *Extension) OnRewardsDistributed(ctx context.Context, evt *plugin.RewardsDistributed) error {
	return e.record(ctx, ActionRewardsDistributed, SeverityInfo, OutcomeSuccess,
		ResourceReserve, "", CategoryAdmin, nil,
		"amount", evt.Amount.String(),
		"reserve_after", evt.ReserveAfter.String(),
	)
}

// OnRewardsReserveAdded implements plugin.OnRewardsReserveAdded.
func (e *Extension) OnRewardsReserveAdded(ctx context.Context, evt *plugin.RewardsReserveAdded) error {
	return e.record(ctx, ActionRewardsReserveAdded, SeverityInfo, OutcomeSuccess,
		ResourceReserve, "", CategoryAdmin, nil,
		"from", evt.From.String(),
		"amount", evt.Amount.String(),
		"reserve_after", evt.ReserveAfter.String(),
	)
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnCategoryCreated implements plugin.OnCategoryCreated.
func (e *Extension) OnCategoryCreated(ctx context.Context, evt *plugin.CategoryCreated) error {
	return e.record(ctx, ActionCategoryCreated, SeverityInfo, OutcomeSuccess,
		ResourceCategory, evt.Name, CategoryAdmin, nil,
		"category_id", evt.CategoryID.String(),
		"capacity", evt.Capacity.String(),
		"recipient_cap", evt.RecipientCap,
	)
}

// OnTokensDistributed implements plugin.OnTokensDistributed.
func (e *Extension) OnTokensDistributed(ctx context.Context, evt *plugin.TokensDistributed) error {
	kv := []any{
		"category", evt.Category,
		"recipient", evt.Recipient.String(),
		"amount", evt.Amount.String(),
	}
	if !evt.BatchID.IsNil() {
		kv = append(kv, "batch_id", evt.BatchID.String())
	}
	return e.record(ctx, ActionTokensDistributed, SeverityInfo, OutcomeSuccess,
		ResourcePayout, evt.PayoutID.String(), CategoryDistribution, nil,
		kv...,
	)
}

// OnBatchCompleted implements plugin.OnBatchCompleted.
func (e *Extension) OnBatchCompleted(ctx context.Context, evt *plugin.BatchCompleted) error {
	return e.record(ctx, ActionBatchCompleted, SeverityInfo, OutcomeSuccess,
		ResourceBatch, evt.BatchID.String(), CategoryDistribution, nil,
		"category", evt.Category,
		"recipients", evt.Recipients,
		"total", evt.Total.String(),
	)
}

// OnCategoryStatusChanged implements plugin.OnCategoryStatusChanged.
func (e *Extension) OnCategoryStatusChanged(ctx context.Context, evt *plugin.CategoryStatusChanged) error {
	action := ActionCategoryPaused
	if evt.Active {
		action = ActionCategoryResumed
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceCategory, evt.Name, CategoryAdmin, nil,
		"active", evt.Active,
	)
}

// OnUnusedWithdrawn implements plugin.OnUnusedWithdrawn.
func (e *Extension) OnUnusedWithdrawn(ctx context.Context, evt *plugin.UnusedWithdrawn) error {
	return e.record(ctx, ActionUnusedWithdrawn, SeverityWarning, OutcomeSuccess,
		ResourceAccount, evt.To.String(), CategoryAdmin, nil,
		"to", evt.To.String(),
		"amount", evt.Amount.String(),
	)
}

// OnEmergencySwept implements plugin.OnEmergencySwept.
func (e *Extension) OnEmergencySwept(ctx context.Context, evt *plugin.EmergencySwept) error {
	return e.record(ctx, ActionEmergencySwept, SeverityCritical, OutcomeSuccess,
		ResourceAccount, evt.Account.String(), CategoryAdmin, nil,
		"account", evt.Account.String(),
		"to", evt.To.String(),
		"amount", evt.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
