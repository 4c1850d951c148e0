package custody_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/access"
	"github.com/xraph/custody/clock"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/store/memory"
	tokenmem "github.com/xraph/custody/token/memory"
	"github.com/xraph/custody/types"
)

const (
	t0  int64 = 1_700_000_000
	day int64 = 86_400

	admin    types.Address = "admin"
	alice    types.Address = "alice"
	bob      types.Address = "bob"
	carol    types.Address = "carol"
	treasury types.Address = "treasury"
)

type harness struct {
	ctx    context.Context
	c      *custody.Custody
	ledger *tokenmem.Ledger
	clock  *clock.Manual
	auth   *access.Static
	store  *memory.Store
	events *eventRecorder
}

func newHarness(t *testing.T, opts ...custody.Option) *harness {
	t.Helper()

	h := &harness{
		ctx:    context.Background(),
		ledger: tokenmem.New(),
		clock:  clock.NewManualUnix(t0),
		auth:   access.NewStatic(admin),
		store:  memory.New(),
		events: &eventRecorder{},
	}
	base := []custody.Option{
		custody.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		custody.WithClock(h.clock),
		custody.WithAuthorizer(h.auth),
		custody.WithPlugin(h.events),
	}

	c, err := custody.New(h.store, h.ledger, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, c.Start(h.ctx))
	t.Cleanup(func() { _ = c.Stop() })

	h.c = c
	return h
}

func (h *harness) at(sec int64) { h.clock.SetUnix(sec) }

func (h *harness) balance(t *testing.T, a types.Address) types.Amount {
	t.Helper()
	b, err := h.ledger.BalanceOf(h.ctx, a)
	require.NoError(t, err)
	return b
}

func amt(n int64) types.Amount { return types.NewAmount(n) }

func assertAmount(t *testing.T, want int64, got types.Amount, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, types.NewAmount(want).String(), got.String(), msgAndArgs...)
}

// eventRecorder counts every signal it receives.
type eventRecorder struct {
	mu      sync.Mutex
	signals map[string]int
}

func (r *eventRecorder) Name() string { return "test-recorder" }

func (r *eventRecorder) record(signal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signals == nil {
		r.signals = make(map[string]int)
	}
	r.signals[signal]++
}

func (r *eventRecorder) count(signal string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.signals[signal]
}

func (r *eventRecorder) OnScheduleCreated(context.Context, *plugin.ScheduleCreated) error {
	r.record(plugin.SignalScheduleCreated)
	return nil
}

func (r *eventRecorder) OnTokensReleased(context.Context, *plugin.TokensReleased) error {
	r.record(plugin.SignalTokensReleased)
	return nil
}

func (r *eventRecorder) OnScheduleRevoked(context.Context, *plugin.ScheduleRevoked) error {
	r.record(plugin.SignalScheduleRevoked)
	return nil
}

func (r *eventRecorder) OnStakeCreated(context.Context, *plugin.StakeCreated) error {
	r.record(plugin.SignalStakeCreated)
	return nil
}

func (r *eventRecorder) OnStakeWithdrawn(context.Context, *plugin.StakeWithdrawn) error {
	r.record(plugin.SignalStakeWithdrawn)
	return nil
}

func (r *eventRecorder) OnRewardsClaimed(context.Context, *plugin.RewardsClaimed) error {
	r.record(plugin.SignalRewardsClaimed)
	return nil
}

func (r *eventRecorder) OnStakeEmergencyWithdrawn(context.Context, *plugin.StakeEmergencyWithdrawn) error {
	r.record(plugin.SignalStakeEmergency)
	return nil
}

func (r *eventRecorder) OnAPYUpdated(context.Context, *plugin.APYUpdated) error {
	r.record(plugin.SignalAPYUpdated)
	return nil
}

func (r *eventRecorder) OnRewardsDistributed(context.Context, *plugin.RewardsDistributed) error {
	r.record(plugin.SignalRewardsDistributed)
	return nil
}

func (r *eventRecorder) OnRewardsReserveAdded(context.Context, *plugin.RewardsReserveAdded) error {
	r.record(plugin.SignalRewardsReserveAdded)
	return nil
}

func (r *eventRecorder) OnCategoryCreated(context.Context, *plugin.CategoryCreated) error {
	r.record(plugin.SignalCategoryCreated)
	return nil
}

func (r *eventRecorder) OnTokensDistributed(context.Context, *plugin.TokensDistributed) error {
	r.record(plugin.SignalTokensDistributed)
	return nil
}

func (r *eventRecorder) OnBatchCompleted(context.Context, *plugin.BatchCompleted) error {
	r.record(plugin.SignalBatchCompleted)
	return nil
}

func (r *eventRecorder) OnCategoryStatusChanged(_ context.Context, evt *plugin.CategoryStatusChanged) error {
	if evt.Active {
		r.record(plugin.SignalCategoryResumed)
	} else {
		r.record(plugin.SignalCategoryPaused)
	}
	return nil
}

func (r *eventRecorder) OnUnusedWithdrawn(context.Context, *plugin.UnusedWithdrawn) error {
	r.record(plugin.SignalUnusedWithdrawn)
	return nil
}

func (r *eventRecorder) OnEmergencySwept(context.Context, *plugin.EmergencySwept) error {
	r.record(plugin.SignalEmergencySwept)
	return nil
}

// ──────────────────────────────────────────────────
// Facade
// ──────────────────────────────────────────────────

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := custody.DefaultConfig()
	cfg.Staking.Account = cfg.Vesting.Account
	cfg.Distribution.MaxBatchSize = 0

	_, err := custody.New(memory.New(), tokenmem.New(), custody.WithConfig(cfg))
	require.Error(t, err)
	assert.ErrorIs(t, err, custody.ErrInvalidParameter)

	var multi custody.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 2)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, custody.DefaultConfig().Validate())
}

func TestEnginesUseDistinctAccounts(t *testing.T) {
	h := newHarness(t)

	accounts := map[types.Address]bool{
		h.c.Vesting().Account():      true,
		h.c.Staking().Account():      true,
		h.c.Distribution().Account(): true,
	}
	assert.Len(t, accounts, 3)
}

func TestStartRegistersPlugins(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.c.Plugins().Count())
	assert.NotNil(t, h.c.Plugins().Get("test-recorder"))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{custody.ErrZeroAddress, custody.ErrInvalidParameter},
		{custody.ErrInvalidAmount, custody.ErrInvalidParameter},
		{custody.ErrBelowMinimum, custody.ErrInvalidParameter},
		{custody.ErrCategoryNotFound, custody.ErrNotFound},
		{custody.ErrNotAdmin, custody.ErrUnauthorized},
		{custody.ErrAlreadyPaid, custody.ErrStateConflict},
		{custody.ErrChangedInFlight, custody.ErrStateConflict},
		{custody.ErrRecipientCapReached, custody.ErrCapacityExceeded},
		{custody.ErrInsufficientVested, custody.ErrInsufficientFunds},
		{custody.ErrNothingToClaim, custody.ErrNothingToDo},
		{custody.ErrTransferFailed, nil},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.kind, custody.KindOf(tt.err))
		})
	}
}
