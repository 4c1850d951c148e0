package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// DefaultHookTimeout bounds how long a single hook may run.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                    []OnInit
	onShutdown                []OnShutdown
	onScheduleCreated         []OnScheduleCreated
	onTokensReleased          []OnTokensReleased
	onScheduleRevoked         []OnScheduleRevoked
	onStakeCreated            []OnStakeCreated
	onStakeWithdrawn          []OnStakeWithdrawn
	onRewardsClaimed          []OnRewardsClaimed
	onStakeEmergencyWithdrawn []OnStakeEmergencyWithdrawn
	onAPYUpdated              []OnAPYUpdated
	onRewardsDistributed      []OnRewardsDistributed
	onRewardsReserveAdded     []OnRewardsReserveAdded
	onCategoryCreated         []OnCategoryCreated
	onTokensDistributed       []OnTokensDistributed
	onBatchCompleted          []OnBatchCompleted
	onCategoryStatusChanged   []OnCategoryStatusChanged
	onUnusedWithdrawn         []OnUnusedWithdrawn
	onEmergencySwept          []OnEmergencySwept
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnScheduleCreated); ok {
		r.onScheduleCreated = append(r.onScheduleCreated, v)
	}
	if v, ok := p.(OnTokensReleased); ok {
		r.onTokensReleased = append(r.onTokensReleased, v)
	}
	if v, ok := p.(OnScheduleRevoked); ok {
		r.onScheduleRevoked = append(r.onScheduleRevoked, v)
	}
	if v, ok := p.(OnStakeCreated); ok {
		r.onStakeCreated = append(r.onStakeCreated, v)
	}
	if v, ok := p.(OnStakeWithdrawn); ok {
		r.onStakeWithdrawn = append(r.onStakeWithdrawn, v)
	}
	if v, ok := p.(OnRewardsClaimed); ok {
		r.onRewardsClaimed = append(r.onRewardsClaimed, v)
	}
	if v, ok := p.(OnStakeEmergencyWithdrawn); ok {
		r.onStakeEmergencyWithdrawn = append(r.onStakeEmergencyWithdrawn, v)
	}
	if v, ok := p.(OnAPYUpdated); ok {
		r.onAPYUpdated = append(r.onAPYUpdated, v)
	}
	if v, ok := p.(OnRewardsDistributed); ok {
		r.onRewardsDistributed = append(r.onRewardsDistributed, v)
	}
	if v, ok := p.(OnRewardsReserveAdded); ok {
		r.onRewardsReserveAdded = append(r.onRewardsReserveAdded, v)
	}
	if v, ok := p.(OnCategoryCreated); ok {
		r.onCategoryCreated = append(r.onCategoryCreated, v)
	}
	if v, ok := p.(OnTokensDistributed); ok {
		r.onTokensDistributed = append(r.onTokensDistributed, v)
	}
	if v, ok := p.(OnBatchCompleted); ok {
		r.onBatchCompleted = append(r.onBatchCompleted, v)
	}
	if v, ok := p.(OnCategoryStatusChanged); ok {
		r.onCategoryStatusChanged = append(r.onCategoryStatusChanged, v)
	}
	if v, ok := p.(OnUnusedWithdrawn); ok {
		r.onUnusedWithdrawn = append(r.onUnusedWithdrawn, v)
	}
	if v, ok := p.(OnEmergencySwept); ok {
		r.onEmergencySwept = append(r.onEmergencySwept, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// hookInterfaces lists the hook interfaces reported at registration.
var hookInterfaces = []struct {
	name  string
	iface reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnScheduleCreated", reflect.TypeOf((*OnScheduleCreated)(nil)).Elem()},
	{"OnTokensReleased", reflect.TypeOf((*OnTokensReleased)(nil)).Elem()},
	{"OnScheduleRevoked", reflect.TypeOf((*OnScheduleRevoked)(nil)).Elem()},
	{"OnStakeCreated", reflect.TypeOf((*OnStakeCreated)(nil)).Elem()},
	{"OnStakeWithdrawn", reflect.TypeOf((*OnStakeWithdrawn)(nil)).Elem()},
	{"OnRewardsClaimed", reflect.TypeOf((*OnRewardsClaimed)(nil)).Elem()},
	{"OnStakeEmergencyWithdrawn", reflect.TypeOf((*OnStakeEmergencyWithdrawn)(nil)).Elem()},
	{"OnAPYUpdated", reflect.TypeOf((*OnAPYUpdated)(nil)).Elem()},
	{"OnRewardsDistributed", reflect.TypeOf((*OnRewardsDistributed)(nil)).Elem()},
	{"OnRewardsReserveAdded", reflect.TypeOf((*OnRewardsReserveAdded)(nil)).Elem()},
	{"OnCategoryCreated", reflect.TypeOf((*OnCategoryCreated)(nil)).Elem()},
	{"OnTokensDistributed", reflect.TypeOf((*OnTokensDistributed)(nil)).Elem()},
	{"OnBatchCompleted", reflect.TypeOf((*OnBatchCompleted)(nil)).Elem()},
	{"OnCategoryStatusChanged", reflect.TypeOf((*OnCategoryStatusChanged)(nil)).Elem()},
	{"OnUnusedWithdrawn", reflect.TypeOf((*OnUnusedWithdrawn)(nil)).Elem()},
	{"OnEmergencySwept", reflect.TypeOf((*OnEmergencySwept)(nil)).Elem()},
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookInterfaces {
		if v.Implements(h.iface) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// dispatch calls fn for every plugin in the snapshot selected by pick.
// Failures are logged and never returned.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, pick func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := pick(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, c interface{}) {
	dispatch(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, c) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitScheduleCreated notifies OnScheduleCreated plugins.
func (r *Registry) EmitScheduleCreated(ctx context.Context, evt *ScheduleCreated) {
	dispatch(ctx, r, "OnScheduleCreated", func(r *Registry) []OnScheduleCreated { return r.onScheduleCreated },
		func(p OnScheduleCreated) error { return p.OnScheduleCreated(ctx, evt) })
}

// EmitTokensReleased notifies OnTokensReleased plugins.
func (r *Registry) EmitTokensReleased(ctx context.Context, evt *TokensReleased) {
	dispatch(ctx, r, "OnTokensReleased", func(r *Registry) []OnTokensReleased { return r.onTokensReleased },
		func(p OnTokensReleased) error { return p.OnTokensReleased(ctx, evt) })
}

// EmitScheduleRevoked notifies OnScheduleRevoked plugins.
func (r *Registry) EmitScheduleRevoked(ctx context.Context, evt *ScheduleRevoked) {
	dispatch(ctx, r, "OnScheduleRevoked", func(r *Registry) []OnScheduleRevoked { return r.onScheduleRevoked },
		func(p OnScheduleRevoked) error { return p.OnScheduleRevoked(ctx, evt) })
}

// EmitStakeCreated notifies OnStakeCreated plugins.
func (r *Registry) EmitStakeCreated(ctx context.Context, evt *StakeCreated) {
	dispatch(ctx, r, "OnStakeCreated", func(r *Registry) []OnStakeCreated { return r.onStakeCreated },
		func(p OnStakeCreated) error { return p.OnStakeCreated(ctx, evt) })
}

// EmitStakeWithdrawn notifies OnStakeWithdrawn plugins.
func (r *Registry) EmitStakeWithdrawn(ctx context.Context, evt *StakeWithdrawn) {
	dispatch(ctx, r, "OnStakeWithdrawn", func(r *Registry) []OnStakeWithdrawn { return r.onStakeWithdrawn },
		func(p OnStakeWithdrawn) error { return p.OnStakeWithdrawn(ctx, evt) })
}

// EmitRewardsClaimed notifies OnRewardsClaimed plugins.
func (r *Registry) EmitRewardsClaimed(ctx context.Context, evt *RewardsClaimed) {
	dispatch(ctx, r, "OnRewardsClaimed", func(r *Registry) []OnRewardsClaimed { return r.onRewardsClaimed },
		func(p OnRewardsClaimed) error { return p.OnRewardsClaimed(ctx, evt) })
}

// EmitStakeEmergencyWithdrawn notifies OnStakeEmergencyWithdrawn plugins.
func (r *Registry) EmitStakeEmergencyWithdrawn(ctx context.Context, evt *StakeEmergencyWithdrawn) {
	dispatch(ctx, r, "OnStakeEmergencyWithdrawn", func(r *Registry) []OnStakeEmergencyWithdrawn { return r.onStakeEmergencyWithdrawn },
		func(p OnStakeEmergencyWithdrawn) error { return p.OnStakeEmergencyWithdrawn(ctx, evt) })
}

// EmitAPYUpdated notifies OnAPYUpdated plugins.
func (r *Registry) EmitAPYUpdated(ctx context.Context, evt *APYUpdated) {
	dispatch(ctx, r, "OnAPYUpdated", func(r *Registry) []OnAPYUpdated { return r.onAPYUpdated },
		func(p OnAPYUpdated) error { return p.OnAPYUpdated(ctx, evt) })
}

// EmitRewardsDistributed notifies OnRewardsDistributed plugins.
func (r *Registry) EmitRewardsDistributed(ctx context.Context, evt *RewardsDistributed) {
	dispatch(ctx, r, "OnRewardsDistributed", func(r *Registry) []OnRewardsDistributed { return r.onRewardsDistributed },
		func(p OnRewardsDistributed) error { return p.OnRewardsDistributed(ctx, evt) })
}

// EmitRewardsReserveAdded notifies OnRewardsReserveAdded plugins.
func (r *Registry) EmitRewardsReserveAdded(ctx context.Context, evt *RewardsReserveAdded) {
	dispatch(ctx, r, "OnRewardsReserveAdded", func(r *Registry) []OnRewardsReserveAdded { return r.onRewardsReserveAdded },
		func(p OnRewardsReserveAdded) error { return p.OnRewardsReserveAdded(ctx, evt) })
}

// EmitCategoryCreated notifies OnCategoryCreated plugins.
func (r *Registry) EmitCategoryCreated(ctx context.Context, evt *CategoryCreated) {
	dispatch(ctx, r, "OnCategoryCreated", func(r *Registry) []OnCategoryCreated { return r.onCategoryCreated },
		func(p OnCategoryCreated) error { return p.OnCategoryCreated(ctx, evt) })
}

// EmitTokensDistributed notifies OnTokensDistributed plugins.
func (r *Registry) EmitTokensDistributed(ctx context.Context, evt *TokensDistributed) {
	dispatch(ctx, r, "OnTokensDistributed", func(r *Registry) []OnTokensDistributed { return r.onTokensDistributed },
		func(p OnTokensDistributed) error { return p.OnTokensDistributed(ctx, evt) })
}

// EmitBatchCompleted notifies OnBatchCompleted plugins.
func (r *Registry) EmitBatchCompleted(ctx context.Context, evt *BatchCompleted) {
	dispatch(ctx, r, "OnBatchCompleted", func(r *Registry) []OnBatchCompleted { return r.onBatchCompleted },
		func(p OnBatchCompleted) error { return p.OnBatchCompleted(ctx, evt) })
}

// EmitCategoryStatusChanged notifies OnCategoryStatusChanged plugins.
func (r *Registry) EmitCategoryStatusChanged(ctx context.Context, evt *CategoryStatusChanged) {
	dispatch(ctx, r, "OnCategoryStatusChanged", func(r *Registry) []OnCategoryStatusChanged { return r.onCategoryStatusChanged },
		func(p OnCategoryStatusChanged) error { return p.OnCategoryStatusChanged(ctx, evt) })
}

// EmitUnusedWithdrawn notifies OnUnusedWithdrawn plugins.
func (r *Registry) EmitUnusedWithdrawn(ctx context.Context, evt *UnusedWithdrawn) {
	dispatch(ctx, r, "OnUnusedWithdrawn", func(r *Registry) []OnUnusedWithdrawn { return r.onUnusedWithdrawn },
		func(p OnUnusedWithdrawn) error { return p.OnUnusedWithdrawn(ctx, evt) })
}

// EmitEmergencySwept notifies OnEmergencySwept plugins.
func (r *Registry) EmitEmergencySwept(ctx context.Context, evt *EmergencySwept) {
	dispatch(ctx, r, "OnEmergencySwept", func(r *Registry) []OnEmergencySwept { return r.onEmergencySwept },
		func(p OnEmergencySwept) error { return p.OnEmergencySwept(ctx, evt) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the custody pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
