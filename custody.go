package custody

import (
	"context"
	"log/slog"

	"github.com/xraph/custody/access"
	"github.com/xraph/custody/clock"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/token"
	"github.com/xraph/custody/types"
)

// Custody owns the three custody engines and the collaborators they share.
type Custody struct {
	store   store.Store
	ledger  token.Ledger
	clock   clock.Clock
	auth    access.Authorizer
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config

	vesting      *VestingEngine
	staking      *StakingEngine
	distribution *DistributionEngine
}

// New creates a new Custody instance. Without WithAuthorizer every admin
// operation is rejected.
func New(s store.Store, l token.Ledger, opts ...Option) (*Custody, error) {
	c := &Custody{
		store:   s,
		ledger:  l,
		clock:   clock.System{},
		auth:    access.NewStatic(),
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		config:  DefaultConfig(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	c.vesting = newVestingEngine(c.newCore("vesting", c.config.Vesting.Account), s, c.config.Vesting)
	c.staking = newStakingEngine(c.newCore("staking", c.config.Staking.Account), s, c.config.Staking)
	c.distribution = newDistributionEngine(c.newCore("distribution", c.config.Distribution.Account), s, c.config.Distribution)

	return c, nil
}

// Option configures a Custody instance.
type Option func(*Custody)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Custody) {
		c.logger = logger
		c.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(c *Custody) {
		_ = c.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source. Tests use clock.Manual.
func WithClock(clk clock.Clock) Option {
	return func(c *Custody) {
		c.clock = clk
	}
}

// WithAuthorizer sets the admin and pause authority.
func WithAuthorizer(a access.Authorizer) Option {
	return func(c *Custody) {
		c.auth = a
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Custody) {
		c.config = cfg
	}
}

// Start migrates the store and initializes plugins.
func (c *Custody) Start(ctx context.Context) error {
	if err := c.store.Migrate(ctx); err != nil {
		return err
	}

	c.plugins.EmitInit(ctx, c)

	c.logger.Info("custody started",
		"vesting_account", c.config.Vesting.Account,
		"staking_account", c.config.Staking.Account,
		"distribution_account", c.config.Distribution.Account,
		"plugins", c.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (c *Custody) Stop() error {
	ctx := context.Background()
	c.plugins.EmitShutdown(ctx)

	return c.store.Close()
}

// Vesting returns the vesting engine.
func (c *Custody) Vesting() *VestingEngine { return c.vesting }

// Staking returns the staking engine.
func (c *Custody) Staking() *StakingEngine { return c.staking }

// Distribution returns the distribution engine.
func (c *Custody) Distribution() *DistributionEngine { return c.distribution }

// Config returns the active configuration.
func (c *Custody) Config() Config { return c.config }

// Store returns the underlying store.
func (c *Custody) Store() store.Store { return c.store }

// Logger returns the logger shared by the engines.
func (c *Custody) Logger() *slog.Logger { return c.logger }

// Plugins returns the plugin registry.
func (c *Custody) Plugins() *plugin.Registry { return c.plugins }

func (c *Custody) newCore(name string, account types.Address) *core {
	return &core{
		name:    name,
		account: account.Normalize(),
		ledger:  c.ledger,
		clock:   c.clock,
		auth:    c.auth,
		plugins: c.plugins,
		logger:  c.logger.With("engine", name),
	}
}
