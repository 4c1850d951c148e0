// Package extension provides the Forge extension adapter for Custody.
//
// It implements the forge.Extension interface to integrate the custody
// engines into a Forge application with DI registration, lifecycle
// management and an optional read-only HTTP surface.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.custody" or "custody" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/custody"
	"github.com/xraph/custody/access"
	"github.com/xraph/custody/api"
	audithook "github.com/xraph/custody/audit_hook"
	"github.com/xraph/custody/observability"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/store/mongo"
	"github.com/xraph/custody/store/postgres"
	"github.com/xraph/custody/store/sqlite"
	"github.com/xraph/custody/token"
	tokenmem "github.com/xraph/custody/token/memory"
	"github.com/xraph/custody/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "custody"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Token custody engine for vesting, staking and distribution"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Custody as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config        Config
	engine        *custody.Custody
	store         store.Store
	ledger        token.Ledger
	groveDB       *grove.DB
	registry      *prometheus.Registry
	auditRecorder audithook.Recorder
	auditOpts     []audithook.Option
	custodyOpts   []custody.Option
}

// New creates a new Custody Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Custody instance.
// This is nil until Register is called.
func (e *Extension) Engine() *custody.Custody { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// builds the custody engines, and registers them in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	eng, err := e.build()
	if err != nil {
		return err
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*custody.Custody, error) {
		return e.engine, nil
	})
}

// build resolves the store and ledger and constructs the engines.
func (e *Extension) build() (*custody.Custody, error) {
	if e.store == nil {
		s, err := e.buildStore()
		if err != nil {
			return nil, err
		}
		e.store = s
	}

	if e.ledger == nil {
		e.Logger().Warn("custody: no token ledger configured, using in-memory ledger")
		e.ledger = tokenmem.New()
	}

	return custody.New(e.store, e.ledger, e.buildCustodyOpts()...)
}

// buildStore constructs the backend named by the configured driver.
func (e *Extension) buildStore() (store.Store, error) {
	if e.config.Driver == DriverMemory {
		return memory.New(), nil
	}
	if e.groveDB == nil {
		return nil, fmt.Errorf("custody: driver %q requires a grove database (use WithGroveDB)", e.config.Driver)
	}

	switch e.config.Driver {
	case DriverPostgres:
		return postgres.New(e.groveDB), nil
	case DriverSQLite:
		return sqlite.New(e.groveDB), nil
	case DriverMongo:
		return mongo.New(e.groveDB), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", custody.ErrInvalidParameter, e.config.Driver)
	}
}

// buildCustodyOpts constructs custody.Option values from the resolved config.
func (e *Extension) buildCustodyOpts() []custody.Option {
	opts := make([]custody.Option, 0, len(e.custodyOpts)+4)

	opts = append(opts, custody.WithConfig(e.config.Engine))

	if len(e.config.Admins) > 0 {
		admins := make([]types.Address, 0, len(e.config.Admins))
		for _, a := range e.config.Admins {
			admins = append(admins, types.ParseAddress(a))
		}
		opts = append(opts, custody.WithAuthorizer(access.NewStatic(admins...)))
	}

	if !e.config.DisableMetrics {
		opts = append(opts, custody.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(e.registerer())),
		))
	}

	if e.auditRecorder != nil {
		opts = append(opts, custody.WithPlugin(audithook.New(e.auditRecorder, e.auditOpts...)))
	}

	// Pass-through options are applied last so they can override the above.
	opts = append(opts, e.custodyOpts...)

	return opts
}

func (e *Extension) registerer() prometheus.Registerer {
	if e.registry != nil {
		return e.registry
	}
	return prometheus.DefaultRegisterer
}

func (e *Extension) gatherer() prometheus.Gatherer {
	if e.registry != nil {
		return e.registry
	}
	return prometheus.DefaultGatherer
}

// Handler returns the read-only custody routes mounted under BasePath, or
// nil when routes are disabled.
func (e *Extension) Handler() http.Handler {
	if e.config.DisableRoutes || e.engine == nil {
		return nil
	}

	opts := []api.Option{api.WithLogger(e.engine.Logger())}
	if !e.config.DisableMetrics {
		opts = append(opts, api.WithMetrics(e.gatherer()))
	}

	r := chi.NewRouter()
	r.Mount(e.config.BasePath, api.NewRouter(api.NewHandler(e.engine, opts...)))
	return r
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("custody: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("custody: store not initialized")
	}
	return e.store.Ping(ctx)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("custody: configuration is required but not found in config files; " +
				"ensure 'extensions.custody' or 'custody' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if err := e.config.Engine.Validate(); err != nil {
		return err
	}

	e.Logger().Debug("custody: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_metrics", e.config.DisableMetrics),
		forge.F("base_path", e.config.BasePath),
		forge.F("driver", string(e.config.Driver)),
		forge.F("admins", len(e.config.Admins)),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.custody", "custody"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("custody: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("custody: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	cfg.Engine = mergeEngineDefaults(cfg.Engine, defaults.Engine)
	return cfg
}

func mergeEngineDefaults(cfg, d custody.Config) custody.Config {
	if cfg.Vesting.Account == "" {
		cfg.Vesting.Account = d.Vesting.Account
	}
	if cfg.Vesting.MinDuration == 0 {
		cfg.Vesting.MinDuration = d.Vesting.MinDuration
	}
	if cfg.Vesting.MaxDuration == 0 {
		cfg.Vesting.MaxDuration = d.Vesting.MaxDuration
	}

	if cfg.Staking.Account == "" {
		cfg.Staking.Account = d.Staking.Account
	}
	if cfg.Staking.MinStake == 0 {
		cfg.Staking.MinStake = d.Staking.MinStake
	}
	if cfg.Staking.MaxAPY == 0 {
		cfg.Staking.MaxAPY = d.Staking.MaxAPY
	}
	if cfg.Staking.FlexibleAPY == 0 && cfg.Staking.Locked3MAPY == 0 &&
		cfg.Staking.Locked6MAPY == 0 && cfg.Staking.Locked12MAPY == 0 {
		cfg.Staking.FlexibleAPY = d.Staking.FlexibleAPY
		cfg.Staking.Locked3MAPY = d.Staking.Locked3MAPY
		cfg.Staking.Locked6MAPY = d.Staking.Locked6MAPY
		cfg.Staking.Locked12MAPY = d.Staking.Locked12MAPY
	}

	if cfg.Distribution.Account == "" {
		cfg.Distribution.Account = d.Distribution.Account
	}
	if cfg.Distribution.MinAllocation == 0 {
		cfg.Distribution.MinAllocation = d.Distribution.MinAllocation
	}
	if cfg.Distribution.MaxCategories == 0 {
		cfg.Distribution.MaxCategories = d.Distribution.MaxCategories
	}
	if cfg.Distribution.MaxBatchSize == 0 {
		cfg.Distribution.MaxBatchSize = d.Distribution.MaxBatchSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableMetrics {
		yamlConfig.DisableMetrics = true
	}

	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}

	// Admins accumulate from both sources.
	yamlConfig.Admins = append(yamlConfig.Admins, programmaticConfig.Admins...)

	yamlConfig.Engine = mergeEngineDefaults(yamlConfig.Engine, programmaticConfig.Engine)

	return mergeWithDefaults(yamlConfig)
}
