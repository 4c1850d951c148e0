package extension

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/grove"

	"github.com/xraph/custody"
	audithook "github.com/xraph/custody/audit_hook"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/token"
)

// Option configures the Custody Forge extension.
type Option func(*Extension)

// WithStore sets the store for the custody engines. It takes precedence
// over WithGroveDB.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB sets the grove database the configured driver builds its
// store on.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithLedger sets the token ledger the engines move funds on.
func WithLedger(l token.Ledger) Option {
	return func(e *Extension) {
		e.ledger = l
	}
}

// WithCustodyOption passes a custody.Option through to the engines.
func WithCustodyOption(opt custody.Option) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, opt)
	}
}

// WithPlugin registers a custody plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, custody.WithPlugin(p))
	}
}

// WithAuditRecorder registers the audit hook plugin backed by r.
func WithAuditRecorder(r audithook.Recorder, opts ...audithook.Option) Option {
	return func(e *Extension) {
		e.auditRecorder = r
		e.auditOpts = opts
	}
}

// WithMetricsRegistry sets the registry metrics are registered on and
// served from. The Prometheus default registry is used otherwise.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(e *Extension) {
		e.registry = reg
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDriver selects the store backend built from the grove database.
func WithDriver(d Driver) Option {
	return func(e *Extension) { e.config.Driver = d }
}

// WithAdmins grants the admin role to the given addresses.
func WithAdmins(admins ...string) Option {
	return func(e *Extension) { e.config.Admins = append(e.config.Admins, admins...) }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableMetrics skips the metrics plugin.
func WithDisableMetrics() Option {
	return func(e *Extension) { e.config.DisableMetrics = true }
}

// WithBasePath sets the URL prefix for custody routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
