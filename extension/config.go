package extension

import "github.com/xraph/custody"

// Driver names the store backend built by the extension.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverMongo    Driver = "mongo"
)

// Config holds the Custody extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.custody" or "custody" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableMetrics skips registering the Prometheus metrics plugin.
	DisableMetrics bool `json:"disable_metrics" mapstructure:"disable_metrics" yaml:"disable_metrics"`

	// BasePath is the URL prefix for custody routes (default: "/custody").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Driver selects the store backend built from the grove database
	// passed with WithGroveDB (default: "memory").
	Driver Driver `json:"driver" mapstructure:"driver" yaml:"driver"`

	// Admins are granted the admin role on every engine.
	Admins []string `json:"admins" mapstructure:"admins" yaml:"admins"`

	// Engine is the custody engine configuration.
	Engine custody.Config `json:"engine" mapstructure:"engine" yaml:"engine"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath: "/custody",
		Driver:   DriverMemory,
		Engine:   custody.DefaultConfig(),
	}
}
