package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{})

	assert.Equal(t, "/custody", cfg.BasePath)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, custody.DefaultConfig(), cfg.Engine)
	require.NoError(t, cfg.Engine.Validate())
}

func TestMergeKeepsPartialEngineConfig(t *testing.T) {
	cfg := Config{}
	cfg.Engine.Staking.MinStake = 5_000
	cfg.Engine.Vesting.MaxDuration = 48 * time.Hour

	cfg = mergeWithDefaults(cfg)
	defaults := custody.DefaultConfig()

	assert.Equal(t, int64(5_000), cfg.Engine.Staking.MinStake)
	assert.Equal(t, 48*time.Hour, cfg.Engine.Vesting.MaxDuration)
	assert.Equal(t, defaults.Vesting.Account, cfg.Engine.Vesting.Account)
	assert.Equal(t, defaults.Staking.FlexibleAPY, cfg.Engine.Staking.FlexibleAPY)
	assert.Equal(t, defaults.Distribution.MaxBatchSize, cfg.Engine.Distribution.MaxBatchSize)
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{
		BasePath: "/v",
		Driver:   DriverPostgres,
		Admins:   []string{"0xA"},
	}
	programmatic := Config{
		BasePath:       "/ignored",
		Driver:         DriverSQLite,
		DisableMigrate: true,
		Admins:         []string{"0xB"},
	}

	cfg := mergeConfigurations(yamlCfg, programmatic)

	assert.Equal(t, "/v", cfg.BasePath)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.True(t, cfg.DisableMigrate)
	assert.False(t, cfg.DisableRoutes)
	assert.Equal(t, []string{"0xA", "0xB"}, cfg.Admins)
}

func TestBuildStore(t *testing.T) {
	e := &Extension{config: DefaultConfig()}
	s, err := e.buildStore()
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	e.config.Driver = DriverPostgres
	_, err = e.buildStore()
	assert.Error(t, err)
}

func TestHandlerDisabled(t *testing.T) {
	e := &Extension{config: DefaultConfig()}
	assert.Nil(t, e.Handler())

	e.config.DisableRoutes = true
	assert.Nil(t, e.Handler())
}
