package custody

import (
	"time"

	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
)

// Config holds the tunables of all three engines.
type Config struct {
	Vesting      VestingConfig      `json:"vesting" mapstructure:"vesting" yaml:"vesting"`
	Staking      StakingConfig      `json:"staking" mapstructure:"staking" yaml:"staking"`
	Distribution DistributionConfig `json:"distribution" mapstructure:"distribution" yaml:"distribution"`
}

// VestingConfig configures the vesting engine.
type VestingConfig struct {
	// Account is the custody address holding vesting funds.
	Account types.Address `json:"account" mapstructure:"account" yaml:"account"`

	// MinDuration and MaxDuration bound a schedule's total duration.
	MinDuration time.Duration `json:"min_duration" mapstructure:"min_duration" yaml:"min_duration"`
	MaxDuration time.Duration `json:"max_duration" mapstructure:"max_duration" yaml:"max_duration"`
}

// StakingConfig configures the staking engine.
type StakingConfig struct {
	Account types.Address `json:"account" mapstructure:"account" yaml:"account"`

	// MinStake is the smallest accepted principal, in base units.
	MinStake int64 `json:"min_stake" mapstructure:"min_stake" yaml:"min_stake"`

	// MaxAPY caps UpdateAPY. 10000 is 100%.
	MaxAPY int64 `json:"max_apy" mapstructure:"max_apy" yaml:"max_apy"`

	// Initial APY per tier, applied the first time totals are created.
	FlexibleAPY  int64 `json:"flexible_apy" mapstructure:"flexible_apy" yaml:"flexible_apy"`
	Locked3MAPY  int64 `json:"locked_3m_apy" mapstructure:"locked_3m_apy" yaml:"locked_3m_apy"`
	Locked6MAPY  int64 `json:"locked_6m_apy" mapstructure:"locked_6m_apy" yaml:"locked_6m_apy"`
	Locked12MAPY int64 `json:"locked_12m_apy" mapstructure:"locked_12m_apy" yaml:"locked_12m_apy"`
}

// DistributionConfig configures the distribution engine.
type DistributionConfig struct {
	Account types.Address `json:"account" mapstructure:"account" yaml:"account"`

	// MinAllocation is the smallest accepted category capacity.
	MinAllocation int64 `json:"min_allocation" mapstructure:"min_allocation" yaml:"min_allocation"`
	MaxCategories int   `json:"max_categories" mapstructure:"max_categories" yaml:"max_categories"`
	MaxBatchSize  int   `json:"max_batch_size" mapstructure:"max_batch_size" yaml:"max_batch_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Vesting: VestingConfig{
			Account:     "custody:vesting",
			MinDuration: 24 * time.Hour,
			MaxDuration: 10 * 365 * 24 * time.Hour,
		},
		Staking: StakingConfig{
			Account:      "custody:staking",
			MinStake:     100,
			MaxAPY:       5000,
			FlexibleAPY:  500,
			Locked3MAPY:  800,
			Locked6MAPY:  1200,
			Locked12MAPY: 2000,
		},
		Distribution: DistributionConfig{
			Account:       "custody:distribution",
			MinAllocation: 1,
			MaxCategories: 50,
			MaxBatchSize:  200,
		},
	}
}

// APYTable returns the initial APY of every tier.
func (c StakingConfig) APYTable() map[staking.Tier]int64 {
	return map[staking.Tier]int64{
		staking.TierFlexible:  c.FlexibleAPY,
		staking.TierLocked3M:  c.Locked3MAPY,
		staking.TierLocked6M:  c.Locked6MAPY,
		staking.TierLocked12M: c.Locked12MAPY,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs MultiError

	accounts := map[string]types.Address{
		"vesting.account":      c.Vesting.Account,
		"staking.account":      c.Staking.Account,
		"distribution.account": c.Distribution.Account,
	}
	seen := make(map[types.Address]string, len(accounts))
	for _, field := range []string{"vesting.account", "staking.account", "distribution.account"} {
		addr := accounts[field].Normalize()
		if addr.IsZero() {
			errs.Add(ValidationError{Field: field, Message: "must not be empty"})
			continue
		}
		if other, dup := seen[addr]; dup {
			errs.Add(ValidationError{Field: field, Message: "must differ from " + other})
			continue
		}
		seen[addr] = field
	}

	if c.Vesting.MinDuration < time.Second {
		errs.Add(ValidationError{Field: "vesting.min_duration", Message: "must be at least one second"})
	}
	if c.Vesting.MaxDuration < c.Vesting.MinDuration {
		errs.Add(ValidationError{Field: "vesting.max_duration", Message: "must not be below min_duration"})
	}

	if c.Staking.MinStake < 1 {
		errs.Add(ValidationError{Field: "staking.min_stake", Message: "must be positive"})
	}
	if c.Staking.MaxAPY < 0 {
		errs.Add(ValidationError{Field: "staking.max_apy", Message: "must not be negative"})
	}
	for tier, apy := range c.Staking.APYTable() {
		if apy < 0 || apy > c.Staking.MaxAPY {
			errs.Add(ValidationError{Field: "staking." + string(tier) + "_apy", Message: "must be between 0 and max_apy"})
		}
	}

	if c.Distribution.MinAllocation < 1 {
		errs.Add(ValidationError{Field: "distribution.min_allocation", Message: "must be positive"})
	}
	if c.Distribution.MaxCategories < 1 {
		errs.Add(ValidationError{Field: "distribution.max_categories", Message: "must be positive"})
	}
	if c.Distribution.MaxBatchSize < 1 {
		errs.Add(ValidationError{Field: "distribution.max_batch_size", Message: "must be positive"})
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
