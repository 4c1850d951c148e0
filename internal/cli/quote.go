package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/custody"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// NewQuoteCommand creates the quote command group.
func NewQuoteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Evaluate vesting and staking math without any state",
	}
	cmd.AddCommand(newQuoteVestingCommand(rootOpts))
	cmd.AddCommand(newQuoteStakingCommand(rootOpts))
	return cmd
}

type vestingQuoteFlags struct {
	kind     string
	amount   string
	released string
	start    int64
	at       int64
	cliff    time.Duration
	duration time.Duration
	slice    time.Duration
}

// VestingQuote is the result of quote vesting.
type VestingQuote struct {
	Kind       vesting.Kind `json:"kind"`
	At         int64        `json:"at"`
	Vested     types.Amount `json:"vested"`
	Releasable types.Amount `json:"releasable"`
	Remaining  types.Amount `json:"remaining"`
	EndsAt     int64        `json:"ends_at"`
}

func (q VestingQuote) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kind:       %s\n", q.Kind)
	fmt.Fprintf(&b, "at:         %d\n", q.At)
	fmt.Fprintf(&b, "vested:     %s\n", q.Vested)
	fmt.Fprintf(&b, "releasable: %s\n", q.Releasable)
	fmt.Fprintf(&b, "remaining:  %s\n", q.Remaining)
	fmt.Fprintf(&b, "ends_at:    %d", q.EndsAt)
	return b.String()
}

func newQuoteVestingCommand(rootOpts *RootOptions) *cobra.Command {
	f := &vestingQuoteFlags{}
	cmd := &cobra.Command{
		Use:   "vesting",
		Short: "Compute vested and releasable amounts for a schedule",
		Example: `  custodyctl quote vesting --amount 100000 --start 1700000000 \
    --duration 8760h --at 1715768000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := quoteVesting(f)
			if err != nil {
				return WrapExitError(ExitCommandError, "quote vesting", err)
			}
			return newFormatter(rootOpts, cmd).Success(q)
		},
	}

	cmd.Flags().StringVar(&f.kind, "kind", string(vesting.KindLinear), "schedule kind (linear|cliff)")
	cmd.Flags().StringVar(&f.amount, "amount", "", "total committed amount in base units")
	cmd.Flags().StringVar(&f.released, "released", "0", "amount already released")
	cmd.Flags().Int64Var(&f.start, "start", 0, "schedule start, unix seconds")
	cmd.Flags().Int64Var(&f.at, "at", 0, "evaluation time, unix seconds (default: now)")
	cmd.Flags().DurationVar(&f.cliff, "cliff", 0, "cliff length")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "total schedule duration")
	cmd.Flags().DurationVar(&f.slice, "slice", time.Second, "accrual slice period")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("duration")

	return cmd
}

func quoteVesting(f *vestingQuoteFlags) (VestingQuote, error) {
	kind := vesting.Kind(f.kind)
	if !kind.Valid() {
		return VestingQuote{}, fmt.Errorf("%w: unknown kind %q", custody.ErrInvalidKind, f.kind)
	}
	amount, err := types.ParseAmount(f.amount)
	if err != nil {
		return VestingQuote{}, fmt.Errorf("amount: %w", err)
	}
	released, err := types.ParseAmount(f.released)
	if err != nil {
		return VestingQuote{}, fmt.Errorf("released: %w", err)
	}
	if !amount.IsPositive() {
		return VestingQuote{}, fmt.Errorf("%w: %s", custody.ErrInvalidAmount, amount)
	}
	duration := int64(f.duration / time.Second)
	cliff := int64(f.cliff / time.Second)
	if duration <= 0 {
		return VestingQuote{}, custody.ErrInvalidDuration
	}
	if kind == vesting.KindCliff && (cliff < 0 || cliff > duration) {
		return VestingQuote{}, custody.ErrInvalidCliff
	}

	at := f.at
	if at == 0 {
		at = time.Now().Unix()
	}

	sc := &vesting.Schedule{
		Kind:        kind,
		Start:       f.start,
		Cliff:       cliff,
		Duration:    duration,
		SlicePeriod: max(int64(f.slice/time.Second), 1),
		AmountTotal: amount,
		Released:    released,
	}
	return VestingQuote{
		Kind:       kind,
		At:         at,
		Vested:     sc.VestedAmount(at),
		Releasable: sc.ReleasableAmount(at),
		Remaining:  sc.Remaining(),
		EndsAt:     sc.EndsAt(),
	}, nil
}

type stakingQuoteFlags struct {
	amount  string
	tier    string
	apy     int64
	elapsed time.Duration
}

// StakingQuote is the result of quote staking.
type StakingQuote struct {
	Tier         staking.Tier `json:"tier"`
	APY          int64        `json:"apy"`
	Elapsed      int64        `json:"elapsed"`
	Rewards      types.Amount `json:"rewards"`
	LockDuration int64        `json:"lock_duration"`
	Unlocked     bool         `json:"unlocked"`
}

func (q StakingQuote) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tier:          %s\n", q.Tier)
	fmt.Fprintf(&b, "apy:           %d bps\n", q.APY)
	fmt.Fprintf(&b, "elapsed:       %ds\n", q.Elapsed)
	fmt.Fprintf(&b, "rewards:       %s\n", q.Rewards)
	fmt.Fprintf(&b, "lock_duration: %ds\n", q.LockDuration)
	fmt.Fprintf(&b, "unlocked:      %t", q.Unlocked)
	return b.String()
}

func newQuoteStakingCommand(rootOpts *RootOptions) *cobra.Command {
	f := &stakingQuoteFlags{}
	cmd := &cobra.Command{
		Use:     "staking",
		Short:   "Compute rewards accrued by a position",
		Example: `  custodyctl quote staking --amount 10000 --tier flexible --apy 100 --elapsed 8760h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := quoteStaking(f)
			if err != nil {
				return WrapExitError(ExitCommandError, "quote staking", err)
			}
			return newFormatter(rootOpts, cmd).Success(q)
		},
	}

	cmd.Flags().StringVar(&f.amount, "amount", "", "staked principal in base units")
	cmd.Flags().StringVar(&f.tier, "tier", string(staking.TierFlexible), "tier (flexible|locked_3m|locked_6m|locked_12m)")
	cmd.Flags().Int64Var(&f.apy, "apy", -1, "APY in basis points (default: the tier's configured default)")
	cmd.Flags().DurationVar(&f.elapsed, "elapsed", 0, "time since the last checkpoint")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func quoteStaking(f *stakingQuoteFlags) (StakingQuote, error) {
	tier := staking.Tier(f.tier)
	if !tier.Valid() {
		return StakingQuote{}, fmt.Errorf("%w: unknown tier %q", custody.ErrInvalidTier, f.tier)
	}
	amount, err := types.ParseAmount(f.amount)
	if err != nil {
		return StakingQuote{}, fmt.Errorf("amount: %w", err)
	}
	if !amount.IsPositive() {
		return StakingQuote{}, custody.ErrZeroAmount
	}

	apy := f.apy
	if apy < 0 {
		apy = custody.DefaultConfig().Staking.APYTable()[tier]
	}
	elapsed := int64(f.elapsed / time.Second)

	return StakingQuote{
		Tier:         tier,
		APY:          apy,
		Elapsed:      elapsed,
		Rewards:      staking.Accrue(amount, apy, elapsed),
		LockDuration: tier.LockDuration(),
		Unlocked:     elapsed >= tier.LockDuration(),
	}, nil
}
