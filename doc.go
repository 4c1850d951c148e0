// Package custody provides token custody engines for Go applications:
// vesting schedules, tiered staking with APY rewards, and capped one-time
// distributions.
//
// Custody is designed as a library, not a service. Each engine owns a custody
// account on an external token ledger, keeps its own bookkeeping in a Store,
// and moves tokens only through the ledger. It provides:
//
//   - Linear and cliff vesting with slice-period granularity and revocation
//   - Flexible and locked staking tiers with per-tier APY and a reward reserve
//   - Named distribution categories with amount and recipient caps
//   - All-or-nothing batch payouts
//   - Pluggable signals for audit trails and metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/custody"
//	    "github.com/xraph/custody/store/memory"
//	    tokenmem "github.com/xraph/custody/token/memory"
//	)
//
//	ledger := tokenmem.New()
//	c, err := custody.New(memory.New(), ledger,
//	    custody.WithAuthorizer(access.NewStatic("admin")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Stop()
//
// # Vesting
//
// Fund the vesting account, then create a schedule. Amounts are integer base
// units and times are Unix seconds:
//
//	sched, err := c.Vesting().CreateSchedule(ctx, "admin", custody.ScheduleParams{
//	    Beneficiary: "alice",
//	    Kind:        vesting.KindLinear,
//	    Start:       start,
//	    Duration:    365 * 86400,
//	    SlicePeriod: 1,
//	    Amount:      custody.NewAmount(100_000),
//	})
//	amount, err := c.Vesting().ReleaseAll(ctx, "alice", sched.ID)
//
// # Staking
//
// Stakers approve the staking account on the ledger, then stake:
//
//	pos, err := c.Staking().Stake(ctx, "bob", custody.NewAmount(10_000), staking.TierFlexible)
//	reward, err := c.Staking().ClaimRewards(ctx, "bob")
//
// Rewards accrue as amount * apy * elapsed / (31536000 * 10000), truncated.
//
// # Distribution
//
//	_, err := c.Distribution().CreateCategory(ctx, "admin", "airdrop", custody.NewAmount(1000), 100)
//	recs, err := c.Distribution().DistributeBatch(ctx, "admin", "airdrop", addrs, amounts)
//
// Each address is paid at most once across every category.
//
// # Ordering
//
// Every mutating operation validates, then commits bookkeeping to the store,
// then asks the ledger to move tokens. A ledger that calls back into an engine
// while a transfer is pending observes the committed state, so the callback is
// rejected by the ordinary checks. When the ledger fails, the bookkeeping of
// that operation is rolled back and the error wraps ErrTransferFailed.
//
// # Plugins
//
// Plugins implement any of the hook interfaces in the plugin package:
//
//	c, err := custody.New(store, ledger,
//	    custody.WithPlugin(audithook.New(recorder)),
//	    custody.WithPlugin(observability.NewMetricsExtension()),
//	)
package custody
