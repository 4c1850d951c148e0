// Package store defines the unified persistence interface for every custody
// engine. Backends live in the subpackages: memory, postgres, sqlite and mongo.
package store

import (
	"context"

	"github.com/xraph/custody/distribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

// Store is the unified storage interface for all Custody entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Every write that touches a record and its engine totals must persist both
// or neither. Backends may satisfy this by deriving the counters from the
// records they hold and ignoring the totals argument; only the staking APY
// table, reward reserve and distributed rewards cannot be derived.
type Store interface {
	// Vesting methods
	InsertSchedule(ctx context.Context, s *vesting.Schedule, totals vesting.Totals) error
	UpdateSchedule(ctx context.Context, s *vesting.Schedule, totals vesting.Totals) error
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*vesting.Schedule, error)
	ListSchedules(ctx context.Context, beneficiary types.Address, opts vesting.ListOpts) ([]*vesting.Schedule, error)
	CountSchedules(ctx context.Context, beneficiary types.Address) (uint64, error)
	GetVestingTotals(ctx context.Context) (vesting.Totals, error)

	// Staking methods
	InsertPosition(ctx context.Context, p *staking.Position, totals staking.Totals) error
	UpdatePosition(ctx context.Context, p *staking.Position, totals staking.Totals) error
	GetPosition(ctx context.Context, positionID id.PositionID) (*staking.Position, error)
	GetActivePosition(ctx context.Context, account types.Address) (*staking.Position, error)
	ListPositions(ctx context.Context, account types.Address, opts staking.ListOpts) ([]*staking.Position, error)
	GetStakingTotals(ctx context.Context) (staking.Totals, bool, error)
	SaveStakingTotals(ctx context.Context, totals staking.Totals) error

	// Distribution methods
	InsertCategory(ctx context.Context, c *distribution.Category, totals distribution.Totals) error
	UpdateCategory(ctx context.Context, c *distribution.Category) error
	GetCategory(ctx context.Context, name string) (*distribution.Category, error)
	ListCategories(ctx context.Context) ([]*distribution.Category, error)
	RecordPayouts(ctx context.Context, c *distribution.Category, recipients []*distribution.Recipient, totals distribution.Totals) error
	RevertPayouts(ctx context.Context, c *distribution.Category, addresses []types.Address, totals distribution.Totals) error
	GetRecipient(ctx context.Context, address types.Address) (*distribution.Recipient, error)
	ListRecipients(ctx context.Context, category string, opts distribution.ListOpts) ([]*distribution.Recipient, error)
	GetDistributionTotals(ctx context.Context) (distribution.Totals, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that Store satisfies every engine's narrower interface.
var (
	_ vesting.Store      = (Store)(nil)
	_ staking.Store      = (Store)(nil)
	_ distribution.Store = (Store)(nil)
)
