package vesting

import (
	"context"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Store persists schedules and their totals. Each write method saves the
// schedule and the totals together.
type Store interface {
	InsertSchedule(ctx context.Context, s *Schedule, totals Totals) error
	UpdateSchedule(ctx context.Context, s *Schedule, totals Totals) error
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Schedule, error)
	ListSchedules(ctx context.Context, beneficiary types.Address, opts ListOpts) ([]*Schedule, error)
	CountSchedules(ctx context.Context, beneficiary types.Address) (uint64, error)
	GetVestingTotals(ctx context.Context) (Totals, error)
}

// ListOpts pages through a beneficiary's schedules in sequence order.
type ListOpts struct {
	IncludeRevoked bool
	Limit          int
	Offset         int
}
