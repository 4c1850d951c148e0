package staking

import (
	"context"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Store persists positions and staking totals.
type Store interface {
	InsertPosition(ctx context.Context, p *Position, totals Totals) error
	UpdatePosition(ctx context.Context, p *Position, totals Totals) error
	GetPosition(ctx context.Context, positionID id.PositionID) (*Position, error)
	GetActivePosition(ctx context.Context, account types.Address) (*Position, error)
	ListPositions(ctx context.Context, account types.Address, opts ListOpts) ([]*Position, error)

	// GetStakingTotals returns the current counters. ok is false when the
	// APY table and reserve were never saved; callers seed the table then.
	GetStakingTotals(ctx context.Context) (totals Totals, ok bool, err error)
	SaveStakingTotals(ctx context.Context, totals Totals) error
}

// ListOpts pages through an account's positions, newest first.
type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
