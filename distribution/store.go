package distribution

import (
	"context"

	"github.com/xraph/custody/types"
)

// Store persists categories, payout records and distribution totals.
type Store interface {
	InsertCategory(ctx context.Context, c *Category, totals Totals) error
	UpdateCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, name string) (*Category, error)
	ListCategories(ctx context.Context) ([]*Category, error)

	// RecordPayouts writes the recipient records, the updated category and
	// the totals together.
	RecordPayouts(ctx context.Context, c *Category, recipients []*Recipient, totals Totals) error

	// RevertPayouts removes recipient records written by RecordPayouts whose
	// transfers never happened, saving the corrected category and totals.
	RevertPayouts(ctx context.Context, c *Category, addresses []types.Address, totals Totals) error

	GetRecipient(ctx context.Context, address types.Address) (*Recipient, error)
	ListRecipients(ctx context.Context, category string, opts ListOpts) ([]*Recipient, error)
	GetDistributionTotals(ctx context.Context) (Totals, error)
}

// ListOpts pages through a category's recipients in payout order.
type ListOpts struct {
	Limit  int
	Offset int
}
