// Package distribution holds allocation categories and one-time payout
// records.
package distribution

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Category is a named allocation pool with an amount capacity and a cap on
// how many recipients it may pay.
type Category struct {
	types.Entity
	ID           id.CategoryID `json:"id"`
	Name         string        `json:"name"`
	Capacity     types.Amount  `json:"capacity"`
	Distributed  types.Amount  `json:"distributed"`
	RecipientCap int64         `json:"recipient_cap"`
	Recipients   int64         `json:"recipients"`
	Active       bool          `json:"active"`
}

// Remaining returns the capacity not yet paid out.
func (c *Category) Remaining() types.Amount {
	return c.Capacity.Sub(c.Distributed)
}

// SlotsLeft returns how many more recipients the category may pay.
func (c *Category) SlotsLeft() int64 {
	return c.RecipientCap - c.Recipients
}

// Recipient is the single payout an address ever receives. Records are
// immutable once written.
type Recipient struct {
	types.Entity
	ID         id.PayoutID   `json:"id"`
	Address    types.Address `json:"address"`
	Category   string        `json:"category"`
	Amount     types.Amount  `json:"amount"`
	Received   bool          `json:"received"`
	ReceivedAt int64         `json:"received_at"`
	BatchID    id.BatchID    `json:"batch_id,omitempty"`
}

// Totals aggregates every category held by one distribution custody account.
type Totals struct {
	TotalAllocated   types.Amount `json:"total_allocated"`
	TotalDistributed types.Amount `json:"total_distributed"`
	Categories       int64        `json:"categories"`
}

// Outstanding returns allocated capacity that has not been paid out yet.
// The custody account must keep at least this much on hand.
func (t Totals) Outstanding() types.Amount {
	return t.TotalAllocated.Sub(t.TotalDistributed)
}
