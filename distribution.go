package custody

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/custody/distribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/token"
	"github.com/xraph/custody/types"
)

// DistributionEngine pays one-time allocations out of named categories.
//
// An address is paid at most once across all categories. Capacity granted
// to categories and not yet paid out stays reserved in the custody account.
type DistributionEngine struct {
	*core
	store distribution.Store
	cfg   DistributionConfig
}

func newDistributionEngine(c *core, s distribution.Store, cfg DistributionConfig) *DistributionEngine {
	return &DistributionEngine{core: c, store: s, cfg: cfg}
}

// Account returns the custody address that holds distribution funds.
func (d *DistributionEngine) Account() types.Address { return d.account }

func (d *DistributionEngine) category(ctx context.Context, name string) (*distribution.Category, error) {
	c, err := d.store.GetCategory(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %q", ErrCategoryNotFound, name)
		}
		return nil, err
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// Categories
// ──────────────────────────────────────────────────

// CreateCategory opens a category. The custody account must be able to cover
// the new capacity on top of every outstanding allocation.
func (d *DistributionEngine) CreateCategory(ctx context.Context, caller types.Address, name string, capacity types.Amount, recipientCap int64) (*distribution.Category, error) {
	if err := d.requireNotPaused(ctx); err != nil {
		return nil, err
	}
	if err := d.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, ErrEmptyName
	case capacity.LessThan(types.NewAmount(d.cfg.MinAllocation)):
		return nil, fmt.Errorf("%w: %s < %d", ErrBelowMinAllocation, capacity, d.cfg.MinAllocation)
	case recipientCap <= 0:
		return nil, ErrZeroCap
	}

	c, err := d.createCategory(ctx, name, capacity, recipientCap)
	if err != nil {
		return nil, err
	}

	d.logger.Info("category created",
		"category", c.Name,
		"capacity", c.Capacity.String(),
		"recipient_cap", c.RecipientCap,
	)
	d.plugins.EmitCategoryCreated(ctx, &plugin.CategoryCreated{
		CategoryID:   c.ID,
		Name:         c.Name,
		Capacity:     c.Capacity,
		RecipientCap: c.RecipientCap,
		At:           c.CreatedAt.Unix(),
	})
	return c, nil
}

func (d *DistributionEngine) createCategory(ctx context.Context, name string, capacity types.Amount, recipientCap int64) (*distribution.Category, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.store.GetCategory(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	} else if !IsNotFound(err) {
		return nil, err
	}

	totals, err := d.store.GetDistributionTotals(ctx)
	if err != nil {
		return nil, err
	}
	if totals.Categories >= int64(d.cfg.MaxCategories) {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyCategories, d.cfg.MaxCategories)
	}
	avail, err := d.available(ctx)
	if err != nil {
		return nil, err
	}
	needed := totals.Outstanding().Add(capacity)
	if avail.LessThan(needed) {
		return nil, fmt.Errorf("%w: custody holds %s, allocations need %s",
			ErrInsufficientCustodiedBalance, avail.ClampZero(), needed)
	}

	c := &distribution.Category{
		Entity:       types.NewEntityAt(d.clock.Now()),
		ID:           id.NewCategoryID(),
		Name:         name,
		Capacity:     capacity,
		Distributed:  types.ZeroAmount(),
		RecipientCap: recipientCap,
		Active:       true,
	}
	totals.TotalAllocated = totals.TotalAllocated.Add(capacity)
	totals.Categories++
	if err := d.store.InsertCategory(ctx, c, totals); err != nil {
		return nil, err
	}
	return c, nil
}

// PauseCategory stops payouts from a category.
func (d *DistributionEngine) PauseCategory(ctx context.Context, caller types.Address, name string) error {
	return d.setActive(ctx, caller, name, false)
}

// ResumeCategory allows payouts from a paused category again.
func (d *DistributionEngine) ResumeCategory(ctx context.Context, caller types.Address, name string) error {
	return d.setActive(ctx, caller, name, true)
}

func (d *DistributionEngine) setActive(ctx context.Context, caller types.Address, name string, active bool) error {
	if err := d.requireNotPaused(ctx); err != nil {
		return err
	}
	if err := d.requireAdmin(ctx, caller); err != nil {
		return err
	}

	d.mu.Lock()
	c, err := d.category(ctx, name)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if c.Active == active {
		d.mu.Unlock()
		if active {
			return ErrCategoryActive
		}
		return ErrCategoryNotActive
	}
	c.Active = active
	c.Touch(d.clock.Now())
	err = d.store.UpdateCategory(ctx, c)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.logger.Info("category status changed", "category", name, "active", active)
	d.plugins.EmitCategoryStatusChanged(ctx, &plugin.CategoryStatusChanged{
		Name:   name,
		Active: active,
		At:     d.now(),
	})
	return nil
}

// ──────────────────────────────────────────────────
// Payouts
// ──────────────────────────────────────────────────

// DistributeToRecipient pays amount to recipient from category.
func (d *DistributionEngine) DistributeToRecipient(ctx context.Context, caller types.Address, category string, recipient types.Address, amount types.Amount) (*distribution.Recipient, error) {
	if err := d.requireNotPaused(ctx); err != nil {
		return nil, err
	}
	if err := d.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	if recipient.IsZero() {
		return nil, ErrZeroAddress
	}
	if !amount.IsPositive() {
		return nil, ErrZeroAmount
	}

	records, err := d.distribute(ctx, category, []types.Address{recipient}, []types.Amount{amount}, id.Nil)
	if err != nil {
		return nil, err
	}
	d.emitDistributed(ctx, records)
	return records[0], nil
}

// DistributeBatch pays every recipient its amount from category, or nobody.
// The whole batch is validated before anything is recorded.
func (d *DistributionEngine) DistributeBatch(ctx context.Context, caller types.Address, category string, recipients []types.Address, amounts []types.Amount) ([]*distribution.Recipient, error) {
	if err := d.requireNotPaused(ctx); err != nil {
		return nil, err
	}
	if err := d.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	switch {
	case len(recipients) != len(amounts):
		return nil, fmt.Errorf("%w: %d recipients, %d amounts", ErrLengthMismatch, len(recipients), len(amounts))
	case len(recipients) == 0:
		return nil, ErrEmptyBatch
	case len(recipients) > d.cfg.MaxBatchSize:
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(recipients), d.cfg.MaxBatchSize)
	}

	batchID := id.NewBatchID()
	records, err := d.distribute(ctx, category, recipients, amounts, batchID)
	if err != nil {
		return nil, err
	}

	d.emitDistributed(ctx, records)
	total := types.ZeroAmount()
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	d.logger.Info("batch completed",
		"batch_id", batchID.String(),
		"category", category,
		"recipients", len(records),
		"total", total.String(),
	)
	d.plugins.EmitBatchCompleted(ctx, &plugin.BatchCompleted{
		BatchID:    batchID,
		Category:   category,
		Recipients: len(records),
		Total:      total,
		At:         records[0].ReceivedAt,
	})
	return records, nil
}

// distribute validates, records and pays a set of payouts from one category.
func (d *DistributionEngine) distribute(ctx context.Context, name string, recipients []types.Address, amounts []types.Amount, batchID id.BatchID) ([]*distribution.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.category(ctx, name)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, fmt.Errorf("%w: %q", ErrCategoryNotActive, name)
	}

	addrs, total, err := d.validatePayouts(ctx, c, recipients, amounts)
	if err != nil {
		return nil, err
	}

	avail, err := d.available(ctx)
	if err != nil {
		return nil, err
	}
	if avail.LessThan(total) {
		return nil, fmt.Errorf("%w: custody holds %s, payout %s", ErrInsufficientFunds, avail.ClampZero(), total)
	}
	totals, err := d.store.GetDistributionTotals(ctx)
	if err != nil {
		return nil, err
	}

	now := d.now()
	records := make([]*distribution.Recipient, len(addrs))
	transfers := make([]token.Transfer, len(addrs))
	for i, addr := range addrs {
		records[i] = &distribution.Recipient{
			Entity:     types.NewEntityAt(d.clock.Now()),
			ID:         id.NewPayoutID(),
			Address:    addr,
			Category:   c.Name,
			Amount:     amounts[i],
			Received:   true,
			ReceivedAt: now,
			BatchID:    batchID,
		}
		transfers[i] = token.Transfer{To: addr, Amount: amounts[i]}
	}
	c.Distributed = c.Distributed.Add(total)
	c.Recipients += int64(len(records))
	c.Touch(d.clock.Now())
	totals.TotalDistributed = totals.TotalDistributed.Add(total)
	if err := d.store.RecordPayouts(ctx, c, records, totals); err != nil {
		return nil, err
	}

	undo := func(ctx context.Context, failedFrom int) error {
		return d.undoPayouts(ctx, c.Name, transfers[failedFrom:])
	}
	if len(transfers) == 1 {
		err = d.payOut(ctx, transfers[0].To, transfers[0].Amount, func(ctx context.Context) error {
			return undo(ctx, 0)
		})
	} else {
		err = d.payOutBatch(ctx, transfers, undo)
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// validatePayouts checks every payout against the category as it is now and
// returns the normalized addresses and their sum. Callers hold mu.
func (d *DistributionEngine) validatePayouts(ctx context.Context, c *distribution.Category, recipients []types.Address, amounts []types.Amount) ([]types.Address, types.Amount, error) {
	var problems MultiError
	addrs := make([]types.Address, len(recipients))
	seen := make(map[types.Address]int, len(recipients))
	total := types.ZeroAmount()

	for i, raw := range recipients {
		addr := raw.Normalize()
		addrs[i] = addr
		switch {
		case addr.IsZero():
			problems.Add(fmt.Errorf("recipient %d: %w", i, ErrZeroAddress))
			continue
		case !amounts[i].IsPositive():
			problems.Add(fmt.Errorf("recipient %d (%s): %w", i, addr, ErrZeroAmount))
			continue
		}
		if j, dup := seen[addr]; dup {
			problems.Add(fmt.Errorf("recipient %d (%s): %w: also listed at %d", i, addr, ErrAlreadyPaid, j))
			continue
		}
		seen[addr] = i

		if _, err := d.store.GetRecipient(ctx, addr); err == nil {
			problems.Add(fmt.Errorf("recipient %d (%s): %w", i, addr, ErrAlreadyPaid))
			continue
		} else if !IsNotFound(err) {
			return nil, types.Amount{}, err
		}
		total = total.Add(amounts[i])
	}
	if problems.HasErrors() {
		if len(problems.Errors) > 1 {
			d.logger.Debug("payout validation failed",
				"category", c.Name,
				"problems", len(problems.Errors),
			)
		}
		return nil, types.Amount{}, problems.First()
	}

	if c.Distributed.Add(total).GreaterThan(c.Capacity) {
		return nil, types.Amount{}, fmt.Errorf("%w: %q has %s left, payout %s",
			ErrCategoryCapacity, c.Name, c.Remaining(), total)
	}
	if int64(len(addrs)) > c.SlotsLeft() {
		return nil, types.Amount{}, fmt.Errorf("%w: %q has %d slots left, payout needs %d",
			ErrRecipientCapReached, c.Name, c.SlotsLeft(), len(addrs))
	}
	return addrs, total, nil
}

// undoPayouts removes the records of transfers that never happened.
func (d *DistributionEngine) undoPayouts(ctx context.Context, name string, unsent []token.Transfer) error {
	c, err := d.store.GetCategory(ctx, name)
	if err != nil {
		return err
	}
	totals, err := d.store.GetDistributionTotals(ctx)
	if err != nil {
		return err
	}

	amount := token.Total(unsent)
	addrs := make([]types.Address, len(unsent))
	for i, t := range unsent {
		addrs[i] = t.To
	}
	c.Distributed = c.Distributed.Sub(amount)
	c.Recipients -= int64(len(unsent))
	c.Touch(d.clock.Now())
	totals.TotalDistributed = totals.TotalDistributed.Sub(amount)
	return d.store.RevertPayouts(ctx, c, addrs, totals)
}

func (d *DistributionEngine) emitDistributed(ctx context.Context, records []*distribution.Recipient) {
	for _, r := range records {
		d.logger.Info("tokens distributed",
			"payout_id", r.ID.String(),
			"category", r.Category,
			"recipient", r.Address,
			"amount", r.Amount.String(),
		)
		d.plugins.EmitTokensDistributed(ctx, &plugin.TokensDistributed{
			PayoutID:  r.ID,
			BatchID:   r.BatchID,
			Category:  r.Category,
			Recipient: r.Address,
			Amount:    r.Amount,
			At:        r.ReceivedAt,
		})
	}
}

// ──────────────────────────────────────────────────
// Withdrawals
// ──────────────────────────────────────────────────

// WithdrawUnusedTokens sends custody funds not reserved for any category to
// `to`.
func (d *DistributionEngine) WithdrawUnusedTokens(ctx context.Context, caller, to types.Address, amount types.Amount) error {
	if err := d.requireNotPaused(ctx); err != nil {
		return err
	}
	if err := d.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	if !amount.IsPositive() {
		return ErrZeroAmount
	}
	to = to.Normalize()

	if err := d.withdrawUnused(ctx, to, amount); err != nil {
		return err
	}

	d.logger.Info("unused tokens withdrawn", "to", to, "amount", amount.String())
	d.plugins.EmitUnusedWithdrawn(ctx, &plugin.UnusedWithdrawn{
		To:     to,
		Amount: amount,
		At:     d.now(),
	})
	return nil
}

func (d *DistributionEngine) withdrawUnused(ctx context.Context, to types.Address, amount types.Amount) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	free, err := d.withdrawable(ctx)
	if err != nil {
		return err
	}
	if free.LessThan(amount) {
		return fmt.Errorf("%w: withdrawable %s, requested %s", ErrInsufficientFunds, free, amount)
	}
	return d.payOut(ctx, to, amount, nil)
}

// EmergencyWithdraw sweeps the whole custody balance to `to`.
//
// This is a break-glass operation: it ignores outstanding allocations and
// the global pause, so categories may be left unfunded afterwards.
func (d *DistributionEngine) EmergencyWithdraw(ctx context.Context, caller, to types.Address) (types.Amount, error) {
	if err := d.requireAdmin(ctx, caller); err != nil {
		return types.Amount{}, err
	}
	if to.IsZero() {
		return types.Amount{}, ErrZeroAddress
	}
	to = to.Normalize()

	swept, err := d.sweep(ctx, to)
	if err != nil {
		return types.Amount{}, err
	}

	d.logger.Warn("emergency withdraw swept custody account",
		"account", d.account,
		"to", to,
		"amount", swept.String(),
		"caller", caller,
	)
	d.plugins.EmitEmergencySwept(ctx, &plugin.EmergencySwept{
		Account: d.account,
		To:      to,
		Amount:  swept,
		At:      d.now(),
	})
	return swept, nil
}

func (d *DistributionEngine) sweep(ctx context.Context, to types.Address) (types.Amount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	avail, err := d.available(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	if !avail.IsPositive() {
		return types.Amount{}, ErrNothingToDo
	}
	if err := d.payOut(ctx, to, avail, nil); err != nil {
		return types.Amount{}, err
	}
	return avail, nil
}

// withdrawable is the custody balance beyond outstanding allocations.
// Callers hold mu.
func (d *DistributionEngine) withdrawable(ctx context.Context) (types.Amount, error) {
	totals, err := d.store.GetDistributionTotals(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	avail, err := d.available(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return avail.Sub(totals.Outstanding()).ClampZero(), nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Category returns a category by name.
func (d *DistributionEngine) Category(ctx context.Context, name string) (*distribution.Category, error) {
	return d.category(ctx, name)
}

// Categories lists every category sorted by name.
func (d *DistributionEngine) Categories(ctx context.Context) ([]*distribution.Category, error) {
	return d.store.ListCategories(ctx)
}

// Recipient returns the payout record of an address.
func (d *DistributionEngine) Recipient(ctx context.Context, address types.Address) (*distribution.Recipient, error) {
	return d.store.GetRecipient(ctx, address.Normalize())
}

// Recipients lists a category's payouts in payout order.
func (d *DistributionEngine) Recipients(ctx context.Context, category string, opts distribution.ListOpts) ([]*distribution.Recipient, error) {
	return d.store.ListRecipients(ctx, category, opts)
}

// HasReceived reports whether address was ever paid.
func (d *DistributionEngine) HasReceived(ctx context.Context, address types.Address) (bool, error) {
	_, err := d.store.GetRecipient(ctx, address.Normalize())
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Totals returns the distribution counters.
func (d *DistributionEngine) Totals(ctx context.Context) (distribution.Totals, error) {
	return d.store.GetDistributionTotals(ctx)
}

// Withdrawable returns what WithdrawUnusedTokens could send now.
func (d *DistributionEngine) Withdrawable(ctx context.Context) (types.Amount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withdrawable(ctx)
}
