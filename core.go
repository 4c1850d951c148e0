package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/custody/access"
	"github.com/xraph/custody/clock"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/token"
	"github.com/xraph/custody/types"
)

// core is the machinery every engine shares: one custody account, the
// collaborators, and the lock that serializes the engine's state phase.
//
// Engine operations follow one shape. Under mu they validate, compute and
// commit to the store. The lock is released while the ledger moves tokens,
// so a ledger that calls back into the engine sees the committed state.
// While tokens are in flight the amount is held in inflight and subtracted
// from the custody balance by every sufficiency check. Deposits are pulled
// before anything is committed, and count as incoming until recorded.
type core struct {
	name    string
	account types.Address
	ledger  token.Ledger
	clock   clock.Clock
	auth    access.Authorizer
	plugins *plugin.Registry
	logger  *slog.Logger

	mu       sync.Mutex
	inflight types.Amount
	incoming types.Amount
}

func (c *core) now() int64 { return clock.Unix(c.clock) }

func (c *core) requireNotPaused(ctx context.Context) error {
	if c.auth.IsPaused(ctx) {
		return ErrPaused
	}
	return nil
}

func (c *core) requireAdmin(ctx context.Context, caller types.Address) error {
	if !c.auth.IsAuthorizedAdmin(ctx, caller.Normalize()) {
		return ErrNotAdmin
	}
	return nil
}

// available returns the custody balance not already promised to an
// in-flight transfer and not belonging to an unrecorded deposit. Callers
// hold mu.
func (c *core) available(ctx context.Context) (types.Amount, error) {
	bal, err := c.ledger.BalanceOf(ctx, c.account)
	if err != nil {
		return types.Amount{}, fmt.Errorf("custody/%s: balance of %s: %w", c.name, c.account, err)
	}
	return bal.Sub(c.inflight).Sub(c.incoming), nil
}

// undoFunc reverses bookkeeping already committed for a transfer that did
// not happen. It runs with mu held.
type undoFunc func(ctx context.Context) error

// unlocked runs fn with mu released and amount added to counter, which is
// inflight or incoming. mu is held again and counter restored when unlocked
// returns, including when fn panics.
func (c *core) unlocked(counter *types.Amount, amount types.Amount, fn func() error) error {
	*counter = counter.Add(amount)
	defer func() { *counter = counter.Sub(amount) }()

	c.mu.Unlock()
	defer c.mu.Lock()
	return fn()
}

// payOut moves amount from the custody account to `to`. Callers hold mu and
// have already committed; mu is released for the duration of the transfer
// and held again on return. On failure undo restores the bookkeeping.
func (c *core) payOut(ctx context.Context, to types.Address, amount types.Amount, undo undoFunc) error {
	err := c.unlocked(&c.inflight, amount, func() error {
		return c.ledger.Transfer(ctx, c.account, to, amount)
	})
	if err != nil {
		return c.rollback(ctx, err, undo)
	}
	return nil
}

// collect pulls amount from `from` into the custody account. The custody
// account is the spender, so `from` must have approved it.
//
// Unlike payOut nothing is committed beforehand: callers record the deposit
// only after collect succeeds. Until then the amount is held in incoming so
// that funds which have landed but are not yet recorded never count as
// available.
func (c *core) collect(ctx context.Context, from types.Address, amount types.Amount) error {
	err := c.unlocked(&c.incoming, amount, func() error {
		return c.ledger.TransferFrom(ctx, c.account, from, c.account, amount)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// refund returns a collected deposit that could not be recorded. cause is the
// error that prevented recording it.
func (c *core) refund(ctx context.Context, to types.Address, amount types.Amount, cause error) error {
	if err := c.payOut(context.WithoutCancel(ctx), to, amount, nil); err != nil {
		c.logger.Error("custody: refund of unrecorded deposit failed",
			"account", c.account,
			"to", to,
			"amount", amount.String(),
			"cause", cause,
			"error", err,
		)
		return errors.Join(cause, err)
	}
	return cause
}

// payOutBatch sends every transfer or, when the ledger cannot do that
// atomically, as many as it can in order. undo receives the index of the
// first transfer that did not happen. Locking follows payOut.
func (c *core) payOutBatch(ctx context.Context, transfers []token.Transfer, undo func(ctx context.Context, failedFrom int) error) error {
	failedFrom := -1
	err := c.unlocked(&c.inflight, token.Total(transfers), func() error {
		if bt, ok := c.ledger.(token.BatchTransferer); ok {
			if err := bt.TransferBatch(ctx, c.account, transfers); err != nil {
				failedFrom = 0
				return err
			}
			return nil
		}
		for i, t := range transfers {
			if err := c.ledger.Transfer(ctx, c.account, t.To, t.Amount); err != nil {
				failedFrom = i
				return err
			}
		}
		return nil
	})
	if failedFrom < 0 {
		return nil
	}
	return c.rollback(ctx, err, func(ctx context.Context) error {
		return undo(ctx, failedFrom)
	})
}

func (c *core) rollback(ctx context.Context, transferErr error, undo undoFunc) error {
	failure := fmt.Errorf("%w: %w", ErrTransferFailed, transferErr)
	if undo == nil {
		return failure
	}
	if uerr := undo(context.WithoutCancel(ctx)); uerr != nil {
		c.logger.Error("custody: rollback after failed transfer did not complete",
			"account", c.account,
			"transfer_error", transferErr,
			"rollback_error", uerr,
		)
		return errors.Join(failure, uerr)
	}
	c.logger.Warn("custody: transfer failed, state rolled back",
		"account", c.account,
		"error", transferErr,
	)
	return failure
}
