// Package memory provides an in-process token ledger for tests, the CLI
// simulator and single-node demos.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/custody/token"
	"github.com/xraph/custody/types"
)

// Compile-time interface checks.
var (
	_ token.Ledger          = (*Ledger)(nil)
	_ token.BatchTransferer = (*Ledger)(nil)
)

// Hook vetoes a single transfer leg by returning an error.
type Hook func(ctx context.Context, from, to types.Address, amount types.Amount) error

// Observer is told about a transfer leg after funds have moved.
type Observer func(ctx context.Context, from, to types.Address, amount types.Amount)

// Ledger keeps balances and allowances in maps.
//
// The before hook runs ahead of any balance change and may veto the leg. The
// after observer runs once funds have moved with no lock held, so it can call
// back into whatever initiated the transfer.
type Ledger struct {
	mu         sync.Mutex
	balances   map[types.Address]types.Amount
	allowances map[types.Address]map[types.Address]types.Amount

	hookMu sync.RWMutex
	before Hook
	after  Observer
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[types.Address]types.Amount),
		allowances: make(map[types.Address]map[types.Address]types.Amount),
	}
}

// Mint credits amount to account out of thin air.
func (l *Ledger) Mint(account types.Address, amount types.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account = account.Normalize()
	l.balances[account] = l.balances[account].Add(amount)
}

// Approve sets the amount spender may move out of owner.
func (l *Ledger) Approve(owner, spender types.Address, amount types.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, spender = owner.Normalize(), spender.Normalize()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[types.Address]types.Amount)
	}
	l.allowances[owner][spender] = amount
}

// Allowance returns what spender may still move out of owner.
func (l *Ledger) Allowance(owner, spender types.Address) types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner.Normalize()][spender.Normalize()]
}

// SetBeforeTransfer installs the veto hook. Pass nil to remove it.
func (l *Ledger) SetBeforeTransfer(h Hook) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.before = h
}

// SetAfterTransfer installs the post-transfer observer. Pass nil to remove it.
func (l *Ledger) SetAfterTransfer(h Observer) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.after = h
}

// BalanceOf implements token.Ledger.
func (l *Ledger) BalanceOf(_ context.Context, account types.Address) (types.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account.Normalize()], nil
}

// Transfer implements token.Ledger.
func (l *Ledger) Transfer(ctx context.Context, from, to types.Address, amount types.Amount) error {
	if err := l.runBefore(ctx, from, to, amount); err != nil {
		return err
	}

	l.mu.Lock()
	err := l.move(from.Normalize(), to.Normalize(), amount)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	l.runAfter(ctx, from, to, amount)
	return nil
}

// TransferFrom implements token.Ledger.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to types.Address, amount types.Amount) error {
	if err := l.runBefore(ctx, from, to, amount); err != nil {
		return err
	}

	l.mu.Lock()
	owner, sp := from.Normalize(), spender.Normalize()
	allowed := l.allowances[owner][sp]
	if allowed.LessThan(amount) {
		l.mu.Unlock()
		return token.ErrInsufficientAllowance
	}
	if err := l.move(owner, to.Normalize(), amount); err != nil {
		l.mu.Unlock()
		return err
	}
	l.allowances[owner][sp] = allowed.Sub(amount)
	l.mu.Unlock()

	l.runAfter(ctx, from, to, amount)
	return nil
}

// TransferBatch implements token.BatchTransferer. Every leg is checked before
// any balance changes.
func (l *Ledger) TransferBatch(ctx context.Context, from types.Address, transfers []token.Transfer) error {
	for _, t := range transfers {
		if err := l.runBefore(ctx, from, t.To, t.Amount); err != nil {
			return err
		}
	}

	l.mu.Lock()
	src := from.Normalize()
	for _, t := range transfers {
		if t.Amount.IsNegative() {
			l.mu.Unlock()
			return token.ErrInvalidAmount
		}
	}
	if l.balances[src].LessThan(token.Total(transfers)) {
		l.mu.Unlock()
		return token.ErrInsufficientBalance
	}
	for _, t := range transfers {
		// Cannot fail: the aggregate balance was checked above.
		_ = l.move(src, t.To.Normalize(), t.Amount) //nolint:errcheck // pre-validated
	}
	l.mu.Unlock()

	for _, t := range transfers {
		l.runAfter(ctx, from, t.To, t.Amount)
	}
	return nil
}

// move shifts amount between accounts. Callers hold l.mu.
func (l *Ledger) move(from, to types.Address, amount types.Amount) error {
	if amount.IsNegative() {
		return token.ErrInvalidAmount
	}
	if l.balances[from].LessThan(amount) {
		return token.ErrInsufficientBalance
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

func (l *Ledger) runBefore(ctx context.Context, from, to types.Address, amount types.Amount) error {
	l.hookMu.RLock()
	h := l.before
	l.hookMu.RUnlock()
	if h == nil {
		return nil
	}
	return h(ctx, from, to, amount)
}

func (l *Ledger) runAfter(ctx context.Context, from, to types.Address, amount types.Amount) {
	l.hookMu.RLock()
	h := l.after
	l.hookMu.RUnlock()
	if h != nil {
		h(ctx, from, to, amount)
	}
}
