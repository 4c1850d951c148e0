// Package memory provides an in-memory Store for tests and single-process
// deployments. Records are copied on the way in and out, so callers never
// share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/custody"
	"github.com/xraph/custody/distribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Vesting storage
	schedules     map[string]*vesting.Schedule
	vestingTotals vesting.Totals

	// Staking storage
	positions     map[string]*staking.Position
	activeByOwner map[types.Address]string
	stakingTotals *staking.Totals

	// Distribution storage
	categories         map[string]*distribution.Category
	recipients         map[types.Address]*distribution.Recipient
	payoutOrder        []types.Address
	distributionTotals distribution.Totals
}

func New() *Store {
	return &Store{
		schedules:     make(map[string]*vesting.Schedule),
		positions:     make(map[string]*staking.Position),
		activeByOwner: make(map[types.Address]string),
		categories:    make(map[string]*distribution.Category),
		recipients:    make(map[types.Address]*distribution.Recipient),
	}
}

// ──────────────────────────────────────────────────
// Vesting
// ──────────────────────────────────────────────────

func (s *Store) InsertSchedule(_ context.Context, sc *vesting.Schedule, totals vesting.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sc.ID.String()]; exists {
		return custody.ErrScheduleIDConflict
	}
	cp := *sc
	s.schedules[sc.ID.String()] = &cp
	s.vestingTotals = totals
	return nil
}

func (s *Store) UpdateSchedule(_ context.Context, sc *vesting.Schedule, totals vesting.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sc.ID.String()]; !exists {
		return custody.ErrNotInitialized
	}
	cp := *sc
	s.schedules[sc.ID.String()] = &cp
	s.vestingTotals = totals
	return nil
}

func (s *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*vesting.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sc, ok := s.schedules[scheduleID.String()]; ok {
		cp := *sc
		return &cp, nil
	}
	return nil, custody.ErrNotInitialized
}

func (s *Store) ListSchedules(_ context.Context, beneficiary types.Address, opts vesting.ListOpts) ([]*vesting.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*vesting.Schedule
	for _, sc := range s.schedules {
		if sc.Beneficiary != beneficiary {
			continue
		}
		if sc.Revoked && !opts.IncludeRevoked {
			continue
		}
		cp := *sc
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountSchedules(_ context.Context, beneficiary types.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n uint64
	for _, sc := range s.schedules {
		if sc.Beneficiary == beneficiary {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetVestingTotals(_ context.Context) (vesting.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vestingTotals, nil
}

// ──────────────────────────────────────────────────
// Staking
// ──────────────────────────────────────────────────

func (s *Store) InsertPosition(_ context.Context, p *staking.Position, totals staking.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Active {
		if _, exists := s.activeByOwner[p.Account]; exists {
			return custody.ErrAlreadyActive
		}
	}
	cp := *p
	s.positions[p.ID.String()] = &cp
	if p.Active {
		s.activeByOwner[p.Account] = p.ID.String()
	}
	s.saveStakingTotalsLocked(totals)
	return nil
}

func (s *Store) UpdatePosition(_ context.Context, p *staking.Position, totals staking.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID.String()]; !exists {
		return custody.ErrPositionNotFound
	}
	if p.Active {
		if other, ok := s.activeByOwner[p.Account]; ok && other != p.ID.String() {
			return custody.ErrAlreadyActive
		}
	}
	cp := *p
	s.positions[p.ID.String()] = &cp
	if p.Active {
		s.activeByOwner[p.Account] = p.ID.String()
	} else if s.activeByOwner[p.Account] == p.ID.String() {
		delete(s.activeByOwner, p.Account)
	}
	s.saveStakingTotalsLocked(totals)
	return nil
}

func (s *Store) GetPosition(_ context.Context, positionID id.PositionID) (*staking.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.positions[positionID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, custody.ErrPositionNotFound
}

func (s *Store) GetActivePosition(_ context.Context, account types.Address) (*staking.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.activeByOwner[account]
	if !ok {
		return nil, custody.ErrPositionNotFound
	}
	cp := *s.positions[key]
	return &cp, nil
}

func (s *Store) ListPositions(_ context.Context, account types.Address, opts staking.ListOpts) ([]*staking.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*staking.Position
	for _, p := range s.positions {
		if p.Account != account {
			continue
		}
		if opts.ActiveOnly && !p.Active {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Start != result[j].Start {
			return result[i].Start > result[j].Start
		}
		return result[i].ID.String() > result[j].ID.String()
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetStakingTotals(_ context.Context) (staking.Totals, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stakingTotals == nil {
		return staking.NewTotals(nil), false, nil
	}
	return s.stakingTotals.Clone(), true, nil
}

func (s *Store) SaveStakingTotals(_ context.Context, totals staking.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveStakingTotalsLocked(totals)
	return nil
}

func (s *Store) saveStakingTotalsLocked(totals staking.Totals) {
	cp := totals.Clone()
	s.stakingTotals = &cp
}

// ──────────────────────────────────────────────────
// Distribution
// ──────────────────────────────────────────────────

func (s *Store) InsertCategory(_ context.Context, c *distribution.Category, totals distribution.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[c.Name]; exists {
		return custody.ErrAlreadyExists
	}
	cp := *c
	s.categories[c.Name] = &cp
	s.distributionTotals = totals
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, c *distribution.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[c.Name]; !exists {
		return custody.ErrCategoryNotFound
	}
	cp := *c
	s.categories[c.Name] = &cp
	return nil
}

func (s *Store) GetCategory(_ context.Context, name string) (*distribution.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.categories[name]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, custody.ErrCategoryNotFound
}

func (s *Store) ListCategories(_ context.Context) ([]*distribution.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*distribution.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) RecordPayouts(_ context.Context, c *distribution.Category, recipients []*distribution.Recipient, totals distribution.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[c.Name]; !exists {
		return custody.ErrCategoryNotFound
	}
	for _, r := range recipients {
		if _, paid := s.recipients[r.Address]; paid {
			return custody.ErrAlreadyPaid
		}
	}

	for _, r := range recipients {
		cp := *r
		s.recipients[r.Address] = &cp
		s.payoutOrder = append(s.payoutOrder, r.Address)
	}
	cp := *c
	s.categories[c.Name] = &cp
	s.distributionTotals = totals
	return nil
}

func (s *Store) RevertPayouts(_ context.Context, c *distribution.Category, addresses []types.Address, totals distribution.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[c.Name]; !exists {
		return custody.ErrCategoryNotFound
	}

	drop := make(map[types.Address]struct{}, len(addresses))
	for _, a := range addresses {
		delete(s.recipients, a)
		drop[a] = struct{}{}
	}
	kept := s.payoutOrder[:0]
	for _, a := range s.payoutOrder {
		if _, ok := drop[a]; !ok {
			kept = append(kept, a)
		}
	}
	s.payoutOrder = kept

	cp := *c
	s.categories[c.Name] = &cp
	s.distributionTotals = totals
	return nil
}

func (s *Store) GetRecipient(_ context.Context, address types.Address) (*distribution.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.recipients[address]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, custody.ErrRecipientNotFound
}

func (s *Store) ListRecipients(_ context.Context, category string, opts distribution.ListOpts) ([]*distribution.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*distribution.Recipient
	for _, a := range s.payoutOrder {
		r := s.recipients[a]
		if category != "" && r.Category != category {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetDistributionTotals(_ context.Context) (distribution.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distributionTotals, nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
