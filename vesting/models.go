// Package vesting holds the vesting schedule model and its release math.
//
// All times are whole seconds since the Unix epoch. All amounts are integer
// base units; every division truncates toward zero.
package vesting

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Kind selects the release curve of a schedule.
type Kind string

const (
	// KindLinear accrues continuously from start to start+duration.
	KindLinear Kind = "linear"
	// KindCliff accrues nothing before start+cliff, then accrues linearly
	// over the remaining duration-cliff seconds.
	KindCliff Kind = "cliff"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindLinear || k == KindCliff
}

// Schedule is a beneficiary's claim on a fixed total, unlocked over time.
type Schedule struct {
	types.Entity
	ID          id.ScheduleID `json:"id"`
	Beneficiary types.Address `json:"beneficiary"`
	Sequence    uint64        `json:"sequence"`
	Kind        Kind          `json:"kind"`
	Start       int64         `json:"start"`
	Cliff       int64         `json:"cliff"`
	Duration    int64         `json:"duration"`
	SlicePeriod int64         `json:"slice_period"`
	AmountTotal types.Amount  `json:"amount_total"`
	Released    types.Amount  `json:"released"`
	Initialized bool          `json:"initialized"`
	Revoked     bool          `json:"revoked"`
	RevokedAt   int64         `json:"revoked_at,omitempty"`
}

// VestedAmount returns how much of the total has unlocked at now.
//
// A revoked schedule is frozen: its vested amount is whatever had been
// released when it was revoked.
func (s *Schedule) VestedAmount(now int64) types.Amount {
	if s.Revoked {
		return s.Released
	}
	if now < s.Start {
		return types.ZeroAmount()
	}

	elapsed := now - s.Start
	effective := s.Duration
	if s.Kind == KindCliff {
		if elapsed < s.Cliff {
			return types.ZeroAmount()
		}
		elapsed -= s.Cliff
		effective -= s.Cliff
	}
	if elapsed >= effective {
		return s.AmountTotal
	}

	if s.SlicePeriod > 1 {
		elapsed -= elapsed % s.SlicePeriod
	}

	return s.AmountTotal.MulDiv(types.NewAmount(elapsed), types.NewAmount(effective))
}

// ReleasableAmount returns vested minus already released, never negative.
func (s *Schedule) ReleasableAmount(now int64) types.Amount {
	return s.VestedAmount(now).Sub(s.Released).ClampZero()
}

// Remaining returns the part of the total not yet released.
func (s *Schedule) Remaining() types.Amount {
	return s.AmountTotal.Sub(s.Released)
}

// EndsAt returns the time the full total is vested.
func (s *Schedule) EndsAt() int64 {
	return s.Start + s.Duration
}

// Totals aggregates every schedule held by one vesting custody account.
type Totals struct {
	// Committed is what the custody account still owes beneficiaries.
	Committed types.Amount `json:"committed"`
	// Released is the cumulative amount paid out.
	Released types.Amount `json:"released"`
	// Reclaimed is the unvested remainder freed by revocations.
	Reclaimed types.Amount `json:"reclaimed"`
	// Schedules counts schedules ever created.
	Schedules int64 `json:"schedules"`
}
