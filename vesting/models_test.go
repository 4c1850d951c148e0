package vesting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

const day = int64(86_400)

func linear(total int64) *vesting.Schedule {
	return &vesting.Schedule{
		Kind:        vesting.KindLinear,
		Start:       1_000,
		Duration:    365 * day,
		SlicePeriod: 1,
		AmountTotal: types.NewAmount(total),
		Initialized: true,
	}
}

func TestVestedAmountLinear(t *testing.T) {
	s := linear(100_000)

	tests := []struct {
		name string
		now  int64
		want int64
	}{
		{"before start", 999, 0},
		{"at start", 1_000, 0},
		{"one second", 1_001, 0},
		{"half way", 1_000 + 365*day/2, 50_000},
		{"day 182", 1_000 + 182*day, 49_863},
		{"at end", 1_000 + 365*day, 100_000},
		{"after end", 1_000 + 400*day, 100_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.VestedAmount(tt.now)
			assert.Equal(t, types.NewAmount(tt.want).String(), got.String())
		})
	}
}

func TestVestedAmountCliff(t *testing.T) {
	s := linear(1_000)
	s.Kind = vesting.KindCliff
	s.Cliff = 100 * day

	assert.True(t, s.VestedAmount(s.Start+100*day-1).IsZero(), "nothing before the cliff")
	assert.True(t, s.VestedAmount(s.Start+100*day).IsZero(), "accrual restarts at the cliff")
	assert.True(t, s.VestedAmount(s.Start+101*day).IsPositive())
	assert.Equal(t, "1000", s.VestedAmount(s.EndsAt()).String())

	// 1000 * (50 days) / (265 days), truncated.
	assert.Equal(t, "188", s.VestedAmount(s.Start+150*day).String())
}

func TestVestedAmountCliffEqualsDuration(t *testing.T) {
	s := linear(1_000)
	s.Kind = vesting.KindCliff
	s.Cliff = s.Duration

	assert.True(t, s.VestedAmount(s.EndsAt()-1).IsZero())
	assert.Equal(t, "1000", s.VestedAmount(s.EndsAt()).String())
}

func TestVestedAmountSlicePeriod(t *testing.T) {
	s := linear(365)
	s.SlicePeriod = 30 * day

	assert.True(t, s.VestedAmount(s.Start+29*day).IsZero())
	assert.Equal(t, "30", s.VestedAmount(s.Start+30*day).String())
	assert.Equal(t, "30", s.VestedAmount(s.Start+59*day).String())
	assert.Equal(t, "60", s.VestedAmount(s.Start+60*day).String())
}

func TestVestedAmountMonotoneAndBounded(t *testing.T) {
	s := linear(77_777)
	s.Kind = vesting.KindCliff
	s.Cliff = 17 * day

	prev := types.ZeroAmount()
	for now := s.Start - day; now <= s.EndsAt()+day; now += 3_607 {
		v := s.VestedAmount(now)
		assert.False(t, v.LessThan(prev), "vested decreased at %d", now)
		assert.False(t, v.GreaterThan(s.AmountTotal), "vested exceeds total at %d", now)
		prev = v
	}
}

func TestReleasableAmount(t *testing.T) {
	s := linear(100_000)
	s.Released = types.NewAmount(10_000)

	assert.Equal(t, "40000", s.ReleasableAmount(s.Start+365*day/2).String())
	assert.True(t, s.ReleasableAmount(s.Start).IsZero(), "never negative")
}

func TestRevokedScheduleIsFrozen(t *testing.T) {
	s := linear(100_000)
	s.Released = types.NewAmount(25_000)
	s.Revoked = true

	assert.Equal(t, "25000", s.VestedAmount(s.EndsAt()).String())
	assert.True(t, s.ReleasableAmount(s.EndsAt()).IsZero())
}
