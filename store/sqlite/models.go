package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/custody/distribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

// Amounts are stored as decimal TEXT. SQLite has no arbitrary-precision
// numeric type, so sums are taken in Go after loading the rows.

// ==================== Vesting models ====================

type scheduleModel struct {
	grove.BaseModel `grove:"table:custody_vesting_schedules"`

	ID          string    `grove:"id,pk"`
	Beneficiary string    `grove:"beneficiary"`
	Sequence    int64     `grove:"sequence"`
	Kind        string    `grove:"kind"`
	StartTime   int64     `grove:"start_time"`
	Cliff       int64     `grove:"cliff"`
	Duration    int64     `grove:"duration"`
	SlicePeriod int64     `grove:"slice_period"`
	AmountTotal string    `grove:"amount_total"`
	Released    string    `grove:"released"`
	Initialized bool      `grove:"initialized"`
	Revoked     bool      `grove:"revoked"`
	RevokedAt   int64     `grove:"revoked_at"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toScheduleModel(s *vesting.Schedule) *scheduleModel {
	return &scheduleModel{
		ID:          s.ID.String(),
		Beneficiary: s.Beneficiary.String(),
		Sequence:    int64(s.Sequence),
		Kind:        string(s.Kind),
		StartTime:   s.Start,
		Cliff:       s.Cliff,
		Duration:    s.Duration,
		SlicePeriod: s.SlicePeriod,
		AmountTotal: s.AmountTotal.String(),
		Released:    s.Released.String(),
		Initialized: s.Initialized,
		Revoked:     s.Revoked,
		RevokedAt:   s.RevokedAt,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func fromScheduleModel(m *scheduleModel) (*vesting.Schedule, error) {
	scheduleID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, err
	}
	total, err := types.ParseAmount(m.AmountTotal)
	if err != nil {
		return nil, err
	}
	released, err := types.ParseAmount(m.Released)
	if err != nil {
		return nil, err
	}

	return &vesting.Schedule{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          scheduleID,
		Beneficiary: types.Address(m.Beneficiary),
		Sequence:    uint64(m.Sequence),
		Kind:        vesting.Kind(m.Kind),
		Start:       m.StartTime,
		Cliff:       m.Cliff,
		Duration:    m.Duration,
		SlicePeriod: m.SlicePeriod,
		AmountTotal: total,
		Released:    released,
		Initialized: m.Initialized,
		Revoked:     m.Revoked,
		RevokedAt:   m.RevokedAt,
	}, nil
}

// ==================== Staking models ====================

type positionModel struct {
	grove.BaseModel `grove:"table:custody_staking_positions"`

	ID             string    `grove:"id,pk"`
	Account        string    `grove:"account"`
	Amount         string    `grove:"amount"`
	Tier           string    `grove:"tier"`
	LockDuration   int64     `grove:"lock_duration"`
	StartTime      int64     `grove:"start_time"`
	LastCheckpoint int64     `grove:"last_checkpoint"`
	Claimed        string    `grove:"claimed"`
	Active         bool      `grove:"active"`
	ClosedAt       int64     `grove:"closed_at"`
	CloseReason    string    `grove:"close_reason"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toPositionModel(p *staking.Position) *positionModel {
	return &positionModel{
		ID:             p.ID.String(),
		Account:        p.Account.String(),
		Amount:         p.Amount.String(),
		Tier:           string(p.Tier),
		LockDuration:   p.LockDuration,
		StartTime:      p.Start,
		LastCheckpoint: p.LastCheckpoint,
		Claimed:        p.Claimed.String(),
		Active:         p.Active,
		ClosedAt:       p.ClosedAt,
		CloseReason:    string(p.CloseReason),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func fromPositionModel(m *positionModel) (*staking.Position, error) {
	positionID, err := id.ParsePositionID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	claimed, err := types.ParseAmount(m.Claimed)
	if err != nil {
		return nil, err
	}

	return &staking.Position{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             positionID,
		Account:        types.Address(m.Account),
		Amount:         amount,
		Tier:           staking.Tier(m.Tier),
		LockDuration:   m.LockDuration,
		Start:          m.StartTime,
		LastCheckpoint: m.LastCheckpoint,
		Claimed:        claimed,
		Active:         m.Active,
		ClosedAt:       m.ClosedAt,
		CloseReason:    staking.CloseReason(m.CloseReason),
	}, nil
}

// stakingSettingsModel holds the staking state that cannot be derived from
// positions. There is exactly one row, keyed 1.
type stakingSettingsModel struct {
	grove.BaseModel `grove:"table:custody_staking_settings"`

	ID                 int       `grove:"id,pk"`
	RewardReserve      string    `grove:"reward_reserve"`
	DistributedRewards string    `grove:"distributed_rewards"`
	APY                string    `grove:"apy"`
	UpdatedAt          time.Time `grove:"updated_at"`
}

func toStakingSettingsModel(t staking.Totals) (*stakingSettingsModel, error) {
	apy := make(map[string]int64, len(t.APY))
	for tier, rate := range t.APY {
		apy[string(tier)] = rate
	}
	raw, err := json.Marshal(apy)
	if err != nil {
		return nil, err
	}
	return &stakingSettingsModel{
		ID:                 1,
		RewardReserve:      t.RewardReserve.String(),
		DistributedRewards: t.DistributedRewards.String(),
		APY:                string(raw),
		UpdatedAt:          now(),
	}, nil
}

// applyStakingSettings copies the stored settings onto t.
func applyStakingSettings(t *staking.Totals, m *stakingSettingsModel) error {
	reserve, err := types.ParseAmount(m.RewardReserve)
	if err != nil {
		return err
	}
	distributed, err := types.ParseAmount(m.DistributedRewards)
	if err != nil {
		return err
	}
	var apy map[string]int64
	if err := json.Unmarshal([]byte(m.APY), &apy); err != nil {
		return err
	}
	t.RewardReserve = reserve
	t.DistributedRewards = distributed
	for tier, rate := range apy {
		t.APY[staking.Tier(tier)] = rate
	}
	return nil
}

// ==================== Distribution models ====================

type categoryModel struct {
	grove.BaseModel `grove:"table:custody_distribution_categories"`

	ID           string    `grove:"id,pk"`
	Name         string    `grove:"name"`
	Capacity     string    `grove:"capacity"`
	RecipientCap int64     `grove:"recipient_cap"`
	Active       bool      `grove:"active"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func toCategoryModel(c *distribution.Category) *categoryModel {
	return &categoryModel{
		ID:           c.ID.String(),
		Name:         c.Name,
		Capacity:     c.Capacity.String(),
		RecipientCap: c.RecipientCap,
		Active:       c.Active,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// fromCategoryModel converts the row. Distributed and Recipients are filled
// in by the caller from the recipients table.
func fromCategoryModel(m *categoryModel) (*distribution.Category, error) {
	categoryID, err := id.ParseCategoryID(m.ID)
	if err != nil {
		return nil, err
	}
	capacity, err := types.ParseAmount(m.Capacity)
	if err != nil {
		return nil, err
	}

	return &distribution.Category{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           categoryID,
		Name:         m.Name,
		Capacity:     capacity,
		Distributed:  types.ZeroAmount(),
		RecipientCap: m.RecipientCap,
		Active:       m.Active,
	}, nil
}

type recipientModel struct {
	grove.BaseModel `grove:"table:custody_distribution_recipients"`

	Address    string    `grove:"address,pk"`
	ID         string    `grove:"id"`
	Category   string    `grove:"category"`
	Amount     string    `grove:"amount"`
	Received   bool      `grove:"received"`
	ReceivedAt int64     `grove:"received_at"`
	BatchID    string    `grove:"batch_id"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toRecipientModel(r *distribution.Recipient) *recipientModel {
	return &recipientModel{
		Address:    r.Address.String(),
		ID:         r.ID.String(),
		Category:   r.Category,
		Amount:     r.Amount.String(),
		Received:   r.Received,
		ReceivedAt: r.ReceivedAt,
		BatchID:    r.BatchID.String(),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func fromRecipientModel(m *recipientModel) (*distribution.Recipient, error) {
	payoutID, err := id.ParsePayoutID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	batchID := id.Nil
	if m.BatchID != "" {
		if batchID, err = id.ParseBatchID(m.BatchID); err != nil {
			return nil, err
		}
	}

	return &distribution.Recipient{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         payoutID,
		Address:    types.Address(m.Address),
		Category:   m.Category,
		Amount:     amount,
		Received:   m.Received,
		ReceivedAt: m.ReceivedAt,
		BatchID:    batchID,
	}, nil
}
