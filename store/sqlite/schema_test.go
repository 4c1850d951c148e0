package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody/distribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

// openSchema opens an in-memory database with every table created.
func openSchema(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, ddl := range []string{schedulesDDL, positionsDDL, settingsDDL, categoriesDDL, recipientsDDL} {
		_, err := db.ExecContext(ctx, ddl)
		require.NoError(t, err)
		// Re-running a migration is harmless.
		_, err = db.ExecContext(ctx, ddl)
		require.NoError(t, err)
	}
	return db
}

func TestSchemaCreatesTables(t *testing.T) {
	db := openSchema(t)

	var n int
	err := db.QueryRowContext(context.Background(),
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'custody_%'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	var missing string
	err = db.QueryRowContext(context.Background(),
		`SELECT id FROM custody_vesting_schedules WHERE id = ?`, "vest_none").Scan(&missing)
	assert.True(t, isNoRows(err))
	assert.False(t, isNoRows(nil))
}

func insertSchedule(ctx context.Context, db *sql.DB, m *scheduleModel) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO custody_vesting_schedules
    (id, beneficiary, sequence, kind, start_time, cliff, duration, slice_period, amount_total, released, initialized, revoked, revoked_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Beneficiary, m.Sequence, m.Kind, m.StartTime, m.Cliff, m.Duration, m.SlicePeriod,
		m.AmountTotal, m.Released, m.Initialized, m.Revoked, m.RevokedAt)
	return err
}

func insertPosition(ctx context.Context, db *sql.DB, m *positionModel) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO custody_staking_positions
    (id, account, amount, tier, lock_duration, start_time, last_checkpoint, claimed, active, closed_at, close_reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Account, m.Amount, m.Tier, m.LockDuration, m.StartTime, m.LastCheckpoint, m.Claimed,
		m.Active, m.ClosedAt, m.CloseReason)
	return err
}

func insertCategory(ctx context.Context, db *sql.DB, m *categoryModel) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO custody_distribution_categories (id, name, capacity, recipient_cap, active)
VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Capacity, m.RecipientCap, m.Active)
	return err
}

func insertRecipient(ctx context.Context, db *sql.DB, m *recipientModel) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO custody_distribution_recipients (address, id, category, amount, received, received_at, batch_id)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Address, m.ID, m.Category, m.Amount, m.Received, m.ReceivedAt, m.BatchID)
	return err
}

func testSchedule(beneficiary types.Address, seq uint64) *vesting.Schedule {
	return &vesting.Schedule{
		ID:          id.NewScheduleID("custody:vesting", beneficiary.String(), seq),
		Beneficiary: beneficiary,
		Sequence:    seq,
		Kind:        vesting.KindLinear,
		Duration:    100,
		SlicePeriod: 1,
		AmountTotal: types.NewAmount(100),
		Released:    types.ZeroAmount(),
		Initialized: true,
	}
}

func testPosition(account types.Address, active bool) *staking.Position {
	return &staking.Position{
		ID:             id.NewPositionID(),
		Account:        account,
		Amount:         types.NewAmount(1_000),
		Tier:           staking.TierFlexible,
		Start:          10,
		LastCheckpoint: 10,
		Claimed:        types.ZeroAmount(),
		Active:         active,
	}
}

func TestUniqueViolations(t *testing.T) {
	ctx := context.Background()
	db := openSchema(t)

	t.Run("schedule id", func(t *testing.T) {
		sc := testSchedule("alice", 0)
		require.NoError(t, insertSchedule(ctx, db, toScheduleModel(sc)))
		assert.True(t, isUniqueViolation(insertSchedule(ctx, db, toScheduleModel(sc))))
	})

	t.Run("schedule sequence", func(t *testing.T) {
		m := toScheduleModel(testSchedule("alice", 0))
		m.ID = id.NewScheduleID("custody:other", "alice", 0).String()
		assert.True(t, isUniqueViolation(insertSchedule(ctx, db, m)))
	})

	t.Run("one active position per account", func(t *testing.T) {
		require.NoError(t, insertPosition(ctx, db, toPositionModel(testPosition("bob", true))))
		require.NoError(t, insertPosition(ctx, db, toPositionModel(testPosition("bob", false))))
		assert.True(t, isUniqueViolation(insertPosition(ctx, db, toPositionModel(testPosition("bob", true)))))
	})

	t.Run("category name", func(t *testing.T) {
		c := &distribution.Category{ID: id.NewCategoryID(), Name: "airdrop", Capacity: types.NewAmount(10), RecipientCap: 1, Active: true}
		require.NoError(t, insertCategory(ctx, db, toCategoryModel(c)))
		c.ID = id.NewCategoryID()
		assert.True(t, isUniqueViolation(insertCategory(ctx, db, toCategoryModel(c))))
	})

	t.Run("one payout per address", func(t *testing.T) {
		r := &distribution.Recipient{ID: id.NewPayoutID(), Address: "carol", Category: "airdrop", Amount: types.NewAmount(5), Received: true, ReceivedAt: 20}
		require.NoError(t, insertRecipient(ctx, db, toRecipientModel(r)))
		r.ID = id.NewPayoutID()
		r.Category = "team"
		assert.True(t, isUniqueViolation(insertRecipient(ctx, db, toRecipientModel(r))))
	})

	t.Run("other constraint failures", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `INSERT INTO custody_distribution_categories (id, name) VALUES ('cat_x', NULL)`)
		require.Error(t, err)
		assert.False(t, isUniqueViolation(err))
		assert.False(t, isUniqueViolation(nil))
	})
}

func TestPositionRowRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openSchema(t)

	p := testPosition("dave", false)
	p.Tier = staking.TierLocked6M
	p.LockDuration = staking.TierLocked6M.LockDuration()
	p.Claimed = types.NewAmount(42)
	p.ClosedAt = 99
	p.CloseReason = staking.CloseUnstaked
	require.NoError(t, insertPosition(ctx, db, toPositionModel(p)))

	var m positionModel
	err := db.QueryRowContext(ctx, `
SELECT id, account, amount, tier, lock_duration, start_time, last_checkpoint, claimed, active, closed_at, close_reason
FROM custody_staking_positions WHERE id = ?`, p.ID.String()).Scan(
		&m.ID, &m.Account, &m.Amount, &m.Tier, &m.LockDuration, &m.StartTime, &m.LastCheckpoint,
		&m.Claimed, &m.Active, &m.ClosedAt, &m.CloseReason)
	require.NoError(t, err)

	got, err := fromPositionModel(&m)
	require.NoError(t, err)
	assert.Equal(t, p.ID.String(), got.ID.String())
	assert.Equal(t, staking.TierLocked6M, got.Tier)
	assert.Equal(t, p.LockDuration, got.LockDuration)
	assert.Equal(t, "42", got.Claimed.String())
	assert.False(t, got.Active)
	assert.Equal(t, staking.CloseUnstaked, got.CloseReason)
}

func TestRecipientWithoutBatch(t *testing.T) {
	r := &distribution.Recipient{ID: id.NewPayoutID(), Address: "erin", Category: "team", Amount: types.NewAmount(7), Received: true}
	m := toRecipientModel(r)
	assert.Empty(t, m.BatchID)

	got, err := fromRecipientModel(m)
	require.NoError(t, err)
	assert.True(t, got.BatchID.IsNil())

	m.BatchID = "not-an-id"
	_, err = fromRecipientModel(m)
	assert.Error(t, err)
}

func TestStakingSettings(t *testing.T) {
	totals := staking.NewTotals(map[staking.Tier]int64{staking.TierFlexible: 500, staking.TierLocked12M: 2_000})
	totals.RewardReserve = types.NewAmount(3_000)
	totals.DistributedRewards = types.NewAmount(2_000)

	m, err := toStakingSettingsModel(totals)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ID)

	loaded := staking.NewTotals(nil)
	require.NoError(t, applyStakingSettings(&loaded, m))
	assert.Equal(t, "3000", loaded.RewardReserve.String())
	assert.Equal(t, "2000", loaded.DistributedRewards.String())
	assert.Equal(t, int64(500), loaded.APY[staking.TierFlexible])
	assert.Equal(t, int64(2_000), loaded.APY[staking.TierLocked12M])

	m.APY = "{"
	assert.Error(t, applyStakingSettings(&loaded, m))
}

func TestScheduleModelRejectsBadAmount(t *testing.T) {
	m := toScheduleModel(testSchedule("frank", 0))
	m.AmountTotal = "lots"
	_, err := fromScheduleModel(m)
	assert.Error(t, err)
}
