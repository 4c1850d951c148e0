package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/custody"
	"github.com/xraph/custody/distribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/staking"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// Like the PostgreSQL store, totals are derived from the records rather than
// kept in a counter row.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("custody/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", custody.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Vesting Store ====================

func (s *Store) InsertSchedule(ctx context.Context, sc *vesting.Schedule, _ vesting.Totals) error {
	_, err := s.sdb.NewInsert(toScheduleModel(sc)).Exec(ctx)
	if isUniqueViolation(err) {
		return custody.ErrScheduleIDConflict
	}
	return err
}

func (s *Store) UpdateSchedule(ctx context.Context, sc *vesting.Schedule, _ vesting.Totals) error {
	m := toScheduleModel(sc)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return custody.ErrNotInitialized
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*vesting.Schedule, error) {
	m := new(scheduleModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", scheduleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrNotInitialized
		}
		return nil, err
	}
	return fromScheduleModel(m)
}

func (s *Store) ListSchedules(ctx context.Context, beneficiary types.Address, opts vesting.ListOpts) ([]*vesting.Schedule, error) {
	var models []scheduleModel
	q := s.sdb.NewSelect(&models).Where("beneficiary = ?", beneficiary.String())
	if !opts.IncludeRevoked {
		q = q.Where("revoked = ?", false)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("sequence ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*vesting.Schedule, len(models))
	for i := range models {
		sc, err := fromScheduleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sc
	}
	return result, nil
}

func (s *Store) CountSchedules(ctx context.Context, beneficiary types.Address) (uint64, error) {
	var n int64
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM custody_vesting_schedules WHERE beneficiary = ?`, beneficiary.String()).
		Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (s *Store) GetVestingTotals(ctx context.Context) (vesting.Totals, error) {
	t := vesting.Totals{
		Committed: types.ZeroAmount(),
		Released:  types.ZeroAmount(),
		Reclaimed: types.ZeroAmount(),
	}

	var models []scheduleModel
	if err := s.sdb.NewSelect(&models).Scan(ctx); err != nil {
		return t, err
	}
	for i := range models {
		sc, err := fromScheduleModel(&models[i])
		if err != nil {
			return t, err
		}
		unreleased := sc.AmountTotal.Sub(sc.Released)
		if sc.Revoked {
			t.Reclaimed = t.Reclaimed.Add(unreleased)
		} else {
			t.Committed = t.Committed.Add(unreleased)
		}
		t.Released = t.Released.Add(sc.Released)
		t.Schedules++
	}
	return t, nil
}

// ==================== Staking Store ====================

func (s *Store) InsertPosition(ctx context.Context, p *staking.Position, _ staking.Totals) error {
	_, err := s.sdb.NewInsert(toPositionModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return custody.ErrAlreadyActive
	}
	return err
}

func (s *Store) UpdatePosition(ctx context.Context, p *staking.Position, _ staking.Totals) error {
	m := toPositionModel(p)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return custody.ErrAlreadyActive
		}
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return custody.ErrPositionNotFound
	}
	return nil
}

func (s *Store) GetPosition(ctx context.Context, positionID id.PositionID) (*staking.Position, error) {
	m := new(positionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", positionID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrPositionNotFound
		}
		return nil, err
	}
	return fromPositionModel(m)
}

func (s *Store) GetActivePosition(ctx context.Context, account types.Address) (*staking.Position, error) {
	m := new(positionModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", account.String()).
		Where("active = ?", true).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrPositionNotFound
		}
		return nil, err
	}
	return fromPositionModel(m)
}

func (s *Store) ListPositions(ctx context.Context, account types.Address, opts staking.ListOpts) ([]*staking.Position, error) {
	var models []positionModel
	q := s.sdb.NewSelect(&models).Where("account = ?", account.String())
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("start_time DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*staking.Position, len(models))
	for i := range models {
		p, err := fromPositionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) GetStakingTotals(ctx context.Context) (staking.Totals, bool, error) {
	t := staking.NewTotals(nil)

	settings := new(stakingSettingsModel)
	ok := true
	if err := s.sdb.NewSelect(settings).Where("id = ?", 1).Scan(ctx); err != nil {
		if !isNoRows(err) {
			return t, false, err
		}
		ok = false
	}
	if ok {
		if err := applyStakingSettings(&t, settings); err != nil {
			return t, false, err
		}
	}

	var models []positionModel
	if err := s.sdb.NewSelect(&models).Scan(ctx); err != nil {
		return t, false, err
	}
	for i := range models {
		p, err := fromPositionModel(&models[i])
		if err != nil {
			return t, false, err
		}
		t.ClaimedRewards = t.ClaimedRewards.Add(p.Claimed)
		if !p.Active {
			continue
		}
		t.TotalStaked = t.TotalStaked.Add(p.Amount)
		t.StakedByTier[p.Tier] = t.StakedByTier[p.Tier].Add(p.Amount)
		t.ActivePositions++
	}
	return t, ok, nil
}

func (s *Store) SaveStakingTotals(ctx context.Context, totals staking.Totals) error {
	m, err := toStakingSettingsModel(totals)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("reward_reserve = EXCLUDED.reward_reserve").
		Set("distributed_rewards = EXCLUDED.distributed_rewards").
		Set("apy = EXCLUDED.apy").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Distribution Store ====================

func (s *Store) InsertCategory(ctx context.Context, c *distribution.Category, _ distribution.Totals) error {
	_, err := s.sdb.NewInsert(toCategoryModel(c)).Exec(ctx)
	if isUniqueViolation(err) {
		return custody.ErrAlreadyExists
	}
	return err
}

func (s *Store) UpdateCategory(ctx context.Context, c *distribution.Category) error {
	res, err := s.sdb.NewUpdate((*categoryModel)(nil)).
		Set("active = ?", c.Active).
		Set("updated_at = ?", now()).
		Where("name = ?", c.Name).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return custody.ErrCategoryNotFound
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, name string) (*distribution.Category, error) {
	m := new(categoryModel)
	err := s.sdb.NewSelect(m).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrCategoryNotFound
		}
		return nil, err
	}
	c, err := fromCategoryModel(m)
	if err != nil {
		return nil, err
	}
	return c, s.fillCategoryUsage(ctx, c)
}

func (s *Store) ListCategories(ctx context.Context) ([]*distribution.Category, error) {
	var models []categoryModel
	if err := s.sdb.NewSelect(&models).OrderExpr("name ASC").Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*distribution.Category, len(models))
	for i := range models {
		c, err := fromCategoryModel(&models[i])
		if err != nil {
			return nil, err
		}
		if err := s.fillCategoryUsage(ctx, c); err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) fillCategoryUsage(ctx context.Context, c *distribution.Category) error {
	recipients, err := s.ListRecipients(ctx, c.Name, distribution.ListOpts{})
	if err != nil {
		return err
	}
	for _, r := range recipients {
		c.Distributed = c.Distributed.Add(r.Amount)
	}
	c.Recipients = int64(len(recipients))
	return nil
}

// RecordPayouts inserts every recipient in one statement; SQLite applies a
// multi-row insert atomically, so a duplicate address rejects the whole set.
func (s *Store) RecordPayouts(ctx context.Context, c *distribution.Category, recipients []*distribution.Recipient, _ distribution.Totals) error {
	if _, err := s.GetCategory(ctx, c.Name); err != nil {
		return err
	}
	models := make([]recipientModel, len(recipients))
	for i, r := range recipients {
		models[i] = *toRecipientModel(r)
	}
	_, err := s.sdb.NewInsert(&models).Exec(ctx)
	if isUniqueViolation(err) {
		return custody.ErrAlreadyPaid
	}
	return err
}

func (s *Store) RevertPayouts(ctx context.Context, c *distribution.Category, addresses []types.Address, _ distribution.Totals) error {
	if len(addresses) == 0 {
		return nil
	}
	args := make([]any, 0, len(addresses)+1)
	args = append(args, c.Name)
	for _, a := range addresses {
		args = append(args, a.String())
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(addresses)), ", ")
	_, err := s.sdb.NewRaw(
		`DELETE FROM custody_distribution_recipients WHERE category = ? AND address IN (`+placeholders+`)`,
		args...,
	).Exec(ctx)
	return err
}

func (s *Store) GetRecipient(ctx context.Context, address types.Address) (*distribution.Recipient, error) {
	m := new(recipientModel)
	err := s.sdb.NewSelect(m).
		Where("address = ?", address.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrRecipientNotFound
		}
		return nil, err
	}
	return fromRecipientModel(m)
}

func (s *Store) ListRecipients(ctx context.Context, category string, opts distribution.ListOpts) ([]*distribution.Recipient, error) {
	var models []recipientModel
	q := s.sdb.NewSelect(&models)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("received_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*distribution.Recipient, len(models))
	for i := range models {
		r, err := fromRecipientModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) GetDistributionTotals(ctx context.Context) (distribution.Totals, error) {
	t := distribution.Totals{
		TotalAllocated:   types.ZeroAmount(),
		TotalDistributed: types.ZeroAmount(),
	}

	var categories []categoryModel
	if err := s.sdb.NewSelect(&categories).Scan(ctx); err != nil {
		return t, err
	}
	for i := range categories {
		capacity, err := types.ParseAmount(categories[i].Capacity)
		if err != nil {
			return t, err
		}
		t.TotalAllocated = t.TotalAllocated.Add(capacity)
		t.Categories++
	}

	recipients, err := s.ListRecipients(ctx, "", distribution.ListOpts{})
	if err != nil {
		return t, err
	}
	for _, r := range recipients {
		t.TotalDistributed = t.TotalDistributed.Add(r.Amount)
	}
	return t, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		code := sqlErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	// Without extended result codes both report plain SQLITE_CONSTRAINT.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
