package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

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

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Engine totals are derived from the record tables with aggregate queries,
// so every write touches a single statement and needs no transaction. Only
// the staking APY table and reward reserve live in their own row.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("custody/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", custody.ErrMigrationFailed, err)
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
	_, err := s.pg.NewInsert(toScheduleModel(sc)).Exec(ctx)
	if isUniqueViolation(err) {
		return custody.ErrScheduleIDConflict
	}
	return err
}

func (s *Store) UpdateSchedule(ctx context.Context, sc *vesting.Schedule, _ vesting.Totals) error {
	m := toScheduleModel(sc)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", scheduleID.String()).
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
	q := s.pg.NewSelect(&models).Where("beneficiary = $1", beneficiary.String())
	if !opts.IncludeRevoked {
		q = q.Where("revoked = $2", false)
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
	n, err := s.count(ctx, `SELECT COUNT(*) FROM custody_vesting_schedules WHERE beneficiary = $1`, beneficiary.String())
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (s *Store) GetVestingTotals(ctx context.Context) (vesting.Totals, error) {
	var (
		t   vesting.Totals
		err error
	)
	if t.Committed, err = s.sum(ctx, `
		SELECT COALESCE(SUM(amount_total::NUMERIC - released::NUMERIC), 0)::TEXT
		FROM custody_vesting_schedules WHERE NOT revoked`); err != nil {
		return t, err
	}
	if t.Released, err = s.sum(ctx, `
		SELECT COALESCE(SUM(released::NUMERIC), 0)::TEXT FROM custody_vesting_schedules`); err != nil {
		return t, err
	}
	// A revoked schedule's vested amount is frozen at what it released, so
	// the rest of its total is what revocation reclaimed.
	if t.Reclaimed, err = s.sum(ctx, `
		SELECT COALESCE(SUM(amount_total::NUMERIC - released::NUMERIC), 0)::TEXT
		FROM custody_vesting_schedules WHERE revoked`); err != nil {
		return t, err
	}
	if t.Schedules, err = s.count(ctx, `SELECT COUNT(*) FROM custody_vesting_schedules`); err != nil {
		return t, err
	}
	return t, nil
}

// ==================== Staking Store ====================

func (s *Store) InsertPosition(ctx context.Context, p *staking.Position, _ staking.Totals) error {
	_, err := s.pg.NewInsert(toPositionModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return custody.ErrAlreadyActive
	}
	return err
}

func (s *Store) UpdatePosition(ctx context.Context, p *staking.Position, _ staking.Totals) error {
	m := toPositionModel(p)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", positionID.String()).
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
	err := s.pg.NewSelect(m).
		Where("account = $1", account.String()).
		Where("active = $2", true).
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
	q := s.pg.NewSelect(&models).Where("account = $1", account.String())
	if opts.ActiveOnly {
		q = q.Where("active = $2", true)
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
	if err := s.pg.NewSelect(settings).Where("id = $1", 1).Scan(ctx); err != nil {
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

	var err error
	for _, tier := range staking.Tiers() {
		if t.StakedByTier[tier], err = s.sum(ctx, `
			SELECT COALESCE(SUM(amount::NUMERIC), 0)::TEXT
			FROM custody_staking_positions WHERE active AND tier = $1`, string(tier)); err != nil {
			return t, false, err
		}
		t.TotalStaked = t.TotalStaked.Add(t.StakedByTier[tier])
	}
	if t.ActivePositions, err = s.count(ctx, `SELECT COUNT(*) FROM custody_staking_positions WHERE active`); err != nil {
		return t, false, err
	}
	if t.ClaimedRewards, err = s.sum(ctx, `
		SELECT COALESCE(SUM(claimed::NUMERIC), 0)::TEXT FROM custody_staking_positions`); err != nil {
		return t, false, err
	}
	return t, ok, nil
}

func (s *Store) SaveStakingTotals(ctx context.Context, totals staking.Totals) error {
	_, err := s.pg.NewInsert(toStakingSettingsModel(totals)).
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
	_, err := s.pg.NewInsert(toCategoryModel(c)).Exec(ctx)
	if isUniqueViolation(err) {
		return custody.ErrAlreadyExists
	}
	return err
}

func (s *Store) UpdateCategory(ctx context.Context, c *distribution.Category) error {
	res, err := s.pg.NewUpdate((*categoryModel)(nil)).
		Set("active = $1", c.Active).
		Set("updated_at = $2", now()).
		Where("name = $3", c.Name).
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
	err := s.pg.NewSelect(m).
		Where("name = $1", name).
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
	if err := s.pg.NewSelect(&models).OrderExpr("name ASC").Scan(ctx); err != nil {
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

// fillCategoryUsage derives a category's payout counters from its recipients.
func (s *Store) fillCategoryUsage(ctx context.Context, c *distribution.Category) error {
	var err error
	if c.Distributed, err = s.sum(ctx, `
		SELECT COALESCE(SUM(amount::NUMERIC), 0)::TEXT
		FROM custody_distribution_recipients WHERE category = $1`, c.Name); err != nil {
		return err
	}
	c.Recipients, err = s.count(ctx, `SELECT COUNT(*) FROM custody_distribution_recipients WHERE category = $1`, c.Name)
	return err
}

// RecordPayouts writes every recipient in one multi-row insert, so a single
// already-paid address rejects the whole set.
func (s *Store) RecordPayouts(ctx context.Context, c *distribution.Category, recipients []*distribution.Recipient, _ distribution.Totals) error {
	if _, err := s.GetCategory(ctx, c.Name); err != nil {
		return err
	}
	models := make([]recipientModel, len(recipients))
	for i, r := range recipients {
		models[i] = *toRecipientModel(r)
	}
	_, err := s.pg.NewInsert(&models).Exec(ctx)
	if isUniqueViolation(err) {
		return custody.ErrAlreadyPaid
	}
	return err
}

func (s *Store) RevertPayouts(ctx context.Context, c *distribution.Category, addresses []types.Address, _ distribution.Totals) error {
	addrs := make([]string, len(addresses))
	for i, a := range addresses {
		addrs[i] = a.String()
	}
	_, err := s.pg.NewDelete((*recipientModel)(nil)).
		Where("category = $1", c.Name).
		Where("address = ANY($2)", addrs).
		Exec(ctx)
	return err
}

func (s *Store) GetRecipient(ctx context.Context, address types.Address) (*distribution.Recipient, error) {
	m := new(recipientModel)
	err := s.pg.NewSelect(m).
		Where("address = $1", address.String()).
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
	q := s.pg.NewSelect(&models)
	if category != "" {
		q = q.Where("category = $1", category)
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
	var (
		t   distribution.Totals
		err error
	)
	if t.TotalAllocated, err = s.sum(ctx, `
		SELECT COALESCE(SUM(capacity::NUMERIC), 0)::TEXT FROM custody_distribution_categories`); err != nil {
		return t, err
	}
	if t.TotalDistributed, err = s.sum(ctx, `
		SELECT COALESCE(SUM(amount::NUMERIC), 0)::TEXT FROM custody_distribution_recipients`); err != nil {
		return t, err
	}
	if t.Categories, err = s.count(ctx, `SELECT COUNT(*) FROM custody_distribution_categories`); err != nil {
		return t, err
	}
	return t, nil
}

// ==================== Helpers ====================

// sum runs a query returning one NUMERIC cast to TEXT.
func (s *Store) sum(ctx context.Context, query string, args ...any) (types.Amount, error) {
	var raw string
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &raw); err != nil {
		return types.Amount{}, err
	}
	return types.ParseAmount(raw)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func now() time.Time {
	return time.Now().UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
