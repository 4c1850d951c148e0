package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/custody"
	"github.com/xraph/custody/distribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/staking"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

// Collection name constants.
const (
	colSchedules  = "custody_vesting_schedules"
	colPositions  = "custody_staking_positions"
	colSettings   = "custody_staking_settings"
	colCategories = "custody_distribution_categories"
	colRecipients = "custody_distribution_recipients"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Totals are derived from the documents. Recipient documents are keyed by
// address, so the one-payout-per-address rule is the _id uniqueness itself.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all custody collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo: %s indexes: %w", custody.ErrMigrationFailed, col, err)
		}
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
	_, err := s.mdb.NewInsert(toScheduleModel(sc)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrScheduleIDConflict
		}
		return fmt.Errorf("custody/mongo: insert schedule: %w", err)
	}
	return nil
}

func (s *Store) UpdateSchedule(ctx context.Context, sc *vesting.Schedule, _ vesting.Totals) error {
	m := toScheduleModel(sc)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/mongo: update schedule: %w", err)
	}
	if res.MatchedCount() == 0 {
		return custody.ErrNotInitialized
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*vesting.Schedule, error) {
	var m scheduleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": scheduleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrNotInitialized
		}
		return nil, fmt.Errorf("custody/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

func (s *Store) ListSchedules(ctx context.Context, beneficiary types.Address, opts vesting.ListOpts) ([]*vesting.Schedule, error) {
	var models []scheduleModel

	filter := bson.M{"beneficiary": beneficiary.String()}
	if !opts.IncludeRevoked {
		filter["revoked"] = false
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "sequence", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: list schedules: %w", err)
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
	n, err := s.mdb.Collection(colSchedules).CountDocuments(ctx, bson.M{"beneficiary": beneficiary.String()})
	if err != nil {
		return 0, fmt.Errorf("custody/mongo: count schedules: %w", err)
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
	if err := s.mdb.NewFind(&models).Filter(bson.M{}).Scan(ctx); err != nil {
		return t, fmt.Errorf("custody/mongo: vesting totals: %w", err)
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
	_, err := s.mdb.NewInsert(toPositionModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyActive
		}
		return fmt.Errorf("custody/mongo: insert position: %w", err)
	}
	return nil
}

func (s *Store) UpdatePosition(ctx context.Context, p *staking.Position, _ staking.Totals) error {
	m := toPositionModel(p)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyActive
		}
		return fmt.Errorf("custody/mongo: update position: %w", err)
	}
	if res.MatchedCount() == 0 {
		return custody.ErrPositionNotFound
	}
	return nil
}

func (s *Store) GetPosition(ctx context.Context, positionID id.PositionID) (*staking.Position, error) {
	var m positionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": positionID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrPositionNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get position: %w", err)
	}
	return fromPositionModel(&m)
}

func (s *Store) GetActivePosition(ctx context.Context, account types.Address) (*staking.Position, error) {
	var m positionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"account": account.String(), "active": true}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrPositionNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get active position: %w", err)
	}
	return fromPositionModel(&m)
}

func (s *Store) ListPositions(ctx context.Context, account types.Address, opts staking.ListOpts) ([]*staking.Position, error) {
	var models []positionModel

	filter := bson.M{"account": account.String()}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "start_time", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: list positions: %w", err)
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

	var settings stakingSettingsModel
	ok := true
	if err := s.mdb.NewFind(&settings).Filter(bson.M{"_id": 1}).Scan(ctx); err != nil {
		if !isNoDocuments(err) {
			return t, false, fmt.Errorf("custody/mongo: staking settings: %w", err)
		}
		ok = false
	}
	if ok {
		if err := applyStakingSettings(&t, &settings); err != nil {
			return t, false, err
		}
	}

	var models []positionModel
	if err := s.mdb.NewFind(&models).Filter(bson.M{}).Scan(ctx); err != nil {
		return t, false, fmt.Errorf("custody/mongo: staking totals: %w", err)
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
	m := toStakingSettingsModel(totals)
	_, err := s.mdb.Collection(colSettings).ReplaceOne(ctx,
		bson.M{"_id": m.ID},
		m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("custody/mongo: save staking settings: %w", err)
	}
	return nil
}

// ==================== Distribution Store ====================

func (s *Store) InsertCategory(ctx context.Context, c *distribution.Category, _ distribution.Totals) error {
	_, err := s.mdb.NewInsert(toCategoryModel(c)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/mongo: insert category: %w", err)
	}
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *distribution.Category) error {
	res, err := s.mdb.NewUpdate((*categoryModel)(nil)).
		Filter(bson.M{"name": c.Name}).
		Set("active", c.Active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/mongo: update category: %w", err)
	}
	if res.MatchedCount() == 0 {
		return custody.ErrCategoryNotFound
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, name string) (*distribution.Category, error) {
	var m categoryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get category: %w", err)
	}
	c, err := fromCategoryModel(&m)
	if err != nil {
		return nil, err
	}
	return c, s.fillCategoryUsage(ctx, c)
}

func (s *Store) ListCategories(ctx context.Context) ([]*distribution.Category, error) {
	var models []categoryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "name", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody/mongo: list categories: %w", err)
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

// RecordPayouts inserts the recipients one by one. MongoDB has no
// multi-document atomicity without a session, so a duplicate found midway
// removes the documents this call already wrote.
func (s *Store) RecordPayouts(ctx context.Context, c *distribution.Category, recipients []*distribution.Recipient, _ distribution.Totals) error {
	if _, err := s.GetCategory(ctx, c.Name); err != nil {
		return err
	}

	written := make([]types.Address, 0, len(recipients))
	for _, r := range recipients {
		_, err := s.mdb.NewInsert(toRecipientModel(r)).Exec(ctx)
		if err == nil {
			written = append(written, r.Address)
			continue
		}
		if undoErr := s.RevertPayouts(context.WithoutCancel(ctx), c, written, distribution.Totals{}); undoErr != nil {
			return errors.Join(fmt.Errorf("custody/mongo: record payouts: %w", err), undoErr)
		}
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyPaid
		}
		return fmt.Errorf("custody/mongo: record payouts: %w", err)
	}
	return nil
}

func (s *Store) RevertPayouts(ctx context.Context, c *distribution.Category, addresses []types.Address, _ distribution.Totals) error {
	if len(addresses) == 0 {
		return nil
	}
	addrs := make([]string, len(addresses))
	for i, a := range addresses {
		addrs[i] = a.String()
	}
	_, err := s.mdb.Collection(colRecipients).DeleteMany(ctx, bson.M{
		"_id":      bson.M{"$in": addrs},
		"category": c.Name,
	})
	if err != nil {
		return fmt.Errorf("custody/mongo: revert payouts: %w", err)
	}
	return nil
}

func (s *Store) GetRecipient(ctx context.Context, address types.Address) (*distribution.Recipient, error) {
	var m recipientModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": address.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get recipient: %w", err)
	}
	return fromRecipientModel(&m)
}

func (s *Store) ListRecipients(ctx context.Context, category string, opts distribution.ListOpts) ([]*distribution.Recipient, error) {
	var models []recipientModel

	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "received_at", Value: 1}, {Key: "id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: list recipients: %w", err)
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
	if err := s.mdb.NewFind(&categories).Filter(bson.M{}).Scan(ctx); err != nil {
		return t, fmt.Errorf("custody/mongo: distribution totals: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all custody collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSchedules: {
			{
				Keys:    bson.D{{Key: "beneficiary", Value: 1}, {Key: "sequence", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "revoked", Value: 1}}},
		},
		colPositions: {
			{
				Keys: bson.D{{Key: "account", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"active": true}),
			},
			{Keys: bson.D{{Key: "account", Value: 1}, {Key: "start_time", Value: -1}}},
		},
		colCategories: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colRecipients: {
			{
				Keys:    bson.D{{Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "received_at", Value: 1}, {Key: "id", Value: 1}}},
		},
	}
}
