package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Schema statements, one group per table. Each is idempotent.
const (
	schedulesDDL = `
CREATE TABLE IF NOT EXISTS custody_vesting_schedules (
    id           TEXT PRIMARY KEY,
    beneficiary  TEXT NOT NULL,
    sequence     INTEGER NOT NULL,
    kind         TEXT NOT NULL,
    start_time   INTEGER NOT NULL,
    cliff        INTEGER NOT NULL DEFAULT 0,
    duration     INTEGER NOT NULL,
    slice_period INTEGER NOT NULL DEFAULT 1,
    amount_total TEXT NOT NULL,
    released     TEXT NOT NULL DEFAULT '0',
    initialized  INTEGER NOT NULL DEFAULT 1,
    revoked      INTEGER NOT NULL DEFAULT 0,
    revoked_at   INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_schedules_seq ON custody_vesting_schedules (beneficiary, sequence);
CREATE INDEX IF NOT EXISTS idx_custody_schedules_revoked ON custody_vesting_schedules (revoked);
`

	positionsDDL = `
CREATE TABLE IF NOT EXISTS custody_staking_positions (
    id              TEXT PRIMARY KEY,
    account         TEXT NOT NULL,
    amount          TEXT NOT NULL,
    tier            TEXT NOT NULL,
    lock_duration   INTEGER NOT NULL DEFAULT 0,
    start_time      INTEGER NOT NULL,
    last_checkpoint INTEGER NOT NULL,
    claimed         TEXT NOT NULL DEFAULT '0',
    active          INTEGER NOT NULL DEFAULT 1,
    closed_at       INTEGER NOT NULL DEFAULT 0,
    close_reason    TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_positions_active ON custody_staking_positions (account) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_custody_positions_account ON custody_staking_positions (account, start_time);
`

	settingsDDL = `
CREATE TABLE IF NOT EXISTS custody_staking_settings (
    id                  INTEGER PRIMARY KEY,
    reward_reserve      TEXT NOT NULL DEFAULT '0',
    distributed_rewards TEXT NOT NULL DEFAULT '0',
    apy                 TEXT NOT NULL DEFAULT '{}',
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);
`

	categoriesDDL = `
CREATE TABLE IF NOT EXISTS custody_distribution_categories (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    capacity      TEXT NOT NULL,
    recipient_cap INTEGER NOT NULL,
    active        INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_categories_name ON custody_distribution_categories (name);
`

	recipientsDDL = `
CREATE TABLE IF NOT EXISTS custody_distribution_recipients (
    address     TEXT PRIMARY KEY,
    id          TEXT NOT NULL,
    category    TEXT NOT NULL,
    amount      TEXT NOT NULL,
    received    INTEGER NOT NULL DEFAULT 1,
    received_at INTEGER NOT NULL,
    batch_id    TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_recipients_id ON custody_distribution_recipients (id);
CREATE INDEX IF NOT EXISTS idx_custody_recipients_category ON custody_distribution_recipients (category, received_at, id);
CREATE INDEX IF NOT EXISTS idx_custody_recipients_batch ON custody_distribution_recipients (batch_id) WHERE batch_id <> '';
`
)

// Migrations is the grove migration group for the Custody store (SQLite).
var Migrations = migrate.NewGroup("custody")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_custody_vesting_schedules",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, schedulesDDL)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_vesting_schedules`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_staking_positions",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, positionsDDL)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_staking_positions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_staking_settings",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, settingsDDL)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_staking_settings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_distribution_categories",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, categoriesDDL)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_distribution_categories`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_distribution_recipients",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, recipientsDDL)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_distribution_recipients`)
				return err
			},
		},
	)
}
