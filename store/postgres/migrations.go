package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Custody store.
var Migrations = migrate.NewGroup("custody")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_custody_vesting_schedules",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_vesting_schedules (
    id           TEXT PRIMARY KEY,
    beneficiary  TEXT NOT NULL,
    sequence     BIGINT NOT NULL,
    kind         TEXT NOT NULL,
    start_time   BIGINT NOT NULL,
    cliff        BIGINT NOT NULL DEFAULT 0,
    duration     BIGINT NOT NULL,
    slice_period BIGINT NOT NULL DEFAULT 1,
    amount_total TEXT NOT NULL,
    released     TEXT NOT NULL DEFAULT '0',
    initialized  BOOLEAN NOT NULL DEFAULT TRUE,
    revoked      BOOLEAN NOT NULL DEFAULT FALSE,
    revoked_at   BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_schedules_seq ON custody_vesting_schedules (beneficiary, sequence);
CREATE INDEX IF NOT EXISTS idx_custody_schedules_revoked ON custody_vesting_schedules (revoked);
`)
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
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_staking_positions (
    id              TEXT PRIMARY KEY,
    account         TEXT NOT NULL,
    amount          TEXT NOT NULL,
    tier            TEXT NOT NULL,
    lock_duration   BIGINT NOT NULL DEFAULT 0,
    start_time      BIGINT NOT NULL,
    last_checkpoint BIGINT NOT NULL,
    claimed         TEXT NOT NULL DEFAULT '0',
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    closed_at       BIGINT NOT NULL DEFAULT 0,
    close_reason    TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_positions_active ON custody_staking_positions (account) WHERE active;
CREATE INDEX IF NOT EXISTS idx_custody_positions_account ON custody_staking_positions (account, start_time DESC);
`)
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
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_staking_settings (
    id                  INT PRIMARY KEY,
    reward_reserve      TEXT NOT NULL DEFAULT '0',
    distributed_rewards TEXT NOT NULL DEFAULT '0',
    apy                 JSONB NOT NULL DEFAULT '{}',
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
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
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_distribution_categories (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    capacity      TEXT NOT NULL,
    recipient_cap BIGINT NOT NULL,
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_categories_name ON custody_distribution_categories (name);
`)
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
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_distribution_recipients (
    address     TEXT PRIMARY KEY,
    id          TEXT NOT NULL,
    category    TEXT NOT NULL,
    amount      TEXT NOT NULL,
    received    BOOLEAN NOT NULL DEFAULT TRUE,
    received_at BIGINT NOT NULL,
    batch_id    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_recipients_id ON custody_distribution_recipients (id);
CREATE INDEX IF NOT EXISTS idx_custody_recipients_category ON custody_distribution_recipients (category, received_at, id);
CREATE INDEX IF NOT EXISTS idx_custody_recipients_batch ON custody_distribution_recipients (batch_id) WHERE batch_id <> '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_distribution_recipients`)
				return err
			},
		},
	)
}
