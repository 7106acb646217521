package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		email          TEXT NOT NULL UNIQUE,
		gender         TEXT NOT NULL,
		role           TEXT NOT NULL,
		trust_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
		wallet_balance BIGINT NOT NULL DEFAULT 0,
		vehicle_model  TEXT,
		license_plate  TEXT,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rides (
		id              TEXT PRIMARY KEY,
		driver_id       TEXT NOT NULL REFERENCES profiles (id),
		start_location  TEXT NOT NULL,
		destination     TEXT NOT NULL,
		date_time       TIMESTAMPTZ NOT NULL,
		seats_total     INTEGER NOT NULL CHECK (seats_total > 0),
		seats_available INTEGER NOT NULL,
		female_only     BOOLEAN NOT NULL DEFAULT FALSE,
		vibe            TEXT NOT NULL,
		status          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		CHECK (seats_available BETWEEN 0 AND seats_total)
	)`,
	`CREATE INDEX IF NOT EXISTS rides_driver_id_idx ON rides (driver_id)`,
	`CREATE INDEX IF NOT EXISTS rides_status_date_time_idx ON rides (status, date_time)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           TEXT PRIMARY KEY,
		ride_id      TEXT NOT NULL REFERENCES rides (id),
		rider_id     TEXT NOT NULL REFERENCES profiles (id),
		seats_booked INTEGER NOT NULL CHECK (seats_booked > 0),
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		resolved_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_ride_id_idx ON bookings (ride_id)`,
	`CREATE TABLE IF NOT EXISTS ledger_batches (
		idempotency_key TEXT PRIMARY KEY,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq             BIGSERIAL PRIMARY KEY,
		id              TEXT NOT NULL UNIQUE,
		user_id         TEXT NOT NULL,
		type            TEXT NOT NULL,
		amount          BIGINT NOT NULL CHECK (amount > 0),
		ride_id         TEXT,
		idempotency_key TEXT NOT NULL REFERENCES ledger_batches (idempotency_key),
		reverses_key    TEXT,
		description     TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_user_id_idx ON transactions (user_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_ride_id_idx ON transactions (ride_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_idempotency_key_idx ON transactions (idempotency_key)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		id           TEXT PRIMARY KEY,
		from_user_id TEXT NOT NULL,
		to_user_id   TEXT NOT NULL,
		ride_id      TEXT NOT NULL,
		stars        SMALLINT NOT NULL CHECK (stars BETWEEN 1 AND 5),
		review_text  TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		UNIQUE (from_user_id, to_user_id, ride_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ratings_to_user_id_idx ON ratings (to_user_id)`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, q Querier) error {
	for i, stmt := range schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
