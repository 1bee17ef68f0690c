package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS riders (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash BYTEA NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('student', 'driver', 'admin')),
		student_id    TEXT UNIQUE,
		phone         TEXT,
		bus_id        TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS buses (
		id          TEXT PRIMARY KEY,
		bus_id      TEXT NOT NULL UNIQUE,
		bus_number  TEXT NOT NULL UNIQUE,
		route_name  TEXT NOT NULL DEFAULT '',
		capacity    INTEGER NOT NULL DEFAULT 0,
		driver_id   TEXT REFERENCES riders(id) ON DELETE SET NULL,
		driver_name TEXT,
		latitude    DOUBLE PRECISION,
		longitude   DOUBLE PRECISION,
		speed       DOUBLE PRECISION NOT NULL DEFAULT 0,
		accuracy    DOUBLE PRECISION,
		status      TEXT NOT NULL DEFAULT 'offline',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((latitude IS NULL) = (longitude IS NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS buses_driver_id_key ON buses (driver_id) WHERE driver_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS buses_updated_at_idx ON buses (updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS bus_occupants (
		bus_id     TEXT NOT NULL REFERENCES buses(id) ON DELETE CASCADE,
		rider_id   TEXT NOT NULL REFERENCES riders(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (bus_id, rider_id)
	)`,
	`CREATE TABLE IF NOT EXISTS bus_location_history (
		id          BIGSERIAL PRIMARY KEY,
		bus_id      TEXT NOT NULL,
		latitude    DOUBLE PRECISION,
		longitude   DOUBLE PRECISION,
		speed       DOUBLE PRECISION NOT NULL DEFAULT 0,
		status      TEXT NOT NULL,
		source      TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bus_location_history_recorded_at_idx ON bus_location_history (recorded_at)`,
}
