package db

import (
	"fmt"

	"gorm.io/gorm"
)

var postgresMigrations = []string{
	// tb_vehicle - consensus plates with a reference to the evidence image
	`CREATE TABLE IF NOT EXISTS tb_vehicle (
		ve_idx      BIGSERIAL PRIMARY KEY,
		ve_number   TEXT NOT NULL,
		ve_img      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`ALTER TABLE tb_vehicle ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ NOT NULL DEFAULT now();`,
	`CREATE INDEX IF NOT EXISTS idx_tb_vehicle_ve_number ON tb_vehicle(ve_number);`,
	`CREATE INDEX IF NOT EXISTS idx_tb_vehicle_created_at ON tb_vehicle(created_at DESC);`,

	// lpr_scans - one row per server-side scan
	`CREATE TABLE IF NOT EXISTS lpr_scans (
		id               CHAR(36) PRIMARY KEY,
		source           TEXT NOT NULL,
		frame_interval   INT NOT NULL,
		status           TEXT NOT NULL,
		plate            TEXT,
		occurrences      INT NOT NULL DEFAULT 0,
		confidence       DOUBLE PRECISION,
		evidence_frame   BIGINT,
		image_ref        TEXT,
		delivery_error   TEXT,
		read_error       TEXT,
		frames_read      BIGINT NOT NULL DEFAULT 0,
		frames_processed BIGINT NOT NULL DEFAULT 0,
		observations     INT NOT NULL DEFAULT 0,
		candidates       JSONB,
		started_at       TIMESTAMPTZ NOT NULL,
		finished_at      TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_lpr_scans_started_at ON lpr_scans(started_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_lpr_scans_plate ON lpr_scans(plate) WHERE plate IS NOT NULL;`,
}

// MySQL has no IF NOT EXISTS for indexes, so they are declared inline.
var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS tb_vehicle (
		ve_idx      BIGINT AUTO_INCREMENT PRIMARY KEY,
		ve_number   VARCHAR(32) NOT NULL,
		ve_img      VARCHAR(1024) NOT NULL,
		created_at  DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		INDEX idx_tb_vehicle_ve_number (ve_number),
		INDEX idx_tb_vehicle_created_at (created_at)
	) DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS lpr_scans (
		id               CHAR(36) PRIMARY KEY,
		source           TEXT NOT NULL,
		frame_interval   INT NOT NULL,
		status           VARCHAR(32) NOT NULL,
		plate            VARCHAR(32),
		occurrences      INT NOT NULL DEFAULT 0,
		confidence       DOUBLE,
		evidence_frame   BIGINT,
		image_ref        VARCHAR(1024),
		delivery_error   TEXT,
		read_error       TEXT,
		frames_read      BIGINT NOT NULL DEFAULT 0,
		frames_processed BIGINT NOT NULL DEFAULT 0,
		observations     INT NOT NULL DEFAULT 0,
		candidates       JSON,
		started_at       DATETIME(3) NOT NULL,
		finished_at      DATETIME(3) NOT NULL,
		created_at       DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		INDEX idx_lpr_scans_started_at (started_at),
		INDEX idx_lpr_scans_plate (plate)
	) DEFAULT CHARSET=utf8mb4;`,
}

func migrationsFor(driver string) ([]string, error) {
	switch driver {
	case DriverPostgres, "":
		return postgresMigrations, nil
	case DriverMySQL:
		return mysqlMigrations, nil
	default:
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
}

func runMigrations(db *gorm.DB, driver string) error {
	statements, err := migrationsFor(driver)
	if err != nil {
		return err
	}
	for i, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
