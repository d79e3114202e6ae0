package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lpr-service/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

func New(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	gormLogLevel := logger.Warn
	if cfg.Environment == "production" {
		gormLogLevel = logger.Error
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if cfg.DB.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	}
	if cfg.DB.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	}
	if cfg.DB.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := HealthCheck(ctx, database); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(database, cfg.DB.Driver); err != nil {
		return nil, err
	}

	log.Info().Str("driver", cfg.DB.Driver).Msg("database connected and migrated")
	return database, nil
}

func HealthCheck(ctx context.Context, database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres, "":
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}
