package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mantonx/videoforge/internal/config"
	"github.com/mantonx/videoforge/internal/logger"
)

// Open connects to the configured driver (sqlite for local/dev, postgres
// for a shared deployment) and runs auto-migration for the engine's
// record types.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("database: open failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: sql.DB handle failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&IngestedSource{}, &ProjectRecord{}, &ExportJob{}); err != nil {
		return nil, fmt.Errorf("database: migration failed: %w", err)
	}

	logger.Info("database connected", []logger.Field{logger.String("driver", cfg.Driver)})
	return db, nil
}
