package database

import (
	"fmt"
	"log/slog"

	"idle-economy/internal/config"
	"idle-economy/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database selected by cfg.Driver.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established", "driver", cfg.Driver)
	return db, nil
}

// SQLiteDSN opens path with immediate write transactions so concurrent
// writers queue on the busy timeout instead of failing mid-transaction.
func SQLiteDSN(path string) string {
	return path + "?_txlock=immediate&_busy_timeout=5000"
}

// Migrate creates or updates every table, catalog tables first.
func Migrate(db *gorm.DB) error {
	groups := []struct {
		name   string
		models []any
	}{
		{"catalog", []any{
			&models.UpgradeNodeTemplate{},
			&models.EventTemplate{},
			&models.MarketCommission{},
		}},
		{"progression", []any{
			&models.UserUpgrade{},
			&models.UserEvent{},
			&models.UserEventSettings{},
		}},
		{"ledger", []any{
			&models.PlayerBalance{},
			&models.PlayerItem{},
			&models.PaymentTransaction{},
		}},
		{"market", []any{
			&models.MarketOffer{},
			&models.MarketTransaction{},
		}},
	}

	for _, g := range groups {
		if err := db.AutoMigrate(g.models...); err != nil {
			return fmt.Errorf("migrate %s models: %w", g.name, err)
		}
	}
	slog.Info("database migrations completed")
	return nil
}
