package db

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"go-autoagent/internal/config"
	"go-autoagent/internal/logging"
)

// Open connects to the configured database and migrates models.
func Open(cfg *config.Config, logger *slog.Logger, models ...any) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.Database.DSN)
	default:
		return nil, goerr.New("unsupported database driver", goerr.V("driver", cfg.Database.Driver))
	}

	logger = logging.Component(logger, "db")
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(slog.NewLogLogger(logger.Handler(), slog.LevelWarn), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("driver", cfg.Database.Driver))
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, goerr.Wrap(err, "failed to migrate database")
		}
	}
	logger.Info("database connected and migrated", "driver", dialector.Name(), "models", len(models))
	return db, nil
}
