// Package db provides the shared gorm connection for all repositories.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/metergatelabs/metergate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

func New(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		// Unique violations surface as gorm.ErrDuplicatedKey so services can
		// map them to duplicate-period errors.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	var (
		conn *gorm.DB
		err  error
	)
	switch cfg.Database.Driver {
	case "postgres":
		conn, err = gorm.Open(postgres.Open(cfg.Database.DSN), gormCfg)
	case "sqlite":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		conn, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Info("database connected", zap.String("driver", cfg.Database.Driver))
	return conn, nil
}
