// Package bootstrap brings the schema up at process start. Production
// deployments that manage schema externally disable it via config.
package bootstrap

import (
	"context"

	billingdomain "github.com/metergatelabs/metergate/internal/billing/domain"
	"github.com/metergatelabs/metergate/internal/config"
	principaldomain "github.com/metergatelabs/metergate/internal/principal/domain"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("bootstrap",
	fx.Invoke(EnsureSchema),
)

func EnsureSchema(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !cfg.Database.AutoMigrate {
				return nil
			}
			if err := db.AutoMigrate(
				&principaldomain.Principal{},
				&tierdomain.Tier{},
				&tierdomain.Assignment{},
				&usagedomain.Event{},
				&billingdomain.Summary{},
			); err != nil {
				return err
			}
			log.Info("database schema ensured")
			return nil
		},
	})
}
