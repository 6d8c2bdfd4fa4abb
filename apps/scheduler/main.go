package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/metergatelabs/metergate/internal/billing"
	"github.com/metergatelabs/metergate/internal/bootstrap"
	"github.com/metergatelabs/metergate/internal/clock"
	"github.com/metergatelabs/metergate/internal/config"
	"github.com/metergatelabs/metergate/internal/observability"
	"github.com/metergatelabs/metergate/internal/principal"
	"github.com/metergatelabs/metergate/internal/redis"
	"github.com/metergatelabs/metergate/internal/scheduler"
	"github.com/metergatelabs/metergate/internal/tier"
	"github.com/metergatelabs/metergate/internal/usage"
	"github.com/metergatelabs/metergate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		observability.MetricsModule,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redis.Module,
		clock.Module,
		bootstrap.Module,

		scheduler.Module,

		// Domain services required by the billing run
		billing.Module,
		usage.Module,
		principal.Module,
		tier.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
