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

		// Domain services required by the consumer
		usage.Module,
		usage.ConsumerModule,

		// Transitive dependencies (tracker aggregates into billing summaries)
		billing.Module,
		principal.Module,
		tier.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
