// @title           Metergate API
// @version         1.0
// @description     Metergate API Monetization Gateway

// @contact.name   API Support
// @contact.email  support@metergate.dev

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api
// @Schemes 	http https

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/metergatelabs/metergate/internal/admission"
	"github.com/metergatelabs/metergate/internal/billing"
	"github.com/metergatelabs/metergate/internal/bootstrap"
	"github.com/metergatelabs/metergate/internal/clock"
	"github.com/metergatelabs/metergate/internal/config"
	"github.com/metergatelabs/metergate/internal/counter"
	"github.com/metergatelabs/metergate/internal/observability"
	"github.com/metergatelabs/metergate/internal/principal"
	"github.com/metergatelabs/metergate/internal/redis"
	"github.com/metergatelabs/metergate/internal/server"
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

		// Core dependencies for the gateway
		counter.Module,
		principal.Module,
		tier.Module,
		admission.Module,
		billing.Module,
		usage.Module,
		usage.ProducerModule,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) error {
			s.RegisterAPIRoutes()
			return s.RegisterGateway()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
