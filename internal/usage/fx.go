package usage

import (
	"github.com/metergatelabs/metergate/internal/usage/queue"
	"github.com/metergatelabs/metergate/internal/usage/repository"
	"github.com/metergatelabs/metergate/internal/usage/service"
	"go.uber.org/fx"
)

// Module wires the query/repo surface shared by every process.
var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewQueries),
)

// ProducerModule is used by the gateway process.
var ProducerModule = fx.Module("usage.producer",
	fx.Provide(queue.NewProducer),
)

// ConsumerModule is used by the worker process.
var ConsumerModule = fx.Module("usage.consumer",
	fx.Provide(service.NewTracker),
	fx.Provide(queue.NewConsumer),
	fx.Invoke(queue.Register),
)
