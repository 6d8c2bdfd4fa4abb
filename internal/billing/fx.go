package billing

import (
	"github.com/metergatelabs/metergate/internal/billing/repository"
	"github.com/metergatelabs/metergate/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
