package tier

import (
	"github.com/metergatelabs/metergate/internal/tier/repository"
	"github.com/metergatelabs/metergate/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewDirectory),
)
