package principal

import (
	"github.com/metergatelabs/metergate/internal/principal/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("principal",
	fx.Provide(repository.Provide),
)
