package observability

import (
	"github.com/metergatelabs/metergate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("observability",
	fx.Provide(NewLogger),
)

func NewLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Env == "development" {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
