package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/metergatelabs/metergate/internal/admission/domain"
	billingdomain "github.com/metergatelabs/metergate/internal/billing/domain"
	"github.com/metergatelabs/metergate/internal/clock"
	"github.com/metergatelabs/metergate/internal/config"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	log    *zap.Logger
	cfg    config.Config
	db     *gorm.DB
	clock  clock.Clock
	engine *gin.Engine

	admission admissiondomain.Service
	billing   billingdomain.Service
	usage     usagedomain.Queries
	producer  usagedomain.Producer
	tierRepo  tierdomain.Repository
	tiers     tierdomain.Directory
	registry  *prometheus.Registry
}

type ServerParam struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	DB        *gorm.DB
	Clock     clock.Clock
	Engine    *gin.Engine
	Admission admissiondomain.Service
	Billing   billingdomain.Service
	Usage     usagedomain.Queries
	Producer  usagedomain.Producer `optional:"true"`
	TierRepo  tierdomain.Repository
	Directory tierdomain.Directory `optional:"true"`
	Registry  *prometheus.Registry `optional:"true"`
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

func NewServer(p ServerParam) *Server {
	return &Server{
		log:       p.Log.Named("server"),
		cfg:       p.Config,
		db:        p.DB,
		clock:     p.Clock,
		engine:    p.Engine,
		admission: p.Admission,
		billing:   p.Billing,
		usage:     p.Usage,
		producer:  p.Producer,
		tierRepo:  p.TierRepo,
		tiers:     p.Directory,
		registry:  p.Registry,
	}
}

// RegisterGateway mounts the admission-controlled proxy path. Everything
// not claimed by an API route is forwarded upstream.
func (s *Server) RegisterGateway() error {
	proxy, err := s.upstreamProxy()
	if err != nil {
		return err
	}
	s.engine.Use(s.RequestID(), s.AccessLog(), s.PrincipalClaims(), s.Admission())
	s.engine.NoRoute(proxy)
	return nil
}

// RegisterAPIRoutes mounts the billing/usage/tier admin surface plus the
// operational endpoints.
func (s *Server) RegisterAPIRoutes() {
	s.engine.GET("/healthz", s.Healthz)
	if s.registry != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api")
	{
		api.GET("/tiers", s.ListTiers)
		api.GET("/tiers/:id", s.GetTier)
		api.DELETE("/tiers/snapshot/:principal_id", s.InvalidateTierSnapshot)

		api.GET("/usage", s.ListUsage)
		api.GET("/usage/quota", s.GetQuotaStatus)
		api.GET("/usage/stats", s.GetUsageStats)
		api.GET("/usage/count", s.GetUsageCount)

		api.POST("/billing/process", s.ProcessMonthlyBilling)
		api.POST("/billing/process-all", s.ProcessAllPendingBilling)
		api.GET("/billing/:principal_id", s.GetBillingSummaries)
		api.GET("/billing/:principal_id/:year/:month", s.GetBillingSummary)
		api.GET("/billing/:principal_id/:year/:month/calculate", s.CalculateMonthlyBill)
		api.POST("/billing/summaries/:id/paid", s.MarkBillAsPaid)
	}
}

// @Summary      Health
// @Description  Liveness probe
// @Tags         ops
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func RunHTTP(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server listening", zap.String("addr", s.cfg.HTTP.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server terminated", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
