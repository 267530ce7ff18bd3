// Package server exposes the chase operations over HTTP.
package server

import (
	"context"
	"net/http"

	billingservice "github.com/chasedesk/chasedesk/internal/billing/service"
	chasedomain "github.com/chasedesk/chasedesk/internal/chase/domain"
	"github.com/chasedesk/chasedesk/internal/clock"
	"github.com/chasedesk/chasedesk/internal/config"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"github.com/chasedesk/chasedesk/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	clock      clock.Clock
	chaseSvc   chasedomain.Service
	billingSvc *billingservice.Service
	repo       invoicedomain.Repository
	sched      *scheduler.Scheduler
	registry   *prometheus.Registry
}

type Params struct {
	fx.In

	Engine     *gin.Engine
	Log        *zap.Logger
	Clock      clock.Clock
	ChaseSvc   chasedomain.Service
	BillingSvc *billingservice.Service
	Repo       invoicedomain.Repository
	Sched      *scheduler.Scheduler
	Registry   *prometheus.Registry
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

func NewServer(p Params) *Server {
	return &Server{
		engine:     p.Engine,
		log:        p.Log.Named("server"),
		clock:      p.Clock,
		chaseSvc:   p.ChaseSvc,
		billingSvc: p.BillingSvc,
		repo:       p.Repo,
		sched:      p.Sched,
		registry:   p.Registry,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	{
		api.GET("/invoices", s.ListInvoices)
		api.GET("/invoices/:id", s.GetInvoice)
		api.POST("/invoices/:id/chase", s.ExpediteChase)
		api.POST("/invoices/:id/pause", s.PauseChase)
		api.POST("/chase/run", s.RunBatch)
	}

	s.engine.POST("/webhooks/billing", s.IngestBillingEvent)
}

func RunHTTP(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
