// Package server exposes the billing workflow engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/taxfolio/billing/internal/account/domain"
	billingdomain "github.com/taxfolio/billing/internal/billing/domain"
	"github.com/taxfolio/billing/internal/clock"
	"github.com/taxfolio/billing/internal/config"
	"github.com/taxfolio/billing/internal/observability"
	obsmiddleware "github.com/taxfolio/billing/internal/observability/logger"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
	"github.com/taxfolio/billing/internal/plan"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	clock      clock.Clock
	catalog    *plan.Catalog
	accounts   accountdomain.Repository
	billingSvc billingdomain.Service
	gateway    paymentdomain.Gateway
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	Clock      clock.Clock
	Catalog    *plan.Catalog
	Accounts   accountdomain.Repository
	BillingSvc billingdomain.Service
	Gateway    paymentdomain.Gateway
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		clock:      p.Clock,
		catalog:    p.Catalog,
		accounts:   p.Accounts,
		billingSvc: p.BillingSvc,
		gateway:    p.Gateway,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/plans", s.ListPlans)

	// -------- Accounts --------
	v1.POST("/accounts", s.CreateAccount)
	v1.GET("/accounts/:id", s.GetAccountByID)

	// -------- Billing workflows --------
	v1.POST("/billing/workflow", s.ProcessWorkflow)
	v1.POST("/billing/payments/:id/complete", s.CompletePayment)
	v1.POST("/billing/payments/:id/refund", s.RefundPayment)
	v1.GET("/billing/metrics", s.GetBillingMetrics)

	// -------- Payment Webhooks --------
	v1.POST("/webhooks/payment/:provider", s.HandlePaymentWebhook)
}
