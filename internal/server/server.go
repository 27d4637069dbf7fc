package server

import (
	"context"
	"net/http"

	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/audit"
	auditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/audit/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/config"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit"
	creditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/organization"
	orgdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/organization/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/ratelimit"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage"
	usagedomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	organization.Module,
	audit.Module,
	usage.Module,
	ratelimit.Module,
	credit.Module,
	fx.Provide(
		NewEngine,
		NewServer,
	),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

type Server struct {
	cfg       config.Config
	log       *zap.Logger
	engine    *gin.Engine
	creditSvc creditdomain.Service
	orgRepo   orgdomain.Repository
	usageRec  usagedomain.Recorder
	auditSvc  auditdomain.Service
}

type ServerParams struct {
	fx.In

	Cfg       config.Config
	Log       *zap.Logger
	Engine    *gin.Engine
	CreditSvc creditdomain.Service
	OrgRepo   orgdomain.Repository
	UsageRec  usagedomain.Recorder
	AuditSvc  auditdomain.Service
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func NewServer(p ServerParams) *Server {
	return &Server{
		cfg:       p.Cfg,
		log:       p.Log.Named("http.server"),
		engine:    p.Engine,
		creditSvc: p.CreditSvc,
		orgRepo:   p.OrgRepo,
		usageRec:  p.UsageRec,
		auditSvc:  p.AuditSvc,
	}
}

func RegisterRoutes(s *Server) {
	v1 := s.engine.Group("/v1", s.ActorRequired())

	credits := v1.Group("/credits")
	credits.POST("/charge", s.Charge)
	credits.GET("/balance", s.GetBalance)
	credits.GET("/cap-status", s.GetCapStatus)
	credits.GET("/ledger", s.ListLedger)

	v1.GET("/usage", s.ListUsage)

	admin := v1.Group("/admin", s.AdminRequired())
	admin.POST("/credits/grant", s.GrantCredits)
	admin.POST("/credits/balance", s.SetExactBalance)
	admin.PUT("/caps", s.UpsertMonthlyCap)
	admin.GET("/audit-logs", s.ListAuditLogs)
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
