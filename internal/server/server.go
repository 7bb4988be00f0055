package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/OnnaSoft/real-sync/internal/billingevent"
	billingeventdomain "github.com/OnnaSoft/real-sync/internal/billingevent/domain"
	"github.com/OnnaSoft/real-sync/internal/billingprovider"
	"github.com/OnnaSoft/real-sync/internal/config"
	"github.com/OnnaSoft/real-sync/internal/observability"
	obsmiddleware "github.com/OnnaSoft/real-sync/internal/observability/logger"
	obsmetrics "github.com/OnnaSoft/real-sync/internal/observability/metrics"
	obstracing "github.com/OnnaSoft/real-sync/internal/observability/tracing"
	"github.com/OnnaSoft/real-sync/internal/ratelimit"
	"github.com/OnnaSoft/real-sync/internal/subscription"
	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	"github.com/OnnaSoft/real-sync/internal/tunnel"
	"github.com/OnnaSoft/real-sync/internal/usage"
	usagedomain "github.com/OnnaSoft/real-sync/internal/usage/domain"
	"github.com/OnnaSoft/real-sync/internal/user"
	userdomain "github.com/OnnaSoft/real-sync/internal/user/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	billingprovider.Module,
	ratelimit.Module,
	user.Module,
	tunnel.Module,
	subscription.Module,
	billingevent.Module,
	usage.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	userSvc         userdomain.Service
	subscriptionSvc subscriptiondomain.Service
	reconciler      billingeventdomain.Service
	usageSvc        usagedomain.Service
	limiter         *ratelimit.ConsumptionLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	UserSvc         userdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Reconciler      billingeventdomain.Service
	UsageSvc        usagedomain.Service
	Limiter         *ratelimit.ConsumptionLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		log:    p.Log.Named("http.server"),

		userSvc:         p.UserSvc,
		subscriptionSvc: p.SubscriptionSvc,
		reconciler:      p.Reconciler,
		usageSvc:        p.UsageSvc,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerConsumptionRoutes()
	svc.registerUserRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhook", s.HandleStripeWebhook)
	s.engine.POST("/webhooks", s.HandleStripeWebhook)
}

func (s *Server) registerConsumptionRoutes() {
	consumption := s.engine.Group("/consumption", s.ConsumptionKey())
	consumption.POST("/update-consumption", s.ConsumptionRateLimit(), s.UpdateConsumption)
}

func (s *Server) registerUserRoutes() {
	users := s.engine.Group("/users")

	users.POST("/register", s.Register)
	users.POST("/login", s.Login)

	authed := users.Group("", s.BearerAuth())
	{
		authed.POST("/assign-plan", s.AssignPlan)
		authed.POST("/cancel-subscription", s.CancelSubscription)
		authed.GET("/subscription", s.GetSubscription)
	}
}
