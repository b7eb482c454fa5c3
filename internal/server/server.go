package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/facesaju/internal/attribution"
	attributiondomain "github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/authorization"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/coupon"
	coupondomain "github.com/smallbiznis/facesaju/internal/coupon/domain"
	"github.com/smallbiznis/facesaju/internal/inference"
	"github.com/smallbiznis/facesaju/internal/observability"
	obsmiddleware "github.com/smallbiznis/facesaju/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/facesaju/internal/observability/metrics"
	obstracing "github.com/smallbiznis/facesaju/internal/observability/tracing"
	"github.com/smallbiznis/facesaju/internal/paygate"
	"github.com/smallbiznis/facesaju/internal/payment"
	paymentdomain "github.com/smallbiznis/facesaju/internal/payment/domain"
	"github.com/smallbiznis/facesaju/internal/payment/webhook"
	"github.com/smallbiznis/facesaju/internal/ratelimit"
	"github.com/smallbiznis/facesaju/internal/receipt"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"github.com/smallbiznis/facesaju/internal/record"
	recorddomain "github.com/smallbiznis/facesaju/internal/record/domain"
	recordservice "github.com/smallbiznis/facesaju/internal/record/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	authorization.Module,
	ratelimit.Module,
	record.Module,
	reconcile.Module,
	coupon.Module,
	payment.Module,
	paygate.Module,
	inference.Module,
	attribution.Module,
	receipt.Module,
	fx.Provide(func(s *recordservice.Service) RecordService { return s }),
	fx.Provide(func(r *reconcile.Service) RecordLoader { return r }),
	fx.Provide(func(s *inference.Service) Analyzer { return s }),
	fx.Provide(func(s *paygate.Service) Gate { return s }),
	fx.Provide(func(s *receipt.Service) ReceiptGenerator { return s }),
	fx.Provide(func(s *webhook.Service) WebhookIngester { return s }),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type RecordService interface {
	Create(ctx context.Context, req recordservice.CreateRequest) (*recorddomain.AnalysisRecord, error)
	Update(ctx context.Context, line, id string, req recordservice.UpdateRequest) (*recorddomain.AnalysisRecord, error)
	Delete(ctx context.Context, line, id string) error
}

type RecordLoader interface {
	Load(ctx context.Context, line, id string) (*reconcile.Result, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req inference.AnalyzeRequest) (*inference.AnalyzeResult, error)
}

type Gate interface {
	View(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error)
	StartTeaser(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error)
	OpenPaywall(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error)
	Close(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error)
	WidgetFailed(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error)
	WidgetReady(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error)
	ApplyCoupon(ctx context.Context, line, id string, slot recorddomain.SlotKey, code, clientKey string) (*paygate.CouponOutcome, error)
	BeginCheckout(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.Checkout, error)
	CompleteSuccess(ctx context.Context, req paygate.SuccessRequest) (*paygate.SuccessResult, error)
	CompleteFail(ctx context.Context, req paygate.FailRequest) (*paygate.FailResult, error)
}

type ReceiptGenerator interface {
	Generate(ctx context.Context, line, id, kind string) (*receipt.Document, error)
}

type WebhookIngester interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obsCfg.ServiceName)...)
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.String("addr", cfg.HTTPAddr), zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine      *gin.Engine
	cfg         config.Config
	clock       clock.Clock
	lines       *recorddomain.Registry
	records     RecordService
	loader      RecordLoader
	analyzer    Analyzer
	gate        Gate
	receipts    ReceiptGenerator
	webhooks    WebhookIngester
	coupons     coupondomain.Service
	payments    paymentdomain.Service
	attribution attributiondomain.Service
	paid        attributiondomain.PaidLister
	authzSvc    authorization.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Clock       clock.Clock
	Lines       *recorddomain.Registry
	Records     RecordService
	Loader      RecordLoader
	Analyzer    Analyzer
	Gate        Gate
	Receipts    ReceiptGenerator
	Webhooks    WebhookIngester
	Coupons     coupondomain.Service
	Payments    paymentdomain.Service
	Attribution attributiondomain.Service
	Paid        attributiondomain.PaidLister
	AuthzSvc    authorization.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		clock:       p.Clock,
		lines:       p.Lines,
		records:     p.Records,
		loader:      p.Loader,
		analyzer:    p.Analyzer,
		gate:        p.Gate,
		receipts:    p.Receipts,
		webhooks:    p.Webhooks,
		coupons:     p.Coupons,
		payments:    p.Payments,
		attribution: p.Attribution,
		paid:        p.Paid,
		authzSvc:    p.AuthzSvc,
	}

	svc.registerRecordRoutes()
	svc.registerPaymentRoutes()
	svc.registerPublicRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRecordRoutes() {
	records := s.engine.Group("/api/records/:line")

	records.POST("", s.CreateRecord)
	records.GET("/:id", s.GetRecord)
	records.PATCH("/:id", s.UpdateRecord)
	records.DELETE("/:id", s.DeleteRecord)
	records.POST("/:id/analyze", s.AnalyzeRecord)

	// -------- Paywall --------
	records.GET("/:id/gate", s.GetGate)
	records.POST("/:id/gate/teaser", s.gateAction(s.gate.StartTeaser))
	records.POST("/:id/gate/paywall", s.gateAction(s.gate.OpenPaywall))
	records.POST("/:id/gate/close", s.gateAction(s.gate.Close))
	records.POST("/:id/gate/widget-failed", s.gateAction(s.gate.WidgetFailed))
	records.POST("/:id/gate/widget-ready", s.gateAction(s.gate.WidgetReady))
	records.POST("/:id/checkout", s.BeginCheckout)
	records.POST("/:id/coupon", s.ApplyCoupon)
	records.GET("/:id/receipt", s.GetReceipt)
}

func (s *Server) registerPaymentRoutes() {
	s.engine.GET("/payment/success", s.PaymentSuccess)
	s.engine.GET("/payment/fail", s.PaymentFail)

	// -------- Payment Webhooks --------
	s.engine.POST("/api/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	api.POST("/coupon/validate", s.ValidateCoupon)
	api.POST("/coupon/use", s.UseCoupon)
	api.POST("/utm/visit", s.RecordVisit)
}

func (s *Server) registerAdminRoutes() {
	s.engine.POST("/admin/auth", s.OperatorLogin)
	s.engine.POST("/admin/logout", s.OperatorLogout)

	admin := s.engine.Group("/admin", s.OperatorRequired())
	{
		admin.GET("/me", s.OperatorMe)

		admin.GET("/coupons", s.authorizeOperator(authorization.ObjectCoupon, authorization.ActionCouponView), s.ListCoupons)
		admin.POST("/coupons", s.authorizeOperator(authorization.ObjectCoupon, authorization.ActionCouponManage), s.CreateCoupon)
		admin.PATCH("/coupons/:id", s.authorizeOperator(authorization.ObjectCoupon, authorization.ActionCouponManage), s.SetCouponActive)
		admin.DELETE("/coupons/:id", s.authorizeOperator(authorization.ObjectCoupon, authorization.ActionCouponManage), s.DeleteCoupon)
		admin.GET("/coupons/:id/usage", s.authorizeOperator(authorization.ObjectCoupon, authorization.ActionCouponView), s.ListCouponUsage)

		admin.GET("/influencers", s.authorizeOperator(authorization.ObjectInfluencer, authorization.ActionInfluencerView), s.ListInfluencers)
		admin.POST("/influencers", s.authorizeOperator(authorization.ObjectInfluencer, authorization.ActionInfluencerManage), s.CreateInfluencer)
		admin.PATCH("/influencers/:id", s.authorizeOperator(authorization.ObjectInfluencer, authorization.ActionInfluencerManage), s.UpdateInfluencer)
		admin.DELETE("/influencers/:id", s.authorizeOperator(authorization.ObjectInfluencer, authorization.ActionInfluencerManage), s.DeleteInfluencer)
		admin.GET("/influencers/:id/payments", s.authorizeOperator(authorization.ObjectInfluencer, authorization.ActionInfluencerView), s.ListInfluencerPayments)

		admin.GET("/settlement", s.authorizeOperator(authorization.ObjectSettlement, authorization.ActionSettlementView), s.GetSettlement)
	}

	super := s.engine.Group("/superadmin", s.OperatorRequired())
	{
		super.GET("/payments", s.authorizeOperator(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPaidAnalyses)
		super.GET("/orders", s.authorizeOperator(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListOrders)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
	s.engine.NoMethod(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
