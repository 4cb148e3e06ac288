package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fuelledger/internal/config"
	customerdomain "github.com/smallbiznis/fuelledger/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	"github.com/smallbiznis/fuelledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/fuelledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/fuelledger/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/fuelledger/internal/payment/domain"
	saledomain "github.com/smallbiznis/fuelledger/internal/sale/domain"
	shiftdomain "github.com/smallbiznis/fuelledger/internal/shift/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
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
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	backend     store.Backend
	shiftSvc    shiftdomain.Service
	saleSvc     saledomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service
	customerSvc customerdomain.Service
	ledgerSvc   ledgerdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Backend     store.Backend `optional:"true"`
	ShiftSvc    shiftdomain.Service
	SaleSvc     saledomain.Service
	InvoiceSvc  invoicedomain.Service
	PaymentSvc  paymentdomain.Service
	CustomerSvc customerdomain.Service
	LedgerSvc   ledgerdomain.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		backend:     p.Backend,
		shiftSvc:    p.ShiftSvc,
		saleSvc:     p.SaleSvc,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
		customerSvc: p.CustomerSvc,
		ledgerSvc:   p.LedgerSvc,
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	// -------- Shifts --------
	api.POST("/shifts", s.StartShift)
	api.POST("/shifts/:id/end", s.EndShift)
	api.GET("/shifts/:id", s.GetShift)
	api.GET("/employees/:id/shift", s.GetCurrentShift)
	api.GET("/stations/:id/shifts", s.ListStationShifts)

	// -------- Sales --------
	api.POST("/sales", s.RecordSale)
	api.GET("/sales/:id", s.GetSale)
	api.GET("/stations/:id/sales", s.ListStationSales)
	api.GET("/stations/:id/cash-sales", s.GetStationCashSales)
	api.GET("/vehicles/:id/sales", s.ListVehicleSales)
	api.GET("/customers/:id/sales", s.ListCustomerSales)

	// -------- Invoices --------
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.GET("/invoices/:id/items", s.GetInvoiceItems)
	api.GET("/customers/:id/invoices", s.ListCustomerInvoices)

	// -------- Payments --------
	api.POST("/payments", s.RecordPayment)
	api.POST("/payments/:id/apply", s.ApplyPayment)
	api.GET("/payments/:id", s.GetPayment)
	api.GET("/customers/:id/payments", s.ListCustomerPayments)

	// -------- Customers --------
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers", s.ListCustomers)
	api.GET("/customers/:id", s.GetCustomerByID)
	api.PATCH("/customers/:id", s.UpdateCustomer)
	api.GET("/customers/:id/ledger", s.ListCustomerLedger)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: errorPayload{
			Type:    "not_found",
			Message: "route not found",
		}})
	})
}

func (s *Server) Health(c *gin.Context) {
	if s.backend == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": s.backend.Name()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": s.backend.Name()})
}
