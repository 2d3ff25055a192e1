package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/otaviobastosmatriz/rh2026/config"
	"github.com/otaviobastosmatriz/rh2026/handlers"
	"github.com/otaviobastosmatriz/rh2026/logging"
	"github.com/otaviobastosmatriz/rh2026/monitoring"
	"github.com/otaviobastosmatriz/rh2026/provider"
	"github.com/otaviobastosmatriz/rh2026/service"
	"github.com/otaviobastosmatriz/rh2026/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize structured logging
	if err := logging.InitLogger(logging.Options{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTELEndpoint,
		ExportOTLP:   cfg.TelemetryEnabled,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logging.Sync()
	defer func() {
		if err := logging.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// Initialize OpenTelemetry
	var tracer trace.Tracer = noop.NewTracerProvider().Tracer(cfg.ServiceName)
	if cfg.TelemetryEnabled {
		tp, t, err := monitoring.InitTracer(cfg.ServiceName, cfg.OTELEndpoint)
		if err != nil {
			logging.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		tracer = t
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logging.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()

		mp, _, err := monitoring.InitMeter(cfg.ServiceName, cfg.OTELEndpoint)
		if err != nil {
			logging.Fatal("Failed to initialize meter", zap.Error(err))
		}
		defer func() {
			if err := mp.Shutdown(context.Background()); err != nil {
				logging.Error("Error shutting down meter provider", zap.Error(err))
			}
		}()
	}

	amount, err := decimal.NewFromString(cfg.Charge.Amount)
	if err != nil || !amount.IsPositive() {
		logging.Fatal("Invalid PIX_AMOUNT", zap.String("value", cfg.Charge.Amount), zap.Error(err))
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal("Failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer st.Close()

	gateway, err := provider.NewBSPayClient(provider.Config{
		BaseURL: cfg.Provider.BaseURL,
		AuthKey: cfg.Provider.AuthKey,
		Timeout: cfg.Provider.Timeout,
	})
	if err != nil {
		logging.Fatal("Failed to configure BSPay client", zap.Error(err))
	}

	settings := service.ChargeSettings{
		Amount:         amount,
		Expiration:     time.Duration(cfg.Charge.ExpirationSeconds) * time.Second,
		PostbackURL:    cfg.Provider.PostbackURL,
		QRImageBaseURL: cfg.Charge.QRImageBaseURL,
	}
	if err := settings.Validate(); err != nil {
		logging.Fatal("Invalid charge settings, check PIX_AMOUNT and BSPAY_POSTBACK_URL", zap.Error(err))
	}

	// Initialize service layer
	chargeService := service.NewChargeService(tracer, gateway, st, settings)
	webhookService := service.NewWebhookService(tracer, st)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterConfig{
		ServiceName:   cfg.ServiceName,
		WebhookToken:  cfg.WebhookToken,
		ExposeMetrics: cfg.TelemetryEnabled,
	}, handlers.NewChargeHandler(chargeService), handlers.NewWebhookHandler(webhookService))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Info("Pix payments service starting",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("amount", amount.StringFixed(2)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Graceful shutdown failed", zap.Error(err))
	}
}
