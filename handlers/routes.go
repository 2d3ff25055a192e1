package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/otaviobastosmatriz/rh2026/monitoring"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	ServiceName  string
	WebhookToken string
	// ExposeMetrics mounts the Prometheus handler at /metrics.
	ExposeMetrics bool
}

// NewRouter builds the gin engine and wraps it with CORS handling. Pre-flight
// OPTIONS requests are answered by the CORS layer before any route runs.
func NewRouter(cfg RouterConfig, charges *ChargeHandler, webhooks *WebhookHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMetricsMiddleware())

	r.GET("/health", HealthCheck)
	if cfg.ExposeMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.POST("/charges", charges.IssueCharge)
	api.GET("/users/:slug", charges.GetPayer)
	api.GET("/users/:slug/status", charges.GetPaymentStatus)

	hook := RequireWebhookToken(cfg.WebhookToken)
	api.POST("/webhooks/bspay", hook, webhooks.Notify)

	// Paths the profile page already calls.
	fn := r.Group("/functions/v1")
	fn.POST("/generate-pix", charges.IssueCharge)
	fn.POST("/bspay-webhook", hook, webhooks.Notify)
	fn.POST("/bspay-webhook-handler", hook, webhooks.Notify)

	// OPTIONS without the pre-flight headers never reaches the CORS layer's
	// short-circuit; answer it here with the same permissive headers.
	r.OPTIONS("/*path", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", corsAllowedHeaders)
		c.Status(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       strings.Split(corsAllowedHeaders, ", "),
		MaxAge:               int((10 * time.Minute).Seconds()),
		OptionsSuccessStatus: http.StatusOK,
	})
	return c.Handler(r)
}

const corsAllowedHeaders = "authorization, x-client-info, apikey, content-type"

// httpMetricsMiddleware records HTTP request metrics
func httpMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := float64(time.Since(start).Milliseconds())

		monitoring.HTTPServerDuration.Record(c.Request.Context(), duration,
			metric.WithAttributes(
				attribute.String("http_method", c.Request.Method),
				attribute.String("http_route", c.FullPath()),
				attribute.String("http_status_code", strconv.Itoa(c.Writer.Status())),
			),
		)
	}
}
