// Package httpapi wires the HTTP transport (Gin) to the session router,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, structured logging, panic recovery, and
// metrics.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-premium-bot/internal/config"
	"github.com/tbourn/go-premium-bot/internal/http/handlers"
	"github.com/tbourn/go-premium-bot/internal/http/middleware"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability, health endpoints, the webhook installer, and the
// Telegram webhook itself.
func RegisterRoutes(r *gin.Engine, session handlers.UpdateRouter, tele handlers.WebhookManager, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	// Telegram updates are small; anything above 1 MiB is garbage.
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(session, tele, cfg)

	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.GET("/setwebhook", h.SetWebhook)
	r.POST("/webhook/:token", h.Webhook)
}

// limitBody rejects request bodies larger than n bytes.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
