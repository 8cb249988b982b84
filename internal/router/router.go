// Package router registers the HTTP routes of the seat locking service.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/flight-seat-lock/internal/handler"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// liveness, readiness and the prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer, checks map[string]handler.Check) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(checks))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RegisterWebhooks mounts the payment provider callback.  It sits outside
// the JWT group; the HMAC signature authenticates it instead.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/webhooks/payments", w.Payment)
}
