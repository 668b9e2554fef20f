package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tarkyaio/tarka/pkg/ingest"
)

// webhookHandler handles POST /webhook/alertmanager. The ingest stats come
// back in the response body; a queue failure returns 503 so Alertmanager
// retries the whole delivery.
func (s *Server) webhookHandler(c *echo.Context) error {
	var payload ingest.WebhookPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid webhook payload"})
	}

	stats, err := s.processor.Process(c.Request().Context(), &payload, s.window)
	if err != nil {
		s.logger.Error("webhook processing failed", "error", err, "received", stats.Received)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"error": "enqueue failed, retry delivery",
			"stats": stats,
		})
	}
	return c.JSON(http.StatusOK, stats)
}

// healthHandler handles GET /health. Unauthenticated and minimal: only the
// queue connection is checked, because a dead queue means dropped alerts.
func (s *Server) healthHandler(c *echo.Context) error {
	if !s.queue.IsConnected() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"queue":  "disconnected",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
		"queue":  "connected",
	})
}
