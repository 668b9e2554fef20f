// Package api exposes the HTTP surface: the Alertmanager webhook and a
// health endpoint. The server is intentionally thin; everything interesting
// happens in ingest and behind the queue.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tarkyaio/tarka/pkg/ingest"
	"github.com/tarkyaio/tarka/pkg/models"
)

const shutdownTimeout = 10 * time.Second

// WebhookProcessor turns a webhook payload into queued investigations.
type WebhookProcessor interface {
	Process(ctx context.Context, payload *ingest.WebhookPayload, window string) (models.IngestStats, error)
}

// QueueHealth reports whether the queue connection is alive.
type QueueHealth interface {
	IsConnected() bool
}

// Server is the HTTP server over the webhook processor.
type Server struct {
	processor WebhookProcessor
	queue     QueueHealth
	window    string
	logger    *slog.Logger
	echo      *echo.Echo
	http      *http.Server
}

// NewServer wires routes and middleware. window is the default
// investigation lookback for webhook-triggered runs.
func NewServer(processor WebhookProcessor, queue QueueHealth, window string, logger *slog.Logger) *Server {
	if processor == nil {
		panic("api.NewServer: processor is nil")
	}
	if queue == nil {
		panic("api.NewServer: queue is nil")
	}
	if logger == nil {
		panic("api.NewServer: logger is nil")
	}
	if window == "" {
		window = models.DefaultWindow
	}

	s := &Server{
		processor: processor,
		queue:     queue,
		window:    window,
		logger:    logger.With("component", "api"),
		echo:      echo.New(),
	}
	s.echo.Use(securityHeaders())
	s.echo.POST("/webhook/alertmanager", s.webhookHandler)
	s.echo.GET("/health", s.healthHandler)
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("webhook server stopped")
	return nil
}
