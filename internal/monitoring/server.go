package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultShutdownTimeout = 10 * time.Second

// Server exposes the generator and data key service metrics for scraping
// while serve-datakeys runs. One-shot commands use WriteToTextfile instead.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *logrus.Entry
}

// Config holds monitoring server configuration
type Config struct {
	BindAddress     string
	MetricsPath     string
	ShutdownTimeout time.Duration // defaults to 10s
}

// NewServer serves the private registry on MetricsPath and a liveness probe on /health
func NewServer(cfg *Config) *Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.BindAddress,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logrus.WithField("component", "metrics-server"),
	}
}

// Handler returns the metrics and health routes
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves metrics until ctx is cancelled. A listener failure is logged;
// the data key service keeps running without metrics.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("address", s.httpServer.Addr).Info("Serving metrics")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Metrics server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}

	s.logger.Info("Metrics server stopped")
	return nil
}
