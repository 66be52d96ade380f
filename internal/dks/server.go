// Package dks is a stand-in for the data key service, issuing and decrypting
// data keys over the same HTTP contract.
package dks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/hdi-sample-data/internal/monitoring"
)

const defaultShutdownTimeout = 30 * time.Second

// Server represents the data key service server
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *logrus.Entry
}

// Config holds the data key service listener settings
type Config struct {
	BindAddress       string
	LogHealthRequests bool
	ShutdownTimeout   time.Duration // defaults to 30s
}

// NewServer creates a server issuing keys from keys
func NewServer(cfg *Config, keys KeySource) *Server {
	logger := logrus.WithField("component", "dks-server")

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.BindAddress,
			Handler:      NewRouter(keys, logger, cfg.LogHealthRequests),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// NewRouter wires the data key service routes
func NewRouter(keys KeySource, logger *logrus.Entry, logHealthRequests bool) *mux.Router {
	router := mux.NewRouter()
	router.Use(monitoring.HTTPMiddleware)
	router.Use((&requestLogger{logger: logger, logHealthRequests: logHealthRequests}).Middleware)

	handler := NewHandler(keys, logger)
	router.HandleFunc("/datakey", handler.GenerateDataKey).Methods("GET")
	router.HandleFunc("/datakey/actions/decrypt", handler.DecryptDataKey).Methods("POST")
	router.HandleFunc("/healthcheck", handler.Healthcheck).Methods("GET")

	return router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	serverErrChan := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.httpServer.Addr).Info("Starting data key service")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("data key service failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrChan:
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down data key service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Failed to gracefully shutdown data key service")
			return err
		}

		s.logger.Info("Data key service stopped")
		return nil
	}
}
