// Package viewer is the read-only HTTP projection of alerts, records and
// templates.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

// Config contains viewer server configuration.
type Config struct {
	Address      string
	QueryTimeout time.Duration // Timeout for storage-backed calls
	// RefreshSeconds is the /view auto-refresh period.
	RefreshSeconds int
	Verbose        bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8000"
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.RefreshSeconds == 0 {
		c.RefreshSeconds = 5
	}
}

// Server is the viewer HTTP server. It only reads from storage.
type Server struct {
	config *Config
	repos  storage.Repositories
	logger *zap.Logger
	server *http.Server
}

// New creates a viewer server.
func New(cfg *Config, repos storage.Repositories, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if repos == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.SetDefaults()

	s := &Server{
		config: cfg,
		repos:  repos,
		logger: logger,
	}
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("viewer listening", zap.String("addr", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down viewer")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}
