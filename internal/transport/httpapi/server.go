package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// ServerConfig: параметры HTTP-сервера.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server: http.Server с аккуратной остановкой.
type Server struct {
	inner   *http.Server
	logger  *log.Entry
	timeout time.Duration
}

// NewServer создаёт сервер для handler.
func NewServer(cfg ServerConfig, handler http.Handler, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "http-server")
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		inner: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		logger:  logger,
		timeout: timeout,
	}
}

// Run слушает addr до отмены ctx, затем останавливает сервер с таймаутом.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.inner.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.inner.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve обслуживает готовый listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", lis.Addr().String()).Info("HTTP server listening")
		errCh <- s.inner.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	if err := s.inner.Shutdown(shutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
