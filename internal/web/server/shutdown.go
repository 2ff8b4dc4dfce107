package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hook releases a resource during shutdown
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// GracefulShutdown serves until its context ends, then stops the listener
// and runs the registered hooks in order
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []Hook
}

// NewGracefulShutdown creates a shutdown coordinator
func NewGracefulShutdown(server *Server, timeout time.Duration, logger *zap.Logger) *GracefulShutdown {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GracefulShutdown{server: server, timeout: timeout, logger: logger}
}

// RegisterHook adds a hook. Hooks run in registration order after the
// listener has stopped.
func (gs *GracefulShutdown) RegisterHook(name string, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, Hook{Name: name, Fn: fn})
}

// Run serves until ctx is cancelled (normally by SIGINT/SIGTERM) or the
// server fails, then shuts everything down
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if gs.server.listener == nil {
		if err := gs.server.Listen(); err != nil {
			return err
		}
	}
	gs.logger.Info("http server listening", zap.String("address", gs.server.Addr()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- gs.server.Serve()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		gs.logger.Info("shutdown signal received")
	case serveErr = <-errChan:
		if serveErr != nil {
			gs.logger.Error("http server failed", zap.Error(serveErr))
		}
	}

	if err := gs.Shutdown(); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}

// Shutdown stops the server and runs the hooks. Hook failures are logged
// and the first one is returned.
func (gs *GracefulShutdown) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	var firstErr error
	if err := gs.server.Shutdown(ctx); err != nil {
		gs.logger.Error("http server shutdown failed", zap.Error(err))
		firstErr = fmt.Errorf("server shutdown: %w", err)
	}

	gs.mu.Lock()
	hooks := append([]Hook(nil), gs.hooks...)
	gs.mu.Unlock()

	for _, h := range hooks {
		start := time.Now()
		if err := h.Fn(ctx); err != nil {
			gs.logger.Error("shutdown hook failed", zap.String("hook", h.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", h.Name, err)
			}
			continue
		}
		gs.logger.Info("shutdown hook completed",
			zap.String("hook", h.Name),
			zap.Duration("duration", time.Since(start)))
	}

	gs.logger.Info("shutdown complete")
	return firstErr
}
