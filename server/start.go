package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph"
	"github.com/graphmem/graphmem/server/extra"
	"github.com/graphmem/graphmem/server/mcp"
	"github.com/graphmem/graphmem/server/mcp/validators"
	"github.com/graphmem/graphmem/server/transport"
	"github.com/graphmem/graphmem/shared/config"
	"github.com/graphmem/graphmem/shared/schema"
)

// build assembles the session manager, provisioner and capabilities shared
// by both transports.
func build(ctx context.Context, logger *zap.Logger, cfg *config.Config, options ...ServerOption) (*ServerBuilder, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	serverInfo := schema.Implementation{
		Name:    cfg.ServerName(),
		Version: cfg.ServerVersion(),
	}
	sessionManager := mcp.NewManager(logger, serverInfo)
	provisioner := graph.NewProvisioner(cfg.DBRelativeDir(), cfg.DBExtension(), logger)

	builder := &ServerBuilder{
		ctx:          ctx,
		logger:       logger,
		cfg:          cfg,
		listenAddr:   cfg.ListenAddr(),
		manager:      sessionManager,
		provisioner:  provisioner,
		mux:          http.NewServeMux(),
		capabilities: nil,
	}

	for _, option := range options {
		if err := option(builder); err != nil {
			return nil, fmt.Errorf("failed to apply server option: %w", err)
		}
	}
	if err := builder.EnsureBaseCapability(); err != nil {
		return nil, err
	}

	sessionManager.AddValidator(validators.CreateDefaultValidators(cfg.MaxRequestSize())...)
	sessionManager.AddCapability(builder.capabilities...)

	metrics := extra.NewMetrics(sessionManager.SessionCount, provisioner.HandleCount)
	sessionManager.Input().SetObserver(metrics.ObserveDispatch)
	builder.mux.Handle(extra.METRICS_PATH, metrics.Handler())

	sessionManager.StartSweeper(ctx, cfg.SweepInterval(), cfg.SessionIdleTimeout())

	return builder, nil
}

// Start brings up the HTTP transport. It returns a listener error channel;
// shutdown is driven by cancelling ctx.
func Start(ctx context.Context, logger *zap.Logger, cfg *config.Config, options ...ServerOption) (<-chan error, error) {
	builder, err := build(ctx, logger, cfg, options...)
	if err != nil {
		return nil, err
	}

	transportInstance, err := transport.New(builder.manager, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	builder.transport = transportInstance
	transportInstance.RegisterHandlers(builder.mux)

	serverInstance, listenerErrChan, startErr := transport.StartHTTPServer(
		ctx,
		logger,
		cfg,
		builder.mux,
		builder.listenAddr,
	)
	if startErr != nil {
		return nil, fmt.Errorf("failed to start HTTP server: %w", startErr)
	}

	go func() {
		select {
		case err, ok := <-listenerErrChan:
			if ok && err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server listener failed", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Shutdown signal received, stopping server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
			defer cancel()
			transport.ShutdownHTTPServer(shutdownCtx, logger, serverInstance)
			builder.manager.Shutdown()
			if err := builder.provisioner.CloseAll(shutdownCtx); err != nil {
				logger.Error("Failed to close database handles", zap.Error(err))
			}
			logger.Info("Server stopped")
		}
	}()

	return listenerErrChan, nil
}

// ServeStdio runs the newline-delimited transport on the given streams and
// blocks until EOF or ctx cancellation.
func ServeStdio(ctx context.Context, logger *zap.Logger, cfg *config.Config, in io.Reader, out io.Writer, options ...ServerOption) error {
	builder, err := build(ctx, logger, cfg, options...)
	if err != nil {
		return err
	}

	stdio, err := transport.NewStdio(builder.manager, cfg, logger, in, out)
	if err != nil {
		return fmt.Errorf("failed to create stdio transport: %w", err)
	}

	serveErr := stdio.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	builder.manager.Shutdown()
	if err := builder.provisioner.CloseAll(shutdownCtx); err != nil {
		logger.Error("Failed to close database handles", zap.Error(err))
	}
	return serveErr
}
