package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/graphmem/graphmem/shared/config"
)

// StartHTTPServer starts the HTTP/HTTPS server based on the provided
// configuration. It returns the server instance and a channel that signals
// listener errors after startup. An immediate error is returned if setup
// fails before starting the listener.
func StartHTTPServer(ctx context.Context, logger *zap.Logger, cfg *config.Config, mux http.Handler, overwriteListenAddr string) (*http.Server, <-chan error, error) {
	if logger == nil {
		return nil, nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, nil, errors.New("config cannot be nil")
	}
	if mux == nil {
		return nil, nil, errors.New("http handler (mux) cannot be nil")
	}

	listenAddr := overwriteListenAddr
	if listenAddr == "" {
		listenAddr = cfg.ListenAddr()
	}

	server := &http.Server{
		Addr:        listenAddr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Write timeout is left open so long-lived SSE streams are not cut;
		// idle sessions are reaped by the sweep task instead.
		IdleTimeout: 90 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	ssl := cfg.SSL()
	var certFile, keyFile string
	isACME := false

	if ssl.Enabled {
		if ssl.Mode == "acme" {
			isACME = true
			if len(ssl.AcmeDomains) == 0 {
				return nil, nil, errors.New("ACME mode requires at least one domain (config key 'ssl.acme_domains')")
			}
			if err := os.MkdirAll(ssl.AcmeCacheDir, 0700); err != nil {
				return nil, nil, fmt.Errorf("failed to create ACME cache directory '%s': %w", ssl.AcmeCacheDir, err)
			}

			certManager := autocert.Manager{
				Prompt:     autocert.AcceptTOS,
				HostPolicy: autocert.HostWhitelist(ssl.AcmeDomains...),
				Email:      ssl.AcmeEmail,
				Cache:      autocert.DirCache(ssl.AcmeCacheDir),
			}
			server.TLSConfig = certManager.TLSConfig()

			// ACME needs an HTTP listener for the challenge exchange.
			go func() {
				httpChallengeServer := &http.Server{
					Addr:    ":80",
					Handler: certManager.HTTPHandler(nil),
				}
				logger.Info("Starting ACME HTTP challenge listener", zap.String("addr", ":80"))
				if err := httpChallengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("ACME HTTP challenge listener error", zap.Error(err))
				}
			}()
		} else {
			certFile = ssl.CertFile
			keyFile = ssl.KeyFile
			if certFile == "" || keyFile == "" {
				return nil, nil, errors.New("manual SSL mode requires 'ssl.cert_file' and 'ssl.key_file'")
			}
		}
	}

	listenerErrChan := make(chan error, 1)

	go func() {
		defer close(listenerErrChan)

		if ssl.Enabled {
			logger.Info("Starting HTTPS Server", zap.String("addr", listenAddr), zap.Bool("isACME", isACME))
			var err error
			if isACME {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServeTLS(certFile, keyFile)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTPS Server listener error", zap.Error(err))
				listenerErrChan <- err
			} else {
				logger.Info("HTTPS Server listener stopped gracefully")
			}
		} else {
			logger.Info("Starting HTTP Server", zap.String("addr", listenAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP Server listener error", zap.Error(err))
				listenerErrChan <- err
			} else {
				logger.Info("HTTP Server listener stopped gracefully")
			}
		}
	}()

	return server, listenerErrChan, nil
}

// ShutdownHTTPServer attempts a graceful shutdown of the HTTP server.
func ShutdownHTTPServer(ctx context.Context, logger *zap.Logger, server *http.Server) {
	if server == nil {
		logger.Warn("Shutdown requested but server instance is nil")
		return
	}
	logger.Info("Attempting graceful shutdown of HTTP server")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("HTTP server shut down gracefully")
	}
}
