package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/graphmem/graphmem/server"
	"github.com/graphmem/graphmem/shared/config"
)

var version = "dev"

var cli struct {
	Config string `help:"Path to the YAML configuration file." short:"c" type:"path"`
	Listen string `help:"Override the listen address, e.g. :3001." short:"l"`
	Stdio  bool   `help:"Serve a single client over stdin/stdout instead of HTTP."`
	Debug  int    `help:"Log verbosity 0-3, overrides the config file." default:"-1"`

	Version kong.VersionFlag `help:"Print version and exit."`
}

const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	kong.Parse(&cli,
		kong.Name("graphmem"),
		kong.Description("Knowledge-graph memory bank served over the Model Context Protocol."),
		kong.Vars{"version": version},
	)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return exitConfig
	}

	debugLevel := cfg.DebugLevel()
	if cli.Debug >= 0 {
		debugLevel = cli.Debug
	}
	logger, err := buildLogger(debugLevel, cfg.LogFile())
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger setup error:", err)
		return exitConfig
	}
	defer func() { _ = logger.Sync() }()

	if cli.Config != "" {
		stopWatch, err := cfg.Watch()
		if err != nil {
			logger.Warn("Config watcher unavailable", zap.Error(err))
		} else {
			defer stopWatch()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	options := []server.ServerOption{
		server.WithListenAddr(cli.Listen),
		server.WithDefaultTools(),
	}

	if cli.Stdio {
		go func() {
			sig := <-signalCh
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		}()
		if err := server.ServeStdio(ctx, logger, cfg, os.Stdin, os.Stdout, options...); err != nil {
			logger.Error("Stdio server failed", zap.Error(err))
			return exitError
		}
		return exitOK
	}

	logger.Info("Starting server", zap.String("address", cfg.ListenAddr()), zap.String("version", version))
	errChan, startErr := server.Start(ctx, logger, cfg, options...)
	if startErr != nil {
		logger.Error("Failed to start server", zap.Error(startErr))
		return exitError
	}

	select {
	case sig := <-signalCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
		<-errChan // wait for the listener to stop
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server listener error", zap.Error(err))
			return exitError
		}
		logger.Info("Server listener closed")
		cancel()
	}
	return exitOK
}

func loadConfig() (*config.Config, error) {
	if cli.Config == "" {
		return config.Default(zap.NewNop()), nil
	}
	return config.Load(cli.Config, zap.NewNop())
}

// buildLogger maps the 0-3 verbosity to zap levels and tees to a rotating
// file when one is configured. Logs go to stderr so the stdio transport owns
// stdout exclusively.
func buildLogger(debugLevel int, logFile string) (*zap.Logger, error) {
	var level zapcore.Level
	switch debugLevel {
	case 0:
		level = zapcore.ErrorLevel
	case 1:
		level = zapcore.InfoLevel
	default:
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotating), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if debugLevel >= 3 {
		logger = logger.WithOptions(zap.Development())
	}
	return logger, nil
}
