package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/lychee-technology/jsonadm"
	"github.com/lychee-technology/jsonadm/factory"
	"github.com/lychee-technology/jsonadm/internal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", os.Getenv("JSONADM_CONFIG"), "path to the configuration file")
	flag.Parse()

	config, err := jsonadm.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool factory.Pool
	if config.Resource.Store == jsonadm.StorePostgres {
		p, err := factory.NewDatabasePool(ctx, config.Database)
		if err != nil {
			sugar.Fatalf("failed to create database pool: %v", err)
		}
		defer p.Close()
		pool = p
	}

	registry, err := factory.NewRegistryWithConfig(ctx, config, pool)
	if err != nil {
		sugar.Fatalf("failed to create resource managers: %v", err)
	}
	handler, err := internal.NewResourceHandler(registry, config, logger)
	if err != nil {
		sugar.Fatalf("failed to create resource handler: %v", err)
	}

	server := NewServer(handler, registry, config, logger)
	server.RegisterRoutes()

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(config.Server.Port),
		Handler:      server,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("starting server", "port", config.Server.Port, "basePath", config.Server.BasePath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		sugar.Infow("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugar.Errorw("graceful shutdown failed", "error", err)
		}
	}
}

// newLogger builds a production logger with the configured level and encoding.
func newLogger(config jsonadm.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if config.Level != "" {
		level, err := zap.ParseAtomicLevel(config.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	if config.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zcfg.Build()
}
