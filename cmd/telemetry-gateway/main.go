// Command telemetry-gateway serves the telemetry HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/jacentio/telemetry-gateway/api"
	"github.com/jacentio/telemetry-gateway/internal/config"
	"github.com/jacentio/telemetry-gateway/internal/logging"
	"github.com/jacentio/telemetry-gateway/internal/metrics"
	"github.com/jacentio/telemetry-gateway/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	logger.Info("starting telemetry gateway", "port", cfg.Server.Port, "table", cfg.Storage.TableName)

	if cfg.Auth.APIKey == "" {
		logger.Warn("API_KEY is not set; every telemetry request will be rejected")
	}
	if cfg.Storage.ConnectionString == "" {
		logger.Warn("STORAGE_CONN_STR is not set; telemetry requests will fail until it is configured")
	}
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	gin.SetMode(gin.ReleaseMode)

	connector := store.NewConnector(cfg.Storage.ConnectionString, cfg.StoreConfig(), logger)
	router := api.NewRouter(connector, api.Options{
		APIKey:         cfg.Auth.APIKey,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MetricsEnabled: cfg.Metrics.Enabled,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
}
