// Command telemetry-lambda serves the telemetry API behind an API Gateway
// HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
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

	// CloudWatch ingests stdout; JSON keeps the fields queryable.
	logger := logging.New(cfg.Logging.Level, "json", os.Stdout)
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	gin.SetMode(gin.ReleaseMode)

	// The connector outlives a single invocation, so warm containers reuse the client.
	connector := store.NewConnector(cfg.Storage.ConnectionString, cfg.StoreConfig(), logger)
	router := api.NewRouter(connector, api.Options{
		APIKey:         cfg.Auth.APIKey,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MetricsEnabled: cfg.Metrics.Enabled,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
	}, logger)

	lambda.Start(router.HandleAPIGateway)
}
