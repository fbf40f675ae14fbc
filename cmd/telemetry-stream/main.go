// Command telemetry-stream consumes the telemetry table's DynamoDB stream.
package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/telemetry-gateway/internal/config"
	"github.com/jacentio/telemetry-gateway/internal/logging"
	"github.com/jacentio/telemetry-gateway/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, "json", os.Stdout)
	handler := stream.NewHandler(stream.NewLogExporter(logger), logger)
	lambda.Start(handler.HandleChanges)
}
