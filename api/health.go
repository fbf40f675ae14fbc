package api

import (
	"context"
	"log/slog"

	"github.com/jacentio/telemetry-gateway/store"
)

// HealthDetails are the individual readiness checks.
type HealthDetails struct {
	ConnectorReady    bool `json:"connectorReady"`
	APIKeySet         bool `json:"apiKeySet"`
	StorageConfigured bool `json:"storageConfigured"`
	SDKLoaded         bool `json:"sdkLoaded"`
}

// Health is the body of GET /healthz.
type Health struct {
	Ready   bool          `json:"ready"`
	Details HealthDetails `json:"details"`
}

// HealthReporter computes readiness on demand.
type HealthReporter struct {
	connector *store.Connector
	apiKeySet bool
	logger    *slog.Logger
}

// NewHealthReporter creates a HealthReporter.
func NewHealthReporter(connector *store.Connector, apiKeySet bool, logger *slog.Logger) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthReporter{
		connector: connector,
		apiKeySet: apiKeySet,
		logger:    logger,
	}
}

// Report acquires the store if needed and pings the table. Nothing is cached
// between calls.
func (h *HealthReporter) Report(ctx context.Context) Health {
	details := HealthDetails{
		APIKeySet:         h.apiKeySet,
		StorageConfigured: h.connector.Configured(),
		// The DynamoDB client is linked into the binary.
		SDKLoaded: true,
	}

	if details.StorageConfigured {
		st, err := h.connector.Acquire(ctx)
		if err == nil {
			err = st.Ping(ctx)
		}
		if err != nil {
			h.logger.Warn("storage not ready", "error", err)
		}
		details.ConnectorReady = err == nil
	}

	return Health{
		Ready:   details.ConnectorReady && details.APIKeySet && details.StorageConfigured && details.SDKLoaded,
		Details: details,
	}
}
