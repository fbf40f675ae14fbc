// Package stream provides a DynamoDB Streams handler that exports telemetry
// changes.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/telemetry-gateway/internal/metrics"
	"github.com/jacentio/telemetry-gateway/store"
	"github.com/jacentio/telemetry-gateway/telemetry"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// ttlPrincipal is the identity DynamoDB uses for deletes made by TTL expiry.
const ttlPrincipal = "dynamodb.amazonaws.com"

// Change is one decoded stream record. Record holds the new image for inserts
// and modifications and the old image for removals.
type Change struct {
	Event        string
	EventID      string
	PartitionKey string
	RowKey       string
	Record       telemetry.Record
	// Expired is set on removals performed by the TTL service.
	Expired bool
}

// Exporter receives decoded changes.
type Exporter interface {
	Export(ctx context.Context, change Change) error
}

// ExporterFunc adapts a function to the Exporter interface.
type ExporterFunc func(ctx context.Context, change Change) error

// Export calls f.
func (f ExporterFunc) Export(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// LogExporter writes each change as a structured log line.
type LogExporter struct {
	logger *slog.Logger
}

// NewLogExporter creates a LogExporter.
func NewLogExporter(logger *slog.Logger) *LogExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExporter{logger: logger}
}

// Export implements Exporter.
func (e *LogExporter) Export(ctx context.Context, change Change) error {
	e.logger.InfoContext(ctx, "telemetry change",
		"event", change.Event,
		"eventID", change.EventID,
		"partitionKey", change.PartitionKey,
		"rowKey", change.RowKey,
		"expired", change.Expired,
		"fields", len(change.Record.Fields),
	)
	return nil
}

// Handler processes DynamoDB stream events from the telemetry table.
type Handler struct {
	exporter Exporter
	logger   *slog.Logger
}

// NewHandler creates a new stream handler. A nil exporter logs changes.
func NewHandler(exporter Exporter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = NewLogExporter(logger)
	}
	return &Handler{
		exporter: exporter,
		logger:   logger,
	}
}

// HandleChanges exports every record of a stream batch in order.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Lambda retries the batch
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	change, ok, err := decodeChange(record)
	if err != nil {
		return fmt.Errorf("decode %s: %w", record.EventID, err)
	}
	if !ok {
		h.logger.Debug("skipping stream record", "eventID", record.EventID, "event", record.EventName)
		return nil
	}

	if err := h.exporter.Export(ctx, change); err != nil {
		return fmt.Errorf("export %s: %w", record.EventID, err)
	}
	metrics.IncStreamChange(change.Event)
	return nil
}

// decodeChange converts a stream record. ok is false for event types that are
// not exported.
func decodeChange(record events.DynamoDBEventRecord) (change Change, ok bool, err error) {
	var image map[string]events.DynamoDBAttributeValue
	switch record.EventName {
	case EventInsert, EventModify:
		image = record.Change.NewImage
	case EventRemove:
		image = record.Change.OldImage
	default:
		return Change{}, false, nil
	}
	// KEYS_ONLY streams carry no images.
	if len(image) == 0 {
		image = record.Change.Keys
	}

	m, err := convertImage(image)
	if err != nil {
		return Change{}, false, err
	}
	rec := telemetry.FromMap(m)

	return Change{
		Event:        record.EventName,
		EventID:      record.EventID,
		PartitionKey: rec.PartitionKey,
		RowKey:       rec.RowKey,
		Record:       rec,
		Expired:      isExpiry(record),
	}, true, nil
}

// isExpiry reports whether a record is a removal made by the TTL service.
func isExpiry(record events.DynamoDBEventRecord) bool {
	if record.EventName != EventRemove || record.UserIdentity == nil {
		return false
	}
	return record.UserIdentity.Type == "Service" && record.UserIdentity.PrincipalID == ttlPrincipal
}

// convertImage decodes a stream image into plain Go values the way the store
// reads items, with numbers as json.Number.
func convertImage(image map[string]events.DynamoDBAttributeValue) (map[string]any, error) {
	item := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		item[k] = convertAttr(v)
	}
	m, err := store.DecodeItem(item)
	if err != nil {
		return nil, fmt.Errorf("unmarshal image: %w", err)
	}
	return m, nil
}

// convertAttr converts a stream attribute value to its SDK form.
func convertAttr(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, len(list))
		for i, item := range list {
			out[i] = convertAttr(item)
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		m := v.Map()
		out := make(map[string]types.AttributeValue, len(m))
		for k, item := range m {
			out[k] = convertAttr(item)
		}
		return &types.AttributeValueMemberM{Value: out}
	default:
		return &types.AttributeValueMemberNULL{Value: true}
	}
}
