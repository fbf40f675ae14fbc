package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/google/uuid"
)

// DecodeBody parses a request body into a field map. Anything that is not a
// JSON object (empty body, invalid JSON, arrays, scalars) yields an empty map.
// Numbers are kept as [json.Number] so integers beyond 2^53 survive intact.
func DecodeBody(data []byte) map[string]any {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]any{}
	}
	v, err := decodeJSON(data)
	if err != nil {
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return map[string]any{}
	}
	return m
}

// decodeJSON decodes exactly one JSON value, numbers as json.Number.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// PartitionKeyFor derives the partition key from the body's deviceId.
// Strings are used verbatim, numbers and booleans in their JSON text form.
// Missing, empty, null and structured values fall back to DefaultPartition.
func PartitionKeyFor(body map[string]any) string {
	switch v := body[DeviceIDField].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return DefaultPartition
}

// PartitionKeyOrDefault returns id, or DefaultPartition when id is empty.
func PartitionKeyOrDefault(id string) string {
	if id == "" {
		return DefaultPartition
	}
	return id
}

// NewRowKey returns a fresh random (v4) row key.
func NewRowKey() string {
	return uuid.NewString()
}

// NewRecord shapes a create request: partition key from deviceId, a fresh row
// key, and every non-reserved body field carried verbatim.
func NewRecord(body map[string]any) Record {
	return shape(body, PartitionKeyFor(body), NewRowKey())
}

// MergeRecord shapes an update request for the given row key. Only the fields
// present in body are carried, so a merge leaves other stored fields intact.
func MergeRecord(body map[string]any, rowKey string) Record {
	return shape(body, PartitionKeyFor(body), rowKey)
}

func shape(body map[string]any, partitionKey, rowKey string) Record {
	rec := Record{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Fields:       make(map[string]any, len(body)),
	}
	for k, v := range body {
		if IsReserved(k) {
			continue
		}
		rec.Fields[k] = v
	}
	return rec
}
