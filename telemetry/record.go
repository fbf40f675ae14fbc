// Package telemetry shapes telemetry records for the table store.
//
// A [Record] has two reserved keys and an open set of caller-supplied fields:
//
//	PartitionKey  groups records of one device (derived from "deviceId")
//	RowKey        unique identifier within the partition
//
// Two more names are written by the store and never taken from a body:
//
//	Timestamp     generation time of the last write
//	_expiresAt    expiry in epoch seconds, only when record expiry is enabled
//
// The package performs no I/O. Building records from request bodies lives in
// shaper.go and the read-side ordering and trimming lives in query.go.
package telemetry

import (
	"encoding/json"
	"fmt"
	"maps"
)

const (
	// PartitionKeyField is the reserved name of the partition key.
	PartitionKeyField = "PartitionKey"

	// RowKeyField is the reserved name of the row key.
	RowKeyField = "RowKey"

	// DeviceIDField is the body field the partition key is derived from.
	DeviceIDField = "deviceId"

	// DefaultPartition is used when no usable deviceId is supplied.
	DefaultPartition = "unknown"

	// TimestampField is stamped by the store on every write.
	TimestampField = "Timestamp"

	// ExpiresAtField holds the store-managed expiry. The leading underscore
	// keeps it clear of common payload names such as "ttl".
	ExpiresAtField = "_expiresAt"
)

// IsReserved reports whether name is a key or store-managed attribute that a
// request body cannot set.
func IsReserved(name string) bool {
	switch name {
	case PartitionKeyField, RowKeyField, TimestampField, ExpiresAtField:
		return true
	}
	return false
}

// Record is a telemetry entity: the (PartitionKey, RowKey) identity plus
// arbitrary payload fields.
type Record struct {
	PartitionKey string
	RowKey       string

	// Fields holds every non-key attribute, including input keys such as
	// deviceId that were also used to derive PartitionKey.
	Fields map[string]any
}

// FromMap splits a flat attribute map into a Record. Key attributes that are
// not strings are dropped.
func FromMap(m map[string]any) Record {
	rec := Record{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case PartitionKeyField:
			rec.PartitionKey, _ = v.(string)
		case RowKeyField:
			rec.RowKey, _ = v.(string)
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}

// Map flattens the record. The key attributes win over fields of the same name.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.Fields)+2)
	maps.Copy(m, r.Fields)
	m[PartitionKeyField] = r.PartitionKey
	m[RowKeyField] = r.RowKey
	return m
}

// Field returns the named attribute, looking at the key attributes first.
func (r Record) Field(name string) (any, bool) {
	switch name {
	case PartitionKeyField:
		return r.PartitionKey, true
	case RowKeyField:
		return r.RowKey, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

// MarshalJSON encodes the record as a single flat JSON object.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON decodes a flat JSON object into the record. Numbers are
// kept as json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := decodeJSON(data)
	if err != nil {
		return err
	}
	m, ok := v.(map[string]any)
	if !ok && v != nil {
		return fmt.Errorf("telemetry record must be a JSON object, got %T", v)
	}
	*r = FromMap(m)
	return nil
}
