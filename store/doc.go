// Package store provides the DynamoDB table access behind the telemetry gateway.
//
// Records live in a single table keyed by PartitionKey (hash) and RowKey
// (range). The store adds two managed attributes:
//
//   - Timestamp, stamped on every create and merge (RFC 3339, UTC)
//   - _expiresAt, epoch seconds, only when [Config.RecordTTL] is set
//
// Both names are reserved: request bodies cannot set them, and a caller
// field such as "ttl" is ordinary data that never hides a record.
//
// # Connector
//
// Handlers never hold a client directly. They ask a [Connector] for the
// [Store], which is acquired lazily on first use:
//
//	conn := store.NewConnector(connStr, store.DefaultConfig(), logger)
//	st, err := conn.Acquire(ctx)
//	if errors.Is(err, store.ErrNotConfigured) {
//	    // no connection string
//	}
//
// A successful acquisition is memoized and shared by all requests. A failed
// one is not cached: the next Acquire tries again.
//
// # Connection strings
//
// Connection strings are semicolon-separated Key=Value pairs:
//
//	Region=eu-west-1;Profile=telemetry
//	Endpoint=http://localhost:8000;Region=local;AccessKeyId=x;SecretAccessKey=y
//
// # Errors
//
//   - [ErrNotConfigured] - no usable connection configuration
//   - [ErrUnavailable] - the table could not be reached
//   - [ErrAlreadyExists] - row key collision on create
//   - [ErrNotFound] - merge target does not exist
package store
