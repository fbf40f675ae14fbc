package store

import "time"

// DefaultTableName is the table used when none is configured.
const DefaultTableName = "TelemetryData"

// Config holds configuration for the Store.
type Config struct {
	// TableName is the DynamoDB table holding telemetry records.
	// Default: "TelemetryData"
	TableName string

	// RecordTTL, when positive, stamps each created record with an
	// _expiresAt attribute of now+RecordTTL and hides expired records from
	// reads. Enable TTL on the table's "_expiresAt" attribute for DynamoDB
	// to delete them.
	// Default: 0 (records never expire)
	RecordTTL time.Duration

	// CreateTable creates the table (on-demand billing) during acquisition
	// when it does not exist yet.
	// Default: false
	CreateTable bool

	// PingTimeout bounds the DescribeTable call used to check reachability.
	// Default: 5s
	PingTimeout time.Duration

	// CreateTimeout bounds the wait for a newly created table to become active.
	// Default: 2m
	CreateTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableName:     DefaultTableName,
		PingTimeout:   5 * time.Second,
		CreateTimeout: 2 * time.Minute,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if c.RecordTTL < 0 {
		c.RecordTTL = 0
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.CreateTimeout <= 0 {
		c.CreateTimeout = 2 * time.Minute
	}
}
