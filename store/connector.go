package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"golang.org/x/sync/singleflight"
)

// State is the connector's readiness.
type State int

const (
	// StateUnknown means no acquisition has been attempted yet.
	StateUnknown State = iota
	// StateReady means a store has been acquired and is memoized.
	StateReady
	// StateUnavailable means the last acquisition failed. The next Acquire retries.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// fallbackRegion is used when only an Endpoint is given (local DynamoDB).
const fallbackRegion = "us-east-1"

// Dialer builds a DynamoDB client for a parsed connection string.
type Dialer func(ctx context.Context, cs ConnectionString) (DynamoAPI, error)

// DialDynamo builds a *dynamodb.Client from the default AWS configuration
// chain, overridden by whatever the connection string sets.
func DialDynamo(ctx context.Context, cs ConnectionString) (DynamoAPI, error) {
	var opts []func(*config.LoadOptions) error
	region := cs.Region
	if region == "" && cs.Endpoint != "" {
		region = fallbackRegion
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if cs.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cs.Profile))
	}
	if cs.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cs.AccessKeyID, cs.SecretAccessKey, cs.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if cs.Endpoint != "" {
			o.BaseEndpoint = aws.String(cs.Endpoint)
		}
	}), nil
}

// Connector lazily acquires the Store. It is safe for concurrent use.
type Connector struct {
	connStr string
	config  Config
	logger  *slog.Logger
	dial    Dialer

	// group collapses concurrent acquisitions into one attempt.
	group singleflight.Group

	// mu guards the fields below and is never held across I/O.
	mu    sync.Mutex
	store *Store
	state State
	err   error
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithDialer replaces the client factory, mainly for tests.
func WithDialer(d Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dial = d
	}
}

// NewConnector creates a Connector for the given connection string. Nothing is
// dialled until the first Acquire.
func NewConnector(connStr string, config Config, logger *slog.Logger, opts ...ConnectorOption) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{
		connStr: strings.TrimSpace(connStr),
		config:  config,
		logger:  logger,
		dial:    DialDynamo,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a connection string was supplied.
func (c *Connector) Configured() bool {
	return c.connStr != ""
}

// TableName returns the configured table name.
func (c *Connector) TableName() string {
	cfg := c.config
	cfg.validate()
	return cfg.TableName
}

// Acquire returns the shared Store, creating it on first use. Errors wrap
// ErrNotConfigured or ErrUnavailable and are not cached.
//
// Concurrent callers share a single attempt. Each caller waits only as long
// as its own ctx allows; the attempt itself keeps running for later callers.
func (c *Connector) Acquire(ctx context.Context) (*Store, error) {
	if st := c.current(); st != nil {
		return st, nil
	}

	ch := c.group.DoChan("acquire", func() (any, error) {
		return c.attempt(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Store), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

func (c *Connector) current() *Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// attempt runs one acquisition detached from the caller that started it,
// bounded by the store's own timeouts.
func (c *Connector) attempt(parent context.Context) (st *Store, err error) {
	if st := c.current(); st != nil {
		return st, nil
	}

	cfg := c.config
	cfg.validate()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cfg.PingTimeout+cfg.CreateTimeout)
	defer cancel()

	defer func() {
		// DoChan re-panics on a goroutine of its own, which would take the
		// process down.
		if r := recover(); r != nil {
			st, err = nil, fmt.Errorf("%w: panic during acquisition: %v", ErrUnavailable, r)
		}
		c.record(st, err)
	}()
	return c.acquire(ctx)
}

func (c *Connector) record(st *Store, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = StateUnavailable
		c.err = err
		c.logger.Error("storage acquisition failed", "error", err)
		return
	}
	c.store = st
	c.state = StateReady
	c.err = nil
	c.logger.Info("storage connector ready", "table", st.TableName())
}

func (c *Connector) acquire(ctx context.Context) (*Store, error) {
	if c.connStr == "" {
		return nil, fmt.Errorf("%w: STORAGE_CONN_STR is empty", ErrNotConfigured)
	}
	cs, err := ParseConnectionString(c.connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	client, err := c.dial(ctx, cs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	st := New(client, c.config)
	if c.config.CreateTable {
		if err := st.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return st, nil
}

// State returns the current readiness.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed acquisition, or nil.
func (c *Connector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
