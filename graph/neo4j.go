package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig configures the Neo4j connection.
type Neo4jConfig struct {
	// URI is the Bolt URI (e.g., "bolt://127.0.0.1:7687").
	URI string

	Username string
	Password string

	// Database selects a database; empty uses the server default.
	Database string

	// ConnectTimeout bounds connectivity verification. Default: 10s.
	ConnectTimeout time.Duration
}

// Neo4jClient implements Client using read-mode sessions.
//
// Thread-safety: Stream may be called concurrently; every call opens its own
// session.
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string

	mu     sync.RWMutex
	closed bool
}

// NewNeo4jClient creates a driver and verifies connectivity.
func NewNeo4jClient(ctx context.Context, cfg Neo4jConfig) (*Neo4jClient, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j URI cannot be empty")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", cfg.URI, err)
	}

	return &Neo4jClient{driver: driver, database: cfg.Database}, nil
}

// Stream implements Client.
func (c *Neo4jClient) Stream(ctx context.Context, cypher string, params map[string]any) (Rows, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	if err := CheckReadOnly(cypher); err != nil {
		return nil, err
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		_ = session.Close(ctx)
		return nil, err
	}

	keys, err := result.Keys()
	if err != nil {
		_ = session.Close(ctx)
		return nil, err
	}

	return &neo4jRows{session: session, result: result, keys: keys}, nil
}

// Close closes the driver. Subsequent Stream calls return ErrClosed.
func (c *Neo4jClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.driver.Close(ctx)
}

type neo4jRows struct {
	session neo4j.SessionWithContext
	result  neo4j.ResultWithContext
	keys    []string
	current Row
}

func (r *neo4jRows) Keys() []string {
	return r.keys
}

func (r *neo4jRows) Next(ctx context.Context) bool {
	if !r.result.Next(ctx) {
		r.current = nil
		return false
	}
	rec := r.result.Record()
	row := make(Row, len(rec.Keys))
	for i, k := range rec.Keys {
		row[k] = ConvertValue(rec.Values[i])
	}
	r.current = row
	return true
}

func (r *neo4jRows) Row() Row {
	return r.current
}

func (r *neo4jRows) Err() error {
	return r.result.Err()
}

func (r *neo4jRows) Close(ctx context.Context) error {
	return r.session.Close(ctx)
}
