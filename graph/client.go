// Package graph provides read-only access to the security graph store.
//
// The Client interface is the seam between the checklist pipeline and the
// store: it streams result rows for a Cypher query. Neo4jClient implements it
// on top of the official Neo4j driver using read-mode sessions; the graphtest
// package provides an in-memory implementation for tests.
//
// Rows are plain maps. Graph entities are converted to property maps so that
// templates and identity derivation can treat every row the same way.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// Row is a single query result row: column name to value.
//
// Values are nil, bool, int64, float64, string, []any or map[string]any.
// Nodes become their property map, relationships their property map plus a
// "_type" key, paths an []any alternating nodes and relationships, and
// temporal or spatial values their string form.
type Row map[string]any

// Columns returns the row's column names in unspecified order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	return cols
}

// Rows is a forward-only cursor over a query result. It is not restartable.
type Rows interface {
	// Keys returns the result columns in query order.
	Keys() []string

	// Next advances to the next row. It returns false when the result is
	// exhausted or an error occurred; check Err afterwards.
	Next(ctx context.Context) bool

	// Row returns the current row.
	Row() Row

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close releases the cursor and its session.
	Close(ctx context.Context) error
}

// Client executes read-only Cypher queries.
type Client interface {
	// Stream executes cypher with params and returns a cursor over the rows.
	// Implementations must refuse to run mutating queries.
	Stream(ctx context.Context, cypher string, params map[string]any) (Rows, error)
}

// ErrClosed is returned by clients used after Close.
var ErrClosed = errors.New("graph client is closed")

// Query executes cypher and collects every row.
func Query(ctx context.Context, c Client, cypher string, params map[string]any) ([]Row, error) {
	rows, err := c.Stream(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next(ctx) {
		out = append(out, rows.Row())
	}
	iterErr := rows.Err()
	closeErr := rows.Close(ctx)
	if iterErr != nil {
		return nil, iterErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close result: %w", closeErr)
	}
	return out, nil
}
