// Package graphtest provides an in-memory graph.Client for tests.
package graphtest

import (
	"context"
	"sort"
	"sync"

	"github.com/zero-day-ai/adchecklist/graph"
)

// Client serves canned results keyed by Cypher text. Results can be replaced
// between calls to simulate a changing graph.
type Client struct {
	mu      sync.Mutex
	results map[string][]graph.Row
	keys    map[string][]string
	errs    map[string]error
	calls   map[string]int
}

// New creates an empty client.
func New() *Client {
	return &Client{
		results: make(map[string][]graph.Row),
		keys:    make(map[string][]string),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// Set replaces the rows returned for cypher and clears any configured error.
// Columns default to the sorted union of row keys.
func (c *Client) Set(cypher string, rows ...graph.Row) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)

	c.results[cypher] = rows
	c.keys[cypher] = cols
	delete(c.errs, cypher)
	return c
}

// Fail makes every execution of cypher return err.
func (c *Client) Fail(cypher string, err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[cypher] = err
	return c
}

// Calls returns how many times cypher was executed.
func (c *Client) Calls(cypher string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[cypher]
}

// Stream implements graph.Client. Unknown queries return no rows.
func (c *Client) Stream(ctx context.Context, cypher string, _ map[string]any) (graph.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := graph.CheckReadOnly(cypher); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[cypher]++
	if err := c.errs[cypher]; err != nil {
		return nil, err
	}

	rows := make([]graph.Row, len(c.results[cypher]))
	copy(rows, c.results[cypher])
	return &cursor{rows: rows, keys: c.keys[cypher], pos: -1}, nil
}

type cursor struct {
	rows []graph.Row
	keys []string
	pos  int
	err  error
}

func (r *cursor) Keys() []string { return r.keys }

func (r *cursor) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	r.pos++
	return r.pos < len(r.rows)
}

func (r *cursor) Row() graph.Row {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return nil
	}
	return r.rows[r.pos]
}

func (r *cursor) Err() error { return r.err }

func (r *cursor) Close(context.Context) error { return nil }
