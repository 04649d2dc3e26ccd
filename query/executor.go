// Package query executes catalog queries against the graph store.
//
// Each query yields a lazy, finite, non-restartable sequence of records;
// ranging over the sequence again re-executes the query against the live
// store. RunAll executes many queries on a bounded pool. Queries are
// independent and read-only, so the only ordering guarantee is the row order
// within a single query's stream.
package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/graph"
)

const (
	// DefaultConcurrency is the default number of queries executed at once.
	DefaultConcurrency = 4

	// DefaultTimeout bounds a single query.
	DefaultTimeout = 2 * time.Minute
)

// Record is one result row together with the result's column order.
type Record struct {
	Columns []string
	Row     graph.Row
}

// Handler consumes the records of one query. A non-nil error marks the query
// as failed.
type Handler func(ctx context.Context, q *catalog.Query, records iter.Seq2[Record, error]) error

// Executor runs catalog queries.
type Executor struct {
	client      graph.Client
	timeout     time.Duration
	concurrency int
	failFast    bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the per-query timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithConcurrency bounds the number of queries RunAll executes at once.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithFailFast makes RunAll stop at the first failed query instead of
// continuing with the remainder.
func WithFailFast(failFast bool) Option {
	return func(e *Executor) {
		e.failFast = failFast
	}
}

// NewExecutor creates an executor over client.
func NewExecutor(client graph.Client, opts ...Option) *Executor {
	e := &Executor{
		client:      client,
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FailFast reports whether the executor aborts on the first failed query.
func (e *Executor) FailFast() bool {
	return e.failFast
}

// Records returns the lazy record sequence of q. Execution starts when the
// sequence is ranged over; failures are yielded once as a KindQueryExecution
// error carrying the query name, after which the sequence ends.
func (e *Executor) Records(ctx context.Context, q *catalog.Query) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}

		rows, err := e.client.Stream(ctx, q.Cypher, q.Params)
		if err != nil {
			yield(Record{}, e.wrap(ctx, q, err))
			return
		}
		defer rows.Close(context.WithoutCancel(ctx))

		columns := rows.Keys()
		for rows.Next(ctx) {
			if !yield(Record{Columns: columns, Row: rows.Row()}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, e.wrap(ctx, q, err))
		}
	}
}

// Rows returns the lazy row sequence of q.
func (e *Executor) Rows(ctx context.Context, q *catalog.Query) iter.Seq2[graph.Row, error] {
	return func(yield func(graph.Row, error) bool) {
		for rec, err := range e.Records(ctx, q) {
			if !yield(rec.Row, err) {
				return
			}
		}
	}
}

func (e *Executor) wrap(ctx context.Context, q *catalog.Query, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", e.timeout, err)
	}
	return auditerr.QueryExecution(q.Name, err)
}

// RunAll executes every query on a bounded pool and hands its records to
// handle. Without fail-fast, all queries run and the joined handler errors
// are returned. With fail-fast, the first error cancels the remaining queries
// and is returned.
func (e *Executor) RunAll(ctx context.Context, queries []*catalog.Query, handle Handler) error {
	if e.failFast {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)
		for _, q := range queries {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return handle(gctx, q, e.Records(gctx, q))
			})
		}
		return g.Wait()
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(e.concurrency)
	for _, q := range queries {
		g.Go(func() error {
			if err := handle(ctx, q, e.Records(ctx, q)); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
