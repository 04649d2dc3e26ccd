package adchecklist

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/graph"
	"github.com/zero-day-ai/adchecklist/merge"
	"github.com/zero-day-ai/adchecklist/query"
	"github.com/zero-day-ai/adchecklist/render"
	"github.com/zero-day-ai/adchecklist/report"
	"github.com/zero-day-ai/adchecklist/state"
	"github.com/zero-day-ai/adchecklist/task"
)

// Generator regenerates the checklist from the graph. A Generator holds no
// state between runs; the checklist file is its only memory.
type Generator struct {
	client     graph.Client
	sources    []catalog.Source
	catalog    *catalog.Catalog
	paths      Paths
	linkPrefix string
	vaultDir   string
	maxRows    int
	title      string
	execOpts   []query.Option

	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	metrics   *otelMetrics
	publisher report.Publisher
	now       func() time.Time
}

// New creates a generator reading from client.
func New(client graph.Client, opts ...Option) (*Generator, error) {
	g := &Generator{
		client: client,
		paths:  DefaultPaths("."),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.client == nil {
		return nil, auditerr.Configuration("adchecklist.New", errors.New("graph client is required"))
	}
	if g.catalog == nil && len(g.sources) == 0 {
		return nil, auditerr.Configuration("adchecklist.New", errors.New("a catalog or at least one catalog source is required"))
	}
	if strings.TrimSpace(g.paths.Checklist) == "" {
		return nil, auditerr.Configuration("adchecklist.New", errors.New("checklist path is required"))
	}

	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.tracer == nil {
		g.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	if g.meter == nil {
		g.meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	m, err := newOTelMetrics(g.meter)
	if err != nil {
		return nil, auditerr.Configuration("adchecklist.New", err)
	}
	g.metrics = m

	return g, nil
}

// outcome is what one query produced in a run.
type outcome struct {
	batch    *task.Batch
	columns  []string
	sample   []graph.Row
	duration time.Duration
	err      error
}

// Run executes one regeneration: load the catalog and the previous checklist,
// run every query, merge, and write the documents.
//
// The returned error is non-nil only when the run stopped before writing
// output; the report is returned in every case and collects the non-fatal
// errors.
func (g *Generator) Run(ctx context.Context) (rep *report.Report, err error) {
	rep = report.New(g.now())
	logger := g.logger.With("run_id", rep.RunID)

	ctx, span := g.tracer.Start(ctx, "adchecklist.run",
		trace.WithAttributes(attribute.String("run.id", rep.RunID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, rep.Summary())
		}
		span.End()
	}()

	cat, err := g.loadCatalog(ctx)
	if err != nil {
		logger.Error("catalog rejected", "error", err)
		return rep, err
	}
	for _, w := range cat.Warnings() {
		logger.Warn("catalog entry corrected", "warning", w)
	}
	queries := cat.Queries()
	span.SetAttributes(attribute.Int("catalog.queries", len(queries)))

	prior, err := state.Load(g.paths.Checklist)
	if err != nil {
		logger.Error("previous checklist unreadable", "path", g.paths.Checklist, "error", err)
		return rep, err
	}
	logger.Info("run started",
		"queries", len(queries),
		"checklist", g.paths.Checklist,
		"prior_tasks", prior.Len(),
		"prior_completed", prior.Completed())

	outcomes, err := g.execute(ctx, logger, queries)
	if err != nil {
		logger.Error("run aborted", "error", err)
		return rep, err
	}

	var fresh []task.Task
	unavailable := make(map[string]bool)
	for i, q := range queries {
		o := outcomes[i]
		stat := report.QueryStat{
			Query:    q.Name,
			Section:  q.Section,
			Category: q.EffectiveCategory(),
			Duration: o.duration,
		}
		if o.err != nil {
			stat.Failed = true
			unavailable[q.Name] = true
			rep.Errors = append(rep.Errors, o.err)
		} else {
			stat.Rows = o.batch.Rows
			stat.Tasks = len(o.batch.Tasks)
			stat.Excluded = o.batch.Excluded
			stat.Skipped = len(o.batch.Errors)
			fresh = append(fresh, o.batch.Tasks...)
			rep.Errors = append(rep.Errors, o.batch.Errors...)
			if len(o.batch.Errors) > 0 {
				// A skipped row may be a prior finding; its task is carried.
				unavailable[q.Name] = true
			}
		}
		rep.Queries = append(rep.Queries, stat)
	}

	res := merge.Merge(fresh, prior, unavailable)
	rep.Merge = res.Stats
	for _, err := range res.Errors {
		logger.Warn("task dropped", "error", err)
	}
	rep.Errors = append(rep.Errors, res.Errors...)

	if err := g.write(cat, queries, outcomes, res.Tasks); err != nil {
		logger.Error("output failed", "error", err)
		return rep, err
	}

	rep.Finished = g.now()
	rep.Checklist = g.paths.Checklist
	g.metrics.recordMerge(ctx, res.Stats)
	g.metrics.recordErrors(ctx, rep.Errors)
	span.SetAttributes(
		attribute.Int("tasks.total", res.Stats.Total()),
		attribute.Int("tasks.completed", res.Stats.Completed),
		attribute.Int("queries.failed", rep.Failed()),
		attribute.Int("errors", len(rep.Errors)),
	)

	logger.Info(rep.Summary(),
		"fresh", res.Stats.Fresh,
		"kept", res.Stats.Kept,
		"resolved", res.Stats.Resolved,
		"stale", res.Stats.Stale,
		"carried", res.Stats.Carried,
		"completed", res.Stats.Completed,
		"duration", rep.Duration())

	if g.publisher != nil {
		if perr := g.publisher.Publish(ctx, rep); perr != nil {
			logger.Warn("failed to publish run report", "error", perr)
		}
	}
	return rep, nil
}

func (g *Generator) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if g.catalog != nil {
		return g.catalog, nil
	}
	return catalog.Load(ctx, g.sources...)
}

// execute runs every query and returns the outcomes in catalog order. It
// fails only under fail-fast or when ctx ends.
func (g *Generator) execute(ctx context.Context, logger *slog.Logger, queries []*catalog.Query) ([]outcome, error) {
	exec := query.NewExecutor(g.client, g.execOpts...)
	outcomes := make([]outcome, len(queries))
	index := make(map[*catalog.Query]int, len(queries))
	for i, q := range queries {
		index[q] = i
	}

	var done atomic.Int32
	total := len(queries)

	err := exec.RunAll(ctx, queries, func(ctx context.Context, q *catalog.Query, records iter.Seq2[query.Record, error]) error {
		o := &outcomes[index[q]]
		start := time.Now()

		ctx, span := g.tracer.Start(ctx, "adchecklist.query", trace.WithAttributes(
			attribute.String("query.name", q.Name),
			attribute.String("query.category", q.EffectiveCategory()),
		))
		defer span.End()

		o.err = g.consume(q, records, o)
		o.duration = time.Since(start)
		progress := fmt.Sprintf("%d/%d", done.Add(1), total)
		g.metrics.recordQuery(ctx, q.Name, o.rows(), o.duration, o.err != nil)

		if o.err != nil {
			span.RecordError(o.err)
			span.SetStatus(codes.Error, o.err.Error())
			logger.Warn("query failed", "query", q.Name, "progress", progress, "error", o.err)
			return o.err
		}

		for _, rowErr := range o.batch.Errors {
			logger.Warn("row skipped", "query", q.Name, "error", rowErr)
		}
		span.SetAttributes(
			attribute.Int("query.rows", o.batch.Rows),
			attribute.Int("query.tasks", len(o.batch.Tasks)),
		)
		logger.Info("query complete",
			"query", q.Name,
			"progress", progress,
			"rows", o.batch.Rows,
			"tasks", len(o.batch.Tasks),
			"duration", o.duration)
		return nil
	})

	if cerr := ctx.Err(); cerr != nil {
		return nil, auditerr.QueryExecution("", fmt.Errorf("run cancelled: %w", cerr))
	}
	if err != nil && exec.FailFast() {
		return nil, err
	}
	return outcomes, nil
}

// consume synthesizes the tasks of one query and keeps a sample of rows for
// the notes document.
func (g *Generator) consume(q *catalog.Query, records iter.Seq2[query.Record, error], o *outcome) error {
	o.batch = task.NewBatch(q)
	for rec, err := range records {
		if err != nil {
			return err
		}
		if o.columns == nil {
			o.columns = rec.Columns
		}
		if g.maxRows <= 0 || len(o.sample) < g.maxRows {
			o.sample = append(o.sample, rec.Row)
		}
		o.batch.Add(rec.Row)
	}
	return nil
}

func (o *outcome) rows() int {
	if o.batch == nil {
		return 0
	}
	return o.batch.Rows
}

// write renders and writes every configured document. The checklist is
// written first.
func (g *Generator) write(cat *catalog.Catalog, queries []*catalog.Query, outcomes []outcome, tasks []task.Task) error {
	opts := []render.Option{render.WithLinkPrefix(g.linkPrefix), render.WithMaxRows(g.maxRows)}
	if g.paths.Notes != "" {
		opts = append(opts, render.WithNotesLink(stem(g.paths.Notes)))
	}

	doc, err := render.NewChecklist(cat, append(opts, render.WithTitle(g.title))...).Bytes(tasks)
	if err != nil {
		return auditerr.Output("render.Checklist", err)
	}
	if err := render.WriteFile(g.paths.Checklist, doc); err != nil {
		return err
	}

	if g.paths.Notes != "" {
		results := make([]render.QueryResult, len(queries))
		for i, q := range queries {
			o := outcomes[i]
			results[i] = render.QueryResult{Query: q, Columns: o.columns, Rows: o.sample, Total: o.rows(), Err: o.err}
		}
		if err := render.WriteFile(g.paths.Notes, render.NewNotes(opts...).Bytes(results)); err != nil {
			return err
		}
	}

	if g.paths.Tracking != "" {
		doc, err := render.NewTracking().Bytes(path.Join(g.vaultDir, stem(g.paths.Checklist)))
		if err != nil {
			return auditerr.Output("render.Tracking", err)
		}
		if err := render.WriteFile(g.paths.Tracking, doc); err != nil {
			return err
		}
	}
	return nil
}

// stem returns the file name of p without its extension, the form Obsidian
// resolves links by.
func stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
