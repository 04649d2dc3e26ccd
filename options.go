package adchecklist

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/query"
	"github.com/zero-day-ai/adchecklist/report"
)

// Default output file names.
const (
	DefaultChecklistFile = "checklist.md"
	DefaultNotesFile     = "notes.md"
	DefaultTrackingFile  = "tracking.md"
)

// Paths are the documents a run reads and writes. Notes and Tracking are
// optional; empty paths are not written.
type Paths struct {
	// Checklist is read at the start of a run and replaced at the end.
	Checklist string

	// Notes receives every query with its result table.
	Notes string

	// Tracking receives the Dataview dashboard.
	Tracking string
}

// DefaultPaths returns the default file names inside dir.
func DefaultPaths(dir string) Paths {
	return Paths{
		Checklist: filepath.Join(dir, DefaultChecklistFile),
		Notes:     filepath.Join(dir, DefaultNotesFile),
		Tracking:  filepath.Join(dir, DefaultTrackingFile),
	}
}

// Option configures a Generator.
type Option func(*Generator)

// WithSources sets the catalog sources read at the start of every run.
// Queries keep the order of sources and of entries within a source.
func WithSources(sources ...catalog.Source) Option {
	return func(g *Generator) {
		g.sources = append(g.sources, sources...)
	}
}

// WithCatalog uses an already validated catalog instead of loading sources.
func WithCatalog(c *catalog.Catalog) Option {
	return func(g *Generator) {
		g.catalog = c
	}
}

// WithPaths sets the output documents.
func WithPaths(p Paths) Option {
	return func(g *Generator) {
		g.paths = p
	}
}

// WithLinkPrefix renders entities in the checklist as links to
// "<prefix><entity>" notes in the operator's vault.
func WithLinkPrefix(prefix string) Option {
	return func(g *Generator) {
		g.linkPrefix = prefix
	}
}

// WithVaultDir sets the folder holding the checklist, relative to the
// Obsidian vault root, as used by the Dataview sources of the tracking
// dashboard. Empty means the vault root.
func WithVaultDir(dir string) Option {
	return func(g *Generator) {
		g.vaultDir = strings.Trim(filepath.ToSlash(dir), "/")
	}
}

// WithMaxRows bounds the result rows kept per query for the notes document.
// Zero or negative keeps every row.
func WithMaxRows(n int) Option {
	return func(g *Generator) {
		g.maxRows = n
	}
}

// WithTitle sets the checklist heading.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithConcurrency bounds the number of queries executed at once.
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		g.execOpts = append(g.execOpts, query.WithConcurrency(n))
	}
}

// WithTimeout bounds each query. A timed-out query is a failed query.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.execOpts = append(g.execOpts, query.WithTimeout(d))
	}
}

// WithFailFast aborts the run at the first failed query, before any output
// is written. By default failed queries are reported and the run continues.
func WithFailFast(failFast bool) Option {
	return func(g *Generator) {
		g.execOpts = append(g.execOpts, query.WithFailFast(failFast))
	}
}

// WithLogger sets a custom logger for the generator.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer. Runs and queries become spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Generator) {
		g.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for run and query metrics.
func WithMeter(meter metric.Meter) Option {
	return func(g *Generator) {
		g.meter = meter
	}
}

// WithPublisher publishes every finished run report. Publication failures
// are logged and do not fail the run.
func WithPublisher(p report.Publisher) Option {
	return func(g *Generator) {
		g.publisher = p
	}
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}
