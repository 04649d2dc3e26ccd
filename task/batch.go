package task

import (
	"errors"
	"fmt"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/graph"
)

// Batch accumulates the tasks synthesized from one query's rows. A Batch is
// used by a single goroutine.
type Batch struct {
	Query *catalog.Query

	// Tasks are the synthesized tasks in row order, without duplicates.
	Tasks []Task

	// Errors are per-row template and identity errors.
	Errors []error

	Rows     int
	Excluded int

	seen map[string]bool
}

// NewBatch creates an empty batch for q.
func NewBatch(q *catalog.Query) *Batch {
	return &Batch{Query: q, seen: make(map[string]bool)}
}

// Add synthesizes a task from row. Rows that fail synthesis are recorded in
// Errors and skipped. A row whose identity repeats an earlier row of the same
// query is recorded as a KindIdentity error; the first occurrence wins.
func (b *Batch) Add(row graph.Row) {
	b.Rows++

	t, err := Synthesize(b.Query, row)
	switch {
	case errors.Is(err, ErrExcluded):
		b.Excluded++
		return
	case err != nil:
		b.Errors = append(b.Errors, err)
		return
	}

	if b.seen[t.ID] {
		b.Errors = append(b.Errors, auditerr.Identity(b.Query.Name,
			fmt.Errorf("duplicate finding %s (%q): identifying fields do not distinguish rows", t.ID, t.Title)))
		return
	}
	b.seen[t.ID] = true
	b.Tasks = append(b.Tasks, t)
}
