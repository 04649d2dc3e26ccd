// Package report aggregates the outcome of a generator run and publishes it.
//
// A Report is returned next to the rendered documents: it counts what every
// query produced, what the merge did, and collects the non-fatal errors
// (failed queries, skipped rows, identity collisions) that did not stop the
// run.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/merge"
)

// QueryStat is the outcome of one query.
type QueryStat struct {
	Query    string        `json:"query"`
	Section  string        `json:"section,omitempty"`
	Category string        `json:"category"`
	Rows     int           `json:"rows"`
	Tasks    int           `json:"tasks"`
	Excluded int           `json:"excluded,omitempty"`
	Skipped  int           `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Failed   bool          `json:"failed,omitempty"`
}

// Report describes one run.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	// Checklist is the path of the written checklist.
	Checklist string `json:"checklist,omitempty"`

	Queries []QueryStat `json:"queries"`
	Merge   merge.Stats `json:"merge"`

	// Errors are the non-fatal errors of the run.
	Errors []error `json:"-"`
}

// New starts a report with a fresh run id.
func New(started time.Time) *Report {
	return &Report{RunID: uuid.NewString(), Started: started}
}

// Failed returns the number of failed queries.
func (r *Report) Failed() int {
	n := 0
	for _, q := range r.Queries {
		if q.Failed {
			n++
		}
	}
	return n
}

// Skipped returns the number of rows skipped by template or identity errors.
func (r *Report) Skipped() int {
	n := 0
	for _, q := range r.Queries {
		n += q.Skipped
	}
	return n
}

// Duration returns the run's wall-clock time.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Summary returns the one-line run summary, e.g. "done 42/44 | errors 3".
func (r *Report) Summary() string {
	return fmt.Sprintf("done %d/%d | errors %d", len(r.Queries)-r.Failed(), len(r.Queries), len(r.Errors))
}

// CountKind returns the number of errors of the given auditerr kind.
func (r *Report) CountKind(kind string) int {
	n := 0
	for _, err := range r.Errors {
		if auditerr.KindOf(err) == kind {
			n++
		}
	}
	return n
}

type reportJSON struct {
	*reportAlias
	Errors []errorJSON `json:"errors"`
}

type reportAlias Report

type errorJSON struct {
	Kind    string `json:"kind"`
	Query   string `json:"query,omitempty"`
	Message string `json:"message"`
}

// MarshalJSON encodes the report with its errors flattened to messages.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{reportAlias: (*reportAlias)(r), Errors: make([]errorJSON, 0, len(r.Errors))}
	for _, err := range r.Errors {
		e := errorJSON{Kind: auditerr.KindOf(err), Message: err.Error()}
		var aerr *auditerr.Error
		if errors.As(err, &aerr) {
			e.Query = aerr.Query
		}
		out.Errors = append(out.Errors, e)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a published report. Errors are restored as plain
// errors carrying their message.
func (r *Report) UnmarshalJSON(data []byte) error {
	in := reportJSON{reportAlias: (*reportAlias)(r)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Errors = nil
	for _, e := range in.Errors {
		r.Errors = append(r.Errors, errors.New(e.Message))
	}
	return nil
}
