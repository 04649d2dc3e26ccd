// Package merge combines freshly synthesized tasks with the prior checklist
// state.
//
// The policy never silently loses an unresolved item and lets resolved items
// disappear:
//
//   - a task present in this run keeps the prior mark and comment of its id,
//     or starts open;
//   - a prior task absent from this run is dropped when it was completed, and
//     kept flagged stale when it was not;
//   - a prior task whose query failed this run, or skipped rows it could not
//     synthesize, is carried forward unchanged, since its absence says
//     nothing about the finding.
//
// A finding that disappears because it was remediated and one whose query was
// edited or removed from the catalog look the same here; both take the stale
// path.
package merge

import (
	"fmt"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/catalog"
	"github.com/zero-day-ai/adchecklist/state"
	"github.com/zero-day-ai/adchecklist/task"
)

// Stats counts what the merge did with each task.
type Stats struct {
	// Fresh tasks appear for the first time.
	Fresh int `json:"fresh"`

	// Kept tasks appear in this run and in the prior state.
	Kept int `json:"kept"`

	// Resolved tasks were completed and no longer appear; they are dropped.
	Resolved int `json:"resolved"`

	// Stale tasks were open and no longer appear; they are retained.
	Stale int `json:"stale"`

	// Carried tasks belong to queries that failed or skipped rows this run.
	Carried int `json:"carried"`

	// Completed counts completed tasks in the merged result.
	Completed int `json:"completed"`
}

// Total returns the number of tasks in the merged result.
func (s Stats) Total() int {
	return s.Fresh + s.Kept + s.Stale + s.Carried
}

// Result is the merged task set.
type Result struct {
	// Tasks holds the tasks of this run in input order, followed by stale and
	// carried tasks in prior document order.
	Tasks []task.Task

	Stats Stats

	// Errors are identity collisions between tasks of different queries.
	// The task seen first is kept.
	Errors []error
}

// Merge combines fresh with prior. unavailable names the queries whose
// results are incomplete this run; may be nil.
func Merge(fresh []task.Task, prior state.PriorState, unavailable map[string]bool) Result {
	var res Result
	owner := make(map[string]string, len(fresh))

	for _, t := range fresh {
		if q, dup := owner[t.ID]; dup {
			res.Errors = append(res.Errors, auditerr.Identity(t.SourceQuery,
				fmt.Errorf("task %s collides with a task of query %q", t.ID, q)))
			continue
		}
		owner[t.ID] = t.SourceQuery

		t.Stale = false
		if e, ok := prior.Lookup(t.ID); ok {
			t.Mark = e.Mark
			t.Comment = e.Comment
			res.Stats.Kept++
		} else {
			t.Mark = task.MarkOpen
			res.Stats.Fresh++
		}
		if t.Mark == 0 {
			t.Mark = task.MarkOpen
		}
		if t.Comment == "" {
			t.Comment = "-"
		}
		res.Tasks = append(res.Tasks, t)
	}

	for _, e := range prior.Entries() {
		if _, ok := owner[e.ID]; ok {
			continue
		}

		switch {
		case unavailable[e.SourceQuery]:
			res.Tasks = append(res.Tasks, fromEntry(e, e.Stale))
			res.Stats.Carried++
		case e.Completed():
			res.Stats.Resolved++
		default:
			res.Tasks = append(res.Tasks, fromEntry(e, true))
			res.Stats.Stale++
		}
	}

	for _, t := range res.Tasks {
		if t.Completed() {
			res.Stats.Completed++
		}
	}
	return res
}

func fromEntry(e state.Entry, stale bool) task.Task {
	comment := e.Comment
	if comment == "" {
		comment = "-"
	}
	mark := e.Mark
	if mark == 0 {
		mark = task.MarkOpen
	}
	return task.Task{
		ID:          e.ID,
		Category:    e.Category,
		Title:       e.Title,
		SourceQuery: e.SourceQuery,
		Entities:    e.Entities,
		Severity:    catalog.Severity(e.Severity),
		Mark:        mark,
		Comment:     comment,
		Stale:       stale,
	}
}
