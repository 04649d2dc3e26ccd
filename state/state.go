// Package state reads the completion state of a previously generated
// checklist.
//
// The checklist on disk is the only memory the generator has between runs.
// Parse recovers it as an immutable PriorState keyed by task id; every task
// line carries its id as a trailing Obsidian block id ("^t-..."), so identity
// is recovered without re-deriving it from row data. Lines without a block id
// are operator notes and are ignored.
package state

// Generator is the front matter value identifying checklists this module
// owns.
const Generator = "adchecklist"

// FormatVersion is the checklist format version written and understood.
const FormatVersion = 1

// StaleHeading is the heading of the section holding stale tasks.
const StaleHeading = "Stale findings"

// Entry is the persisted state of one task.
type Entry struct {
	ID          string
	Mark        rune
	Title       string
	Category    string
	SourceQuery string
	Severity    string

	// Entities are the display names of the finding's entities, without
	// link markup.
	Entities []string

	Comment string
	Stale   bool
}

// Completed reports whether the operator marked the task. Any mark other than
// a blank counts.
func (e Entry) Completed() bool {
	return e.Mark != ' ' && e.Mark != 0
}

// PriorState maps task ids to their persisted state. The zero value is an
// empty state. A PriorState is never modified after parsing.
type PriorState struct {
	entries map[string]Entry
	order   []string
}

// Empty returns the state of a first run.
func Empty() PriorState {
	return PriorState{}
}

// New builds a PriorState from entries in document order. It is meant for
// tests and callers constructing state without a document; later duplicates
// replace earlier ones.
func New(entries ...Entry) PriorState {
	s := PriorState{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, ok := s.entries[e.ID]; !ok {
			s.order = append(s.order, e.ID)
		}
		s.entries[e.ID] = e
	}
	return s
}

// Len returns the number of tasks.
func (s PriorState) Len() int {
	return len(s.order)
}

// Lookup returns the entry for id.
func (s PriorState) Lookup(id string) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Entries returns every entry in document order.
func (s PriorState) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}

// Completed returns the number of completed tasks.
func (s PriorState) Completed() int {
	n := 0
	for _, e := range s.entries {
		if e.Completed() {
			n++
		}
	}
	return n
}
