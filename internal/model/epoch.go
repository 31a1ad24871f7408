package model

import (
	"regexp"
	"strconv"
	"time"
)

// Epoch is a named, prioritized group of tasks. Stored is the explicit
// status from the document, nil when the status should be derived; the two
// are kept separate so drift between them can be reported.
type Epoch struct {
	EpochID   string
	Title     string
	Stored    *Status
	Priority  Priority
	UserStory string
	Archived  string // date-only stamp set on archival
	Tasks     []Task
}

// Task is an individually claimable unit of work within an epoch.
type Task struct {
	ID            string
	Title         string
	Status        Status
	ClaimedBy     string
	ClaimedAt     *time.Time
	BlockedBy     []string
	CompletedDate string // date-only, YYYY-MM-DD
}

var numericSuffixRe = regexp.MustCompile(`(\d+)$`)

// NumericSuffix extracts the trailing number of an identifier for
// tie-break ordering. Identifiers without one sort last.
func NumericSuffix(id string) int {
	m := numericSuffixRe.FindStringSubmatch(id)
	if m == nil {
		return int(^uint(0) >> 1)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

func (e *Epoch) NumericSuffix() int {
	return NumericSuffix(e.EpochID)
}

// TasksByID indexes the epoch's tasks for dependency lookups.
func (e *Epoch) TasksByID() map[string]*Task {
	byID := make(map[string]*Task, len(e.Tasks))
	for i := range e.Tasks {
		byID[e.Tasks[i].ID] = &e.Tasks[i]
	}
	return byID
}

// FindTask returns the task with the given id, or nil.
func (e *Epoch) FindTask(id string) *Task {
	for i := range e.Tasks {
		if e.Tasks[i].ID == id {
			return &e.Tasks[i]
		}
	}
	return nil
}

// BlockedBySatisfied reports whether every dependency of the task resolves
// to a complete task. A reference to a task that does not exist in the
// index counts as unsatisfied.
func (t *Task) BlockedBySatisfied(byID map[string]*Task) bool {
	for _, dep := range t.BlockedBy {
		d, ok := byID[dep]
		if !ok || d.Status != StatusComplete {
			return false
		}
	}
	return true
}

// StaleClaim reports whether the task carries a claim older than the
// staleness window. Unclaimed tasks are never stale. A claim with a
// missing timestamp is treated as stale; there is nothing to compare
// freshness against.
func (t *Task) StaleClaim(now time.Time, window time.Duration) bool {
	if t.ClaimedBy == "" {
		return false
	}
	if t.ClaimedAt == nil {
		return true
	}
	return now.Sub(*t.ClaimedAt) >= window
}
