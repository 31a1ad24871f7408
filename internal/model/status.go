// Package model defines the data structures for Waymark's epochs, tasks,
// stories, and work logs, plus status derivation and claim staleness rules.
package model

import "fmt"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusComplete   Status = "complete"
)

// Task status transitions driven by the claim manager:
// pending ⇄ in_progress, in_progress → complete.
// pending ⇄ blocked is derived from blocked_by, never a manual transition.
var validClaimTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusPending:  true, // explicit release
		StatusComplete: true,
	},
	// blocked is advisory; a reclaim after dependencies resolve goes
	// through the same pending → in_progress edge.
	StatusBlocked: {
		StatusInProgress: true,
	},
}

func IsTerminal(s Status) bool {
	return s == StatusComplete
}

func ValidateClaimTransition(from, to Status) error {
	if IsTerminal(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validClaimTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid task transition: %q → %q", from, to)
	}
	return nil
}

// ParseStatus normalizes a stored status scalar. Common spelling variants
// map to the canonical value with a warning; anything else is an error so
// the parser can reject it at the source line.
func ParseStatus(s string) (Status, *Warning, error) {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusBlocked, StatusComplete:
		return Status(s), nil, nil
	}
	switch s {
	case "completed", "done":
		return StatusComplete, &Warning{
			Code:    WarnStatusSpelling,
			Subject: s,
			Message: fmt.Sprintf("status %q normalized to %q", s, StatusComplete),
		}, nil
	case "in-progress":
		return StatusInProgress, &Warning{
			Code:    WarnStatusSpelling,
			Subject: s,
			Message: fmt.Sprintf("status %q normalized to %q", s, StatusInProgress),
		}, nil
	}
	return "", nil, fmt.Errorf("unknown status %q", s)
}

// DeriveStatus computes an epoch's aggregate status from its tasks.
// Blocked-ness is recomputed from blocked_by against the task set; the
// stored status of a blocked task is advisory only.
func DeriveStatus(tasks []Task) Status {
	if len(tasks) == 0 {
		return StatusPending
	}

	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	allComplete := true
	anyInProgress := false
	anyBlocked := false
	for i := range tasks {
		t := &tasks[i]
		if t.Status != StatusComplete {
			allComplete = false
		}
		if t.Status == StatusInProgress {
			anyInProgress = true
		}
		if t.Status != StatusComplete && !t.BlockedBySatisfied(byID) {
			anyBlocked = true
		}
	}

	switch {
	case allComplete:
		return StatusComplete
	case anyInProgress:
		return StatusInProgress
	case anyBlocked:
		return StatusBlocked
	default:
		return StatusPending
	}
}
