package engine

import "errors"

var (
	// ErrClaimConflict means the task is no longer claimable: another
	// actor holds a fresh claim or eligibility was lost since selection.
	// Recoverable; the caller re-runs selection.
	ErrClaimConflict = errors.New("claim conflict")

	// ErrNotFound means a referenced epoch, task, or story does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotArchivable means the epoch has incomplete tasks or no tasks.
	ErrNotArchivable = errors.New("not archivable")

	// ErrAlreadyLinked means the story or epoch carries a conflicting
	// cross-reference. Surfaced, never auto-resolved.
	ErrAlreadyLinked = errors.New("already linked")
)
