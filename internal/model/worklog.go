package model

import "time"

// WorkLog is one task-session record, owned by actors. The engine reads
// the small frontmatter header and the filename; the body is opaque.
type WorkLog struct {
	Path          string
	TaskID        string
	Status        string
	HandoffStatus string
	Timestamp     time.Time // from the filename, zero when unparseable
	EpochID       string    // from the filename, empty when absent
}

// ArchiveReason classifies why a work log is an archive candidate.
type ArchiveReason string

const (
	ReasonTaskCompleted  ArchiveReason = "task_completed"
	ReasonEpochCompleted ArchiveReason = "epoch_completed"
	ReasonStatusComplete ArchiveReason = "status_complete"
)
