package model

// WarningCode identifies a class of non-fatal anomaly. Warnings are always
// surfaced in reports and never block an operation.
type WarningCode string

const (
	WarnPriorityOutOfRange WarningCode = "priority_out_of_range"
	WarnStatusSpelling     WarningCode = "status_spelling"
	WarnStatusDrift        WarningCode = "status_drift"
	WarnOrphanTask         WarningCode = "orphan_task"
	WarnOrphanEpoch        WarningCode = "orphan_epoch"
	WarnOrphanStory        WarningCode = "orphan_story"
	WarnIdentityShape      WarningCode = "identity_shape"
	WarnMalformedWorkLog   WarningCode = "malformed_work_log"
)

type Warning struct {
	Code    WarningCode
	Subject string
	Message string
}

func (w Warning) String() string {
	return string(w.Code) + " " + w.Subject + ": " + w.Message
}
