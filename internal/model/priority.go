package model

import "fmt"

// Priority is an ordinal rank, p0 (highest) through p3 (lowest).
type Priority int

const (
	PriorityP0 Priority = iota
	PriorityP1
	PriorityP2
	PriorityP3
)

const DefaultPriority = PriorityP2

func (p Priority) String() string {
	return fmt.Sprintf("p%d", int(p))
}

// ParsePriority parses a priority scalar. Anything outside p0..p3 falls
// back to the default with a warning; free-form edits must never make the
// scheduler hard-fail.
func ParsePriority(s string) (Priority, *Warning) {
	switch s {
	case "":
		return DefaultPriority, nil
	case "p0":
		return PriorityP0, nil
	case "p1":
		return PriorityP1, nil
	case "p2":
		return PriorityP2, nil
	case "p3":
		return PriorityP3, nil
	}
	return DefaultPriority, &Warning{
		Code:    WarnPriorityOutOfRange,
		Subject: s,
		Message: fmt.Sprintf("priority %q out of range, treated as %s", s, DefaultPriority),
	}
}
