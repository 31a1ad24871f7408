package model

import "fmt"

type StoryStatus string

const (
	StoryPlanned    StoryStatus = "Planned"
	StoryInProgress StoryStatus = "In Progress"
	StoryCompleted  StoryStatus = "Completed"
)

func ParseStoryStatus(s string) (StoryStatus, error) {
	switch StoryStatus(s) {
	case StoryPlanned, StoryInProgress, StoryCompleted:
		return StoryStatus(s), nil
	}
	return "", fmt.Errorf("unknown story status %q", s)
}

type AcceptanceCriterion struct {
	Text string
	Done bool
}

// Story is a user story section. ImplementedIn is the epoch back-reference;
// empty means unassigned.
type Story struct {
	ID                 string
	Title              string
	Status             StoryStatus
	ImplementedIn      string
	Persona            string
	Capability         string
	Benefit            string
	AcceptanceCriteria []AcceptanceCriterion
}

// CriteriaComplete reports whether every acceptance criterion is checked.
// An empty checklist is not complete.
func (s *Story) CriteriaComplete() bool {
	if len(s.AcceptanceCriteria) == 0 {
		return false
	}
	for _, c := range s.AcceptanceCriteria {
		if !c.Done {
			return false
		}
	}
	return true
}
