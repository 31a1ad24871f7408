package engine

import (
	"fmt"

	"github.com/ajmeyer/waymark/internal/document"
	"github.com/ajmeyer/waymark/internal/model"
)

// Link pairs a story with the epoch implementing it: the story gains
// implemented_in (promoting Planned to In Progress) and the epoch gains
// the user_story back-reference. Each document goes through its own
// read-verify-write cycle; linking the same pair twice is a no-op, a
// conflicting existing reference on either side is ErrAlreadyLinked.
func (e *Engine) Link(storyID, epochID string) error {
	// Pre-verify the epoch side before touching the story document.
	epochDoc, err := e.loadEpochs()
	if err != nil {
		return err
	}
	block := epochDoc.FindEpoch(epochID)
	if block == nil {
		return fmt.Errorf("epoch %s: %w", epochID, ErrNotFound)
	}
	if us := block.Epoch.UserStory; us != "" && us != storyID {
		return fmt.Errorf("epoch %s already references %s: %w", epochID, us, ErrAlreadyLinked)
	}

	err = e.stories.Atomically(func(current []byte) ([]byte, bool, error) {
		doc, err := e.parse(current, e.stories)
		if err != nil {
			return nil, false, err
		}
		section := doc.FindStory(storyID)
		if section == nil {
			return nil, false, fmt.Errorf("story %s: %w", storyID, ErrNotFound)
		}
		s := section.Story
		if s.ImplementedIn == epochID {
			return nil, false, nil // already linked to this epoch
		}
		if s.ImplementedIn != "" {
			return nil, false, fmt.Errorf("story %s already references %s: %w", storyID, s.ImplementedIn, ErrAlreadyLinked)
		}

		s.ImplementedIn = epochID
		if s.Status == model.StoryPlanned {
			s.Status = model.StoryInProgress
		}
		section.Update(s)
		return doc.Bytes(), true, nil
	})
	if err != nil {
		return err
	}

	err = e.mutateEpochDoc(func(doc *document.Doc) (bool, error) {
		block := doc.FindEpoch(epochID)
		if block == nil {
			return false, fmt.Errorf("epoch %s: %w", epochID, ErrNotFound)
		}
		if us := block.Epoch.UserStory; us != "" && us != storyID {
			return false, fmt.Errorf("epoch %s now references %s: %w", epochID, us, ErrAlreadyLinked)
		}
		if block.Epoch.UserStory == storyID {
			return false, nil
		}
		block.Epoch.UserStory = storyID
		block.Update(block.Epoch)
		return true, nil
	})
	if err != nil {
		return err
	}

	e.log(LogLevelInfo, "link story=%s epoch=%s", storyID, epochID)
	return nil
}

// SyncReport lists broken or absent cross-references between the story
// and epoch sets.
type SyncReport struct {
	// OrphanStories have no implemented_in, or one that resolves to no
	// known epoch (active or archived).
	OrphanStories []model.Story
	// OrphanEpochs carry no user_story back-reference. Not necessarily a
	// defect; infrastructure epochs need no story.
	OrphanEpochs []model.Epoch
	Warnings     []model.Warning
}

func (e *Engine) Sync() (*SyncReport, error) {
	epochDoc, err := e.loadEpochs()
	if err != nil {
		return nil, err
	}
	storyDoc, err := e.loadStories()
	if err != nil {
		return nil, err
	}
	completedDoc, err := e.loadCompleted()
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool)
	for _, b := range epochDoc.Epochs() {
		known[b.Epoch.EpochID] = true
	}
	for _, b := range completedDoc.Epochs() {
		known[b.Epoch.EpochID] = true
	}

	report := &SyncReport{}
	for _, section := range storyDoc.Stories() {
		s := section.Story
		switch {
		case s.ImplementedIn == "":
			report.OrphanStories = append(report.OrphanStories, s)
		case !known[s.ImplementedIn]:
			report.OrphanStories = append(report.OrphanStories, s)
			report.Warnings = append(report.Warnings, model.Warning{
				Code:    model.WarnOrphanStory,
				Subject: s.ID,
				Message: fmt.Sprintf("implemented_in %s resolves to no epoch", s.ImplementedIn),
			})
		}
		report.Warnings = append(report.Warnings, storyInvariantWarnings(s)...)
	}

	for _, b := range epochDoc.Epochs() {
		if b.Epoch.UserStory == "" {
			report.OrphanEpochs = append(report.OrphanEpochs, b.Epoch)
			report.Warnings = append(report.Warnings, model.Warning{
				Code:    model.WarnOrphanEpoch,
				Subject: b.Epoch.EpochID,
				Message: "no user_story back-reference",
			})
		}
	}
	return report, nil
}

// storyInvariantWarnings checks the stored story status against its
// fields: Planned iff unassigned, Completed iff every criterion checked.
func storyInvariantWarnings(s model.Story) []model.Warning {
	var warns []model.Warning
	if s.Status == model.StoryPlanned && s.ImplementedIn != "" {
		warns = append(warns, model.Warning{
			Code:    model.WarnStatusDrift,
			Subject: s.ID,
			Message: fmt.Sprintf("status Planned but implemented_in is %s", s.ImplementedIn),
		})
	}
	if s.Status != model.StoryPlanned && s.ImplementedIn == "" {
		warns = append(warns, model.Warning{
			Code:    model.WarnStatusDrift,
			Subject: s.ID,
			Message: fmt.Sprintf("status %s but no implemented_in", s.Status),
		})
	}
	if s.Status == model.StoryCompleted && !s.CriteriaComplete() {
		warns = append(warns, model.Warning{
			Code:    model.WarnStatusDrift,
			Subject: s.ID,
			Message: "status Completed with unchecked acceptance criteria",
		})
	}
	return warns
}
