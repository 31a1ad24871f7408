package engine

import (
	"fmt"

	"github.com/ajmeyer/waymark/internal/document"
	"github.com/ajmeyer/waymark/internal/model"
)

// mutateEpochDoc runs one read-verify-write cycle against the active
// store. The document is re-parsed from the bytes read under the write
// lock; stale snapshots from earlier selection are never trusted.
func (e *Engine) mutateEpochDoc(mutate func(doc *document.Doc) (bool, error)) error {
	return e.epochs.Atomically(func(current []byte) ([]byte, bool, error) {
		doc, err := e.parse(current, e.epochs)
		if err != nil {
			return nil, false, err
		}
		changed, err := mutate(doc)
		if err != nil || !changed {
			return nil, false, err
		}
		return doc.Bytes(), true, nil
	})
}

// Claim acquires the task for the actor. The verify step re-checks
// eligibility against the freshly read document: pending (or advisory
// blocked) with dependencies satisfied, and either unclaimed or carrying
// a stale claim. A fresh foreign claim fails with ErrClaimConflict and
// the caller re-selects.
func (e *Engine) Claim(taskID string, actor model.Identity) error {
	warn, err := actor.Validate()
	if err != nil {
		return err
	}
	if warn != nil {
		e.log(LogLevelWarn, "%s", warn)
	}

	err = e.mutateEpochDoc(func(doc *document.Doc) (bool, error) {
		block, idx := doc.FindTask(taskID)
		if block == nil {
			return false, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		t := &block.Epoch.Tasks[idx]
		now := e.now().UTC()

		// Resume own in-flight work: refresh the claim timestamp.
		if t.Status == model.StatusInProgress && t.ClaimedBy == string(actor) {
			t.ClaimedAt = &now
			block.Update(block.Epoch)
			e.log(LogLevelInfo, "claim_refresh task=%s actor=%s", taskID, actor)
			return true, nil
		}

		if t.Status == model.StatusComplete {
			return false, fmt.Errorf("task %s is complete: %w", taskID, ErrClaimConflict)
		}
		if !t.BlockedBySatisfied(block.Epoch.TasksByID()) {
			return false, fmt.Errorf("task %s has unsatisfied dependencies: %w", taskID, ErrClaimConflict)
		}

		stale := t.StaleClaim(now, e.staleness)
		claimable := t.ClaimedBy == "" && t.Status != model.StatusInProgress
		if !claimable && !stale {
			holder := t.ClaimedBy
			if holder == "" {
				holder = "unknown"
			}
			return false, fmt.Errorf("task %s held by %s: %w", taskID, holder, ErrClaimConflict)
		}
		if stale {
			e.log(LogLevelWarn, "claim_reclaim task=%s stale_owner=%s new_owner=%s", taskID, t.ClaimedBy, actor)
		} else if err := model.ValidateClaimTransition(t.Status, model.StatusInProgress); err != nil {
			return false, fmt.Errorf("task %s: %w", taskID, err)
		}

		t.Status = model.StatusInProgress
		t.ClaimedBy = string(actor)
		t.ClaimedAt = &now
		block.Update(block.Epoch)
		e.log(LogLevelInfo, "claim_acquire task=%s actor=%s", taskID, actor)
		return true, nil
	})
	if err != nil {
		return err
	}
	e.notifyEvent("claim", taskID)
	return nil
}

// Release puts the actor's own in-flight task back to pending with the
// claim fields cleared.
func (e *Engine) Release(taskID string, actor model.Identity) error {
	err := e.mutateEpochDoc(func(doc *document.Doc) (bool, error) {
		block, idx := doc.FindTask(taskID)
		if block == nil {
			return false, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		t := &block.Epoch.Tasks[idx]
		if err := model.ValidateClaimTransition(t.Status, model.StatusPending); err != nil {
			return false, fmt.Errorf("task %s: %w", taskID, err)
		}
		if t.ClaimedBy != string(actor) {
			return false, fmt.Errorf("task %s held by %s, not %s: %w", taskID, t.ClaimedBy, actor, ErrClaimConflict)
		}

		t.Status = model.StatusPending
		t.ClaimedBy = ""
		t.ClaimedAt = nil
		block.Update(block.Epoch)
		e.log(LogLevelInfo, "claim_release task=%s actor=%s", taskID, actor)
		return true, nil
	})
	if err != nil {
		return err
	}
	e.notifyEvent("release", taskID)
	return nil
}

// Complete finishes an in-flight task: status complete, completion date
// stamped, claim fields cleared.
func (e *Engine) Complete(taskID string) error {
	err := e.mutateEpochDoc(func(doc *document.Doc) (bool, error) {
		block, idx := doc.FindTask(taskID)
		if block == nil {
			return false, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		t := &block.Epoch.Tasks[idx]
		if err := model.ValidateClaimTransition(t.Status, model.StatusComplete); err != nil {
			return false, fmt.Errorf("task %s: %w", taskID, err)
		}

		t.Status = model.StatusComplete
		t.CompletedDate = e.now().UTC().Format("2006-01-02")
		t.ClaimedBy = ""
		t.ClaimedAt = nil
		block.Update(block.Epoch)
		e.log(LogLevelInfo, "task_complete task=%s", taskID)
		return true, nil
	})
	if err != nil {
		return err
	}
	e.notifyEvent("complete", taskID)
	return nil
}
