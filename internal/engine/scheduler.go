package engine

import (
	"fmt"
	"sort"

	"github.com/ajmeyer/waymark/internal/model"
)

// TaskSelection distinguishes "found a task" from "this epoch has no
// actionable task", which callers must tell apart from "no eligible
// epochs" to fall through to hygiene instead of retrying selection.
type TaskSelection int

const (
	TaskFound TaskSelection = iota
	NoActionableTask
)

// NextEpoch returns the head of the eligibility order, or ok=false when
// no epoch qualifies. Pure over the current snapshot.
func (e *Engine) NextEpoch() (*EpochView, bool, []model.Warning, error) {
	doc, err := e.loadEpochs()
	if err != nil {
		return nil, false, nil, err
	}
	views, warns := deriveViews(doc)
	head := SelectEpoch(views)
	if head == nil {
		e.log(LogLevelDebug, "next_epoch result=none")
		return nil, false, warns, nil
	}
	e.log(LogLevelDebug, "next_epoch result=%s effective=%s", head.Epoch.EpochID, head.Effective)
	return head, true, warns, nil
}

// SelectEpoch filters and ranks epoch views: in_progress before pending
// (resume before start), then priority ascending, then numeric epoch
// suffix ascending. Epochs without tasks are skipped; there is nothing in
// them to select.
func SelectEpoch(views []EpochView) *EpochView {
	var eligible []EpochView
	for _, v := range views {
		if len(v.Epoch.Tasks) == 0 {
			continue
		}
		if v.Effective == model.StatusPending || v.Effective == model.StatusInProgress {
			eligible = append(eligible, v)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ri, rj := continuationRank(eligible[i].Effective), continuationRank(eligible[j].Effective)
		if ri != rj {
			return ri < rj
		}
		if eligible[i].Epoch.Priority != eligible[j].Epoch.Priority {
			return eligible[i].Epoch.Priority < eligible[j].Epoch.Priority
		}
		return eligible[i].Epoch.NumericSuffix() < eligible[j].Epoch.NumericSuffix()
	})
	return &eligible[0]
}

func continuationRank(s model.Status) int {
	if s == model.StatusInProgress {
		return 0
	}
	return 1
}

// NextTask selects within an epoch for an actor: first the actor's own
// in_progress tasks (resume), then pending tasks whose dependencies are
// all complete, in numeric task-suffix order. Stored status never makes a
// dependency-blocked task eligible.
func (e *Engine) NextTask(epochID string, actor model.Identity) (*model.Task, TaskSelection, error) {
	if warn, err := actor.Validate(); err != nil {
		return nil, NoActionableTask, err
	} else if warn != nil {
		e.log(LogLevelWarn, "%s", warn)
	}

	doc, err := e.loadEpochs()
	if err != nil {
		return nil, NoActionableTask, err
	}
	block := doc.FindEpoch(epochID)
	if block == nil {
		return nil, NoActionableTask, fmt.Errorf("epoch %s: %w", epochID, ErrNotFound)
	}

	task, sel := SelectTask(block.Epoch, actor)
	if sel == TaskFound {
		e.log(LogLevelDebug, "next_task epoch=%s actor=%s result=%s", epochID, actor, task.ID)
	} else {
		e.log(LogLevelDebug, "next_task epoch=%s actor=%s result=none", epochID, actor)
	}
	return task, sel, nil
}

// SelectTask is the pure task-phase selection.
func SelectTask(epoch model.Epoch, actor model.Identity) (*model.Task, TaskSelection) {
	byID := epoch.TasksByID()

	var own, fresh []*model.Task
	for i := range epoch.Tasks {
		t := &epoch.Tasks[i]
		switch {
		case t.Status == model.StatusInProgress && t.ClaimedBy == string(actor):
			own = append(own, t)
		case (t.Status == model.StatusPending || t.Status == model.StatusBlocked) &&
			t.ClaimedBy == "" && t.BlockedBySatisfied(byID):
			// A stored blocked whose dependencies have since completed is
			// claimable, so it is offered too.
			fresh = append(fresh, t)
		}
	}

	bySuffix := func(ts []*model.Task) {
		sort.SliceStable(ts, func(i, j int) bool {
			return model.NumericSuffix(ts[i].ID) < model.NumericSuffix(ts[j].ID)
		})
	}
	bySuffix(own)
	bySuffix(fresh)

	if len(own) > 0 {
		out := *own[0]
		return &out, TaskFound
	}
	if len(fresh) > 0 {
		out := *fresh[0]
		return &out, TaskFound
	}
	return nil, NoActionableTask
}
