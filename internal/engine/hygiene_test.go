package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajmeyer/waymark/internal/document"
	"github.com/ajmeyer/waymark/internal/model"
	"github.com/ajmeyer/waymark/internal/store"
)

const archivableFixture = `# Epochs

## EPOCH-001: Shipped

` + "```epoch" + `
epoch_id: EPOCH-001
title: Shipped
priority: p1
tasks:
    - id: EPOCH-001-T1
      title: First
      status: complete
      completed_date: "2026-08-10"
    - id: EPOCH-001-T2
      title: Second
      status: complete
      completed_date: "2026-08-12"
` + "```" + `

## EPOCH-002: Half done

` + "```epoch" + `
epoch_id: EPOCH-002
title: Half done
tasks:
    - id: EPOCH-002-T1
      title: Done
      status: complete
      completed_date: "2026-08-11"
    - id: EPOCH-002-T2
      title: Not done
      status: pending
` + "```" + `
`

func newHygieneEngine(t *testing.T, epochsDoc string) (*Engine, *testStores, string, string) {
	t.Helper()
	worklogDir := filepath.Join(t.TempDir(), "worklogs")
	archiveDir := filepath.Join(worklogDir, "archive")
	require.NoError(t, os.MkdirAll(worklogDir, 0755))

	s := &testStores{
		epochs:    store.NewMemStore([]byte(epochsDoc)),
		stories:   store.NewMemStore(nil),
		completed: store.NewMemStore(nil),
	}
	e := New(Options{
		Epochs:     s.epochs,
		Stories:    s.stories,
		Completed:  s.completed,
		WorklogDir: worklogDir,
		ArchiveDir: archiveDir,
		Logger:     log.New(io.Discard, "", 0),
		Now:        func() time.Time { return testNow },
	})
	return e, s, worklogDir, archiveDir
}

func writeWorkLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestHygiene_FindsArchivableEpochs(t *testing.T) {
	e, _, _, _ := newHygieneEngine(t, archivableFixture)

	report, err := e.Hygiene(context.Background())
	require.NoError(t, err)
	require.Len(t, report.ArchivableEpochs, 1)
	require.Equal(t, "EPOCH-001", report.ArchivableEpochs[0].Epoch.EpochID)
}

func TestHygiene_ReportsOrphanTasks(t *testing.T) {
	doc := "```task" + `
id: TASK-999
title: Floating work
status: pending
` + "```" + `
`
	e, _, _, _ := newHygieneEngine(t, doc)

	report, err := e.Hygiene(context.Background())
	require.NoError(t, err)
	require.Len(t, report.OrphanTasks, 1)
	require.Equal(t, "TASK-999", report.OrphanTasks[0].ID)

	var codes []model.WarningCode
	for _, w := range report.Warnings {
		codes = append(codes, w.Code)
	}
	require.Contains(t, codes, model.WarnOrphanTask)
}

func TestHygiene_ClassifiesWorkLogs(t *testing.T) {
	e, _, worklogDir, _ := newHygieneEngine(t, archivableFixture)

	// References a complete task: strongest rule wins.
	writeWorkLog(t, worklogDir, "20260810-0900-EPOCH-001-first.md",
		"---\ntask_id: EPOCH-001-T1\nstatus: in_progress\n---\nnotes\n")
	// References a still-active epoch but self-declares done.
	writeWorkLog(t, worklogDir, "20260811-1400-EPOCH-002.md",
		"---\ntask_id: EPOCH-002-T2\nhandoff_status: done\n---\nnotes\n")
	// Active work, nothing stale about it.
	writeWorkLog(t, worklogDir, "20260812-1000-EPOCH-002.md",
		"---\ntask_id: EPOCH-002-T2\nstatus: in_progress\n---\nnotes\n")

	report, err := e.Hygiene(context.Background())
	require.NoError(t, err)
	require.Len(t, report.StaleWorkLogs, 2)

	byPath := map[string]model.ArchiveReason{}
	for _, f := range report.StaleWorkLogs {
		byPath[filepath.Base(f.Log.Path)] = f.Reason
	}
	require.Equal(t, model.ReasonTaskCompleted, byPath["20260810-0900-EPOCH-001-first.md"])
	require.Equal(t, model.ReasonStatusComplete, byPath["20260811-1400-EPOCH-002.md"])
}

func TestHygiene_EpochReferenceMatchesArchivedEpochs(t *testing.T) {
	e, _, worklogDir, _ := newHygieneEngine(t, archivableFixture)

	require.NoError(t, e.Archive("EPOCH-001"))

	// No task_id in the header; the filename's epoch reference resolves
	// against the completed store after archival.
	writeWorkLog(t, worklogDir, "20260812-1430-EPOCH-001-wrapup.md", "plain notes, no frontmatter\n")

	report, err := e.Hygiene(context.Background())
	require.NoError(t, err)
	require.Len(t, report.StaleWorkLogs, 1)
	require.Equal(t, model.ReasonEpochCompleted, report.StaleWorkLogs[0].Reason)
}

func TestHygiene_MalformedWorkLogIsWarning(t *testing.T) {
	e, _, worklogDir, _ := newHygieneEngine(t, archivableFixture)
	writeWorkLog(t, worklogDir, "20260812-1500.md", "---\ntask_id: [broken\n---\n")

	report, err := e.Hygiene(context.Background())
	require.NoError(t, err)

	var codes []model.WarningCode
	for _, w := range report.Warnings {
		codes = append(codes, w.Code)
	}
	require.Contains(t, codes, model.WarnMalformedWorkLog)
}

func TestApplyDisposition(t *testing.T) {
	e, _, worklogDir, archiveDir := newHygieneEngine(t, archivableFixture)
	path := writeWorkLog(t, worklogDir, "20260810-0900-EPOCH-001.md", "notes\n")

	require.NoError(t, e.ApplyDisposition(path, DispositionKeep))
	_, err := os.Stat(path)
	require.NoError(t, err, "keep leaves the record in place")

	require.NoError(t, e.ApplyDisposition(path, DispositionArchive))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(archiveDir, "20260810-0900-EPOCH-001.md"))
	require.NoError(t, err)

	other := writeWorkLog(t, worklogDir, "20260811-0900.md", "notes\n")
	require.NoError(t, e.ApplyDisposition(other, DispositionDelete))
	_, err = os.Stat(other)
	require.True(t, os.IsNotExist(err))
}

func TestApplyDisposition_RefusesOutsidePaths(t *testing.T) {
	e, _, _, _ := newHygieneEngine(t, archivableFixture)
	outside := filepath.Join(t.TempDir(), "20260810-0900.md")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))
	require.Error(t, e.ApplyDisposition(outside, DispositionDelete))
}

const driftedFixture = `# Epochs

## EPOCH-007: Declared done

` + "```epoch" + `
epoch_id: EPOCH-007
title: Declared done
status: complete
tasks:
    - id: EPOCH-007-T1
      title: Finished
      status: complete
      completed_date: "2026-08-20"
    - id: EPOCH-007-T2
      title: Still open
      status: pending
` + "```" + `
`

func TestHygiene_ExplicitCompleteOverPendingTasksNotArchivable(t *testing.T) {
	e, _, _, _ := newHygieneEngine(t, driftedFixture)

	report, err := e.Hygiene(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.ArchivableEpochs, "drifted epoch still has live work")

	var codes []model.WarningCode
	for _, w := range report.Warnings {
		codes = append(codes, w.Code)
	}
	require.Contains(t, codes, model.WarnStatusDrift)
}

func TestArchive_ExplicitCompleteOverPendingTasksRefused(t *testing.T) {
	e, s, _, _ := newHygieneEngine(t, driftedFixture)

	err := e.Archive("EPOCH-007")
	require.True(t, errors.Is(err, ErrNotArchivable))

	active, loadErr := s.epochs.Load()
	require.NoError(t, loadErr)
	activeDoc, parseErr := document.Parse(active)
	require.NoError(t, parseErr)
	require.NotNil(t, activeDoc.FindEpoch("EPOCH-007"), "live work stays in the active store")

	completed, loadErr := s.completed.Load()
	require.NoError(t, loadErr)
	require.Empty(t, completed)
}

func TestArchive_RelocatesEpochIntact(t *testing.T) {
	e, s, _, _ := newHygieneEngine(t, archivableFixture)

	require.NoError(t, e.Archive("EPOCH-001"))

	active, err := s.epochs.Load()
	require.NoError(t, err)
	activeDoc, err := document.Parse(active)
	require.NoError(t, err)
	require.Nil(t, activeDoc.FindEpoch("EPOCH-001"))
	require.NotNil(t, activeDoc.FindEpoch("EPOCH-002"), "unrelated epoch untouched")
	require.NotContains(t, string(active), "## EPOCH-001: Shipped", "heading goes with the block")

	completed, err := s.completed.Load()
	require.NoError(t, err)
	completedDoc, err := document.Parse(completed)
	require.NoError(t, err)
	block := completedDoc.FindEpoch("EPOCH-001")
	require.NotNil(t, block)
	require.Len(t, block.Epoch.Tasks, 2, "full task subtree relocated")
	require.Equal(t, "2026-08-30", block.Epoch.Archived)
}

func TestArchive_IncompleteEpochRefused(t *testing.T) {
	e, s, _, _ := newHygieneEngine(t, archivableFixture)

	err := e.Archive("EPOCH-002")
	require.True(t, errors.Is(err, ErrNotArchivable))

	// Nothing moved.
	completed, loadErr := s.completed.Load()
	require.NoError(t, loadErr)
	require.Empty(t, completed)
}

func TestArchive_UnknownEpoch(t *testing.T) {
	e, _, _, _ := newHygieneEngine(t, archivableFixture)
	err := e.Archive("EPOCH-099")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestArchive_ReplacesStaleCompletedRecord(t *testing.T) {
	e, s, _, _ := newHygieneEngine(t, archivableFixture)

	// A prior attempt archived an older shape of the epoch and crashed
	// before removing the active copy, which has since grown a task.
	require.NoError(t, s.completed.Atomically(func(current []byte) ([]byte, bool, error) {
		doc, err := document.Parse(current)
		if err != nil {
			return nil, false, err
		}
		doc.AppendEpoch(model.Epoch{
			EpochID:  "EPOCH-001",
			Title:    "Shipped",
			Priority: model.PriorityP1,
			Archived: "2026-08-28",
			Tasks: []model.Task{
				{ID: "EPOCH-001-T1", Title: "First", Status: model.StatusComplete, CompletedDate: "2026-08-10"},
			},
		})
		return doc.Bytes(), true, nil
	}))

	require.NoError(t, e.Archive("EPOCH-001"))

	completed, err := s.completed.Load()
	require.NoError(t, err)
	completedDoc, err := document.Parse(completed)
	require.NoError(t, err)
	require.Len(t, completedDoc.Epochs(), 1, "stale record replaced, not duplicated")
	block := completedDoc.FindEpoch("EPOCH-001")
	require.NotNil(t, block)
	require.Len(t, block.Epoch.Tasks, 2, "record carries the current task subtree")
}

// afterStore runs a hook after each successful Atomically, standing in
// for a writer that sneaks in between two store operations.
type afterStore struct {
	store.Store
	after func()
}

func (a *afterStore) Atomically(mutate func([]byte) ([]byte, bool, error)) error {
	err := a.Store.Atomically(mutate)
	if err == nil && a.after != nil {
		a.after()
	}
	return err
}

func TestArchive_ConcurrentEditAbortsRemoval(t *testing.T) {
	e, s, _, _ := newHygieneEngine(t, archivableFixture)

	// Between the completed-store write and the active removal another
	// writer reopens a task. The removal must not drop that work.
	e.completed = &afterStore{Store: s.completed, after: func() {
		require.NoError(t, s.epochs.Atomically(func(current []byte) ([]byte, bool, error) {
			doc, err := document.Parse(current)
			if err != nil {
				return nil, false, err
			}
			block, i := doc.FindTask("EPOCH-001-T2")
			ep := block.Epoch
			ep.Tasks[i].Status = model.StatusPending
			ep.Tasks[i].CompletedDate = ""
			block.Update(ep)
			return doc.Bytes(), true, nil
		}))
	}}

	err := e.Archive("EPOCH-001")
	require.True(t, errors.Is(err, ErrClaimConflict))

	active, loadErr := s.epochs.Load()
	require.NoError(t, loadErr)
	activeDoc, parseErr := document.Parse(active)
	require.NoError(t, parseErr)
	require.NotNil(t, activeDoc.FindEpoch("EPOCH-001"), "reopened epoch stays active")
}

func TestArchive_RetryAfterCrashDoesNotDuplicate(t *testing.T) {
	e, s, _, _ := newHygieneEngine(t, archivableFixture)

	// Simulate a crash between the two writes: the record already landed
	// in the completed store but the active copy was never removed.
	require.NoError(t, s.completed.Atomically(func(current []byte) ([]byte, bool, error) {
		doc, err := document.Parse(current)
		if err != nil {
			return nil, false, err
		}
		active, err := s.epochs.Load()
		if err != nil {
			return nil, false, err
		}
		activeDoc, err := document.Parse(active)
		if err != nil {
			return nil, false, err
		}
		record := activeDoc.FindEpoch("EPOCH-001").Epoch
		record.Archived = "2026-08-29"
		doc.AppendEpoch(record)
		return doc.Bytes(), true, nil
	}))

	require.NoError(t, e.Archive("EPOCH-001"))

	completed, err := s.completed.Load()
	require.NoError(t, err)
	completedDoc, err := document.Parse(completed)
	require.NoError(t, err)
	require.Len(t, completedDoc.Epochs(), 1, "no duplicate record")

	active, err := s.epochs.Load()
	require.NoError(t, err)
	activeDoc, err := document.Parse(active)
	require.NoError(t, err)
	require.Nil(t, activeDoc.FindEpoch("EPOCH-001"))
}
