package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajmeyer/waymark/internal/document"
	"github.com/ajmeyer/waymark/internal/model"
	"github.com/ajmeyer/waymark/internal/worklog"
)

// WorkLogFinding is one archive candidate with the rule that matched.
type WorkLogFinding struct {
	Log    model.WorkLog
	Reason model.ArchiveReason
}

// HygieneReport separates hard findings (archivable, stale, orphan) from
// warnings. Detection only; nothing is moved or deleted here.
type HygieneReport struct {
	ArchivableEpochs []EpochView
	StaleWorkLogs    []WorkLogFinding
	OrphanTasks      []model.Task
	Warnings         []model.Warning
}

// Hygiene scans the active store, the completed store, and the work-log
// directory, and proposes archival work.
func (e *Engine) Hygiene(ctx context.Context) (*HygieneReport, error) {
	doc, err := e.loadEpochs()
	if err != nil {
		return nil, err
	}
	completedDoc, err := e.loadCompleted()
	if err != nil {
		return nil, err
	}

	views, warns := deriveViews(doc)
	report := &HygieneReport{Warnings: warns}

	for _, v := range views {
		// Archivability is judged on the tasks alone. An explicit
		// status: complete over incomplete tasks is drift, not consent
		// to drop live work; the drift warning is already in warns.
		if v.Derived == model.StatusComplete && len(v.Epoch.Tasks) > 0 {
			report.ArchivableEpochs = append(report.ArchivableEpochs, v)
		}
	}

	for _, b := range doc.OrphanTasks() {
		report.OrphanTasks = append(report.OrphanTasks, b.Task)
		report.Warnings = append(report.Warnings, model.Warning{
			Code:    model.WarnOrphanTask,
			Subject: b.Task.ID,
			Message: fmt.Sprintf("task %s has no enclosing epoch", b.Task.ID),
		})
	}

	logs, logWarns, err := worklog.ScanDir(ctx, e.worklogDir)
	if err != nil {
		return nil, err
	}
	report.Warnings = append(report.Warnings, logWarns...)

	idx := buildArchiveIndex(views, completedDoc)
	for _, wl := range logs {
		if reason, ok := classifyWorkLog(wl, idx); ok {
			report.StaleWorkLogs = append(report.StaleWorkLogs, WorkLogFinding{Log: wl, Reason: reason})
		}
	}

	e.log(LogLevelDebug, "hygiene archivable=%d stale_logs=%d orphan_tasks=%d warnings=%d",
		len(report.ArchivableEpochs), len(report.StaleWorkLogs), len(report.OrphanTasks), len(report.Warnings))
	return report, nil
}

// archiveIndex answers "is this task/epoch finished" across both stores:
// complete in the active store or already relocated to the completed one.
type archiveIndex struct {
	completedTasks  map[string]bool
	completedEpochs map[string]bool
}

func buildArchiveIndex(views []EpochView, completedDoc *document.Doc) *archiveIndex {
	idx := &archiveIndex{
		completedTasks:  make(map[string]bool),
		completedEpochs: make(map[string]bool),
	}
	for _, v := range views {
		if v.Derived == model.StatusComplete {
			idx.completedEpochs[v.Epoch.EpochID] = true
		}
		for _, t := range v.Epoch.Tasks {
			if t.Status == model.StatusComplete {
				idx.completedTasks[t.ID] = true
			}
		}
	}
	for _, b := range completedDoc.Epochs() {
		idx.completedEpochs[b.Epoch.EpochID] = true
		for _, t := range b.Epoch.Tasks {
			idx.completedTasks[t.ID] = true
		}
	}
	return idx
}

func classifyWorkLog(wl model.WorkLog, idx *archiveIndex) (model.ArchiveReason, bool) {
	if wl.TaskID != "" && idx.completedTasks[wl.TaskID] {
		return model.ReasonTaskCompleted, true
	}
	if wl.EpochID != "" && idx.completedEpochs[wl.EpochID] {
		return model.ReasonEpochCompleted, true
	}
	switch strings.ToLower(wl.Status) {
	case "complete", "completed", "done":
		return model.ReasonStatusComplete, true
	}
	switch strings.ToLower(wl.HandoffStatus) {
	case "complete", "completed", "done":
		return model.ReasonStatusComplete, true
	}
	return "", false
}

// Disposition is the explicit per-record decision for a stale work log.
type Disposition string

const (
	DispositionKeep    Disposition = "keep"
	DispositionDelete  Disposition = "delete"
	DispositionArchive Disposition = "archive"
)

// ApplyDisposition executes one decision from a hygiene report. Paths
// outside the work-log directory are refused.
func (e *Engine) ApplyDisposition(logPath string, d Disposition) error {
	abs, err := filepath.Abs(logPath)
	if err != nil {
		return err
	}
	dirAbs, err := filepath.Abs(e.worklogDir)
	if err != nil {
		return err
	}
	if filepath.Dir(abs) != dirAbs {
		return fmt.Errorf("work log %s is outside %s", logPath, e.worklogDir)
	}

	switch d {
	case DispositionKeep:
		return nil
	case DispositionDelete:
		if err := os.Remove(abs); err != nil {
			return fmt.Errorf("delete work log: %w", err)
		}
		e.log(LogLevelInfo, "worklog_delete path=%s", abs)
		return nil
	case DispositionArchive:
		if err := os.MkdirAll(e.archiveDir, 0755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		dst := filepath.Join(e.archiveDir, filepath.Base(abs))
		if err := os.Rename(abs, dst); err != nil {
			return fmt.Errorf("move work log to archive: %w", err)
		}
		e.log(LogLevelInfo, "worklog_archive path=%s dst=%s", abs, dst)
		return nil
	default:
		return fmt.Errorf("unknown disposition %q", d)
	}
}

// Archive relocates a fully complete epoch into the completed store and
// removes it from the active store. All-or-nothing per epoch; the record
// lands in the completed store before the active store drops it, so a
// crash between the writes duplicates rather than loses. Every task must
// be complete; an explicit epoch status never overrides that.
func (e *Engine) Archive(epochID string) error {
	doc, err := e.loadEpochs()
	if err != nil {
		return err
	}
	block := doc.FindEpoch(epochID)
	if block == nil {
		return fmt.Errorf("epoch %s: %w", epochID, ErrNotFound)
	}
	if v := buildView(block.Epoch); v.Derived != model.StatusComplete || len(block.Epoch.Tasks) == 0 {
		return fmt.Errorf("epoch %s derives %s with %d tasks: %w",
			epochID, v.Derived, len(block.Epoch.Tasks), ErrNotArchivable)
	}

	stamp := e.now().UTC().Format("2006-01-02")
	record := block.Epoch
	record.Archived = stamp

	err = e.completed.Atomically(func(current []byte) ([]byte, bool, error) {
		cdoc, err := e.parse(current, e.completed)
		if err != nil {
			return nil, false, err
		}
		if existing := cdoc.FindEpoch(epochID); existing != nil {
			if epochContentEqual(existing.Epoch, record) {
				return nil, false, nil // prior attempt already landed this content
			}
			// A prior attempt archived an older shape of the epoch and
			// then lost the removal race. Replace the stale record.
			existing.Update(record)
			return cdoc.Bytes(), true, nil
		}
		cdoc.AppendEpoch(record)
		return cdoc.Bytes(), true, nil
	})
	if err != nil {
		return err
	}

	err = e.mutateEpochDoc(func(doc *document.Doc) (bool, error) {
		block := doc.FindEpoch(epochID)
		if block == nil {
			return false, nil // another actor removed it between writes
		}
		// The active epoch must still be exactly what was archived;
		// anything else means a concurrent edit and the caller retries.
		if !epochContentEqual(block.Epoch, record) {
			return false, fmt.Errorf("epoch %s changed since verification: %w", epochID, ErrClaimConflict)
		}
		doc.RemoveEpoch(epochID)
		return true, nil
	})
	if err != nil {
		return err
	}

	e.log(LogLevelInfo, "epoch_archive epoch=%s date=%s", epochID, stamp)
	e.notifyEvent("archive", epochID)
	return nil
}

// epochContentEqual compares two epochs by canonical emission, ignoring
// the archival stamp.
func epochContentEqual(a, b model.Epoch) bool {
	a.Archived = ""
	b.Archived = ""
	return bytes.Equal(document.EncodeEpoch(a), document.EncodeEpoch(b))
}
