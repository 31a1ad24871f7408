package model

import (
	"testing"
	"time"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		want  Status
	}{
		{"empty", nil, StatusPending},
		{"all complete", []Task{
			{ID: "T1", Status: StatusComplete},
			{ID: "T2", Status: StatusComplete},
		}, StatusComplete},
		{"complete and in_progress", []Task{
			{ID: "T1", Status: StatusComplete},
			{ID: "T2", Status: StatusInProgress},
		}, StatusInProgress},
		{"complete and blocked unresolved", []Task{
			{ID: "T1", Status: StatusComplete},
			{ID: "T2", Status: StatusBlocked, BlockedBy: []string{"T3"}},
			{ID: "T3", Status: StatusPending},
		}, StatusBlocked},
		{"all pending", []Task{
			{ID: "T1", Status: StatusPending},
			{ID: "T2", Status: StatusPending},
		}, StatusPending},
		{"stored blocked but deps satisfied", []Task{
			{ID: "T1", Status: StatusComplete},
			{ID: "T2", Status: StatusBlocked, BlockedBy: []string{"T1"}},
		}, StatusPending},
		{"pending task blocked by incomplete dep", []Task{
			{ID: "T1", Status: StatusPending, BlockedBy: []string{"T2"}},
			{ID: "T2", Status: StatusPending},
		}, StatusBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.tasks); got != tt.want {
				t.Errorf("DeriveStatus: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveStatus_BlockedByMissingDep(t *testing.T) {
	// A reference to a task that does not exist counts as unsatisfied.
	tasks := []Task{
		{ID: "T1", Status: StatusBlocked, BlockedBy: []string{"T9"}},
	}
	if got := DeriveStatus(tasks); got != StatusBlocked {
		t.Errorf("got %q, want %q", got, StatusBlocked)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in       string
		want     Status
		warn     bool
		parseErr bool
	}{
		{"pending", StatusPending, false, false},
		{"in_progress", StatusInProgress, false, false},
		{"blocked", StatusBlocked, false, false},
		{"complete", StatusComplete, false, false},
		{"completed", StatusComplete, true, false},
		{"done", StatusComplete, true, false},
		{"in-progress", StatusInProgress, true, false},
		{"bogus", "", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		got, warn, err := ParseStatus(tt.in)
		if tt.parseErr {
			if err == nil {
				t.Errorf("ParseStatus(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStatus(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q): got %q, want %q", tt.in, got, tt.want)
		}
		if (warn != nil) != tt.warn {
			t.Errorf("ParseStatus(%q): warning presence = %v, want %v", tt.in, warn != nil, tt.warn)
		}
	}
}

func TestValidateClaimTransition(t *testing.T) {
	if err := ValidateClaimTransition(StatusPending, StatusInProgress); err != nil {
		t.Errorf("pending → in_progress should be valid: %v", err)
	}
	if err := ValidateClaimTransition(StatusInProgress, StatusPending); err != nil {
		t.Errorf("release should be valid: %v", err)
	}
	if err := ValidateClaimTransition(StatusInProgress, StatusComplete); err != nil {
		t.Errorf("complete should be valid: %v", err)
	}
	if err := ValidateClaimTransition(StatusComplete, StatusInProgress); err == nil {
		t.Error("transition from terminal status should fail")
	}
	if err := ValidateClaimTransition(StatusPending, StatusComplete); err == nil {
		t.Error("pending → complete should fail")
	}
}

func TestStaleClaim(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	old := now.Add(-25 * time.Hour)
	fresh := now.Add(-1 * time.Hour)

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"unclaimed", Task{}, false},
		{"fresh claim", Task{ClaimedBy: "agent-x", ClaimedAt: &fresh}, false},
		{"stale claim", Task{ClaimedBy: "agent-x", ClaimedAt: &old}, true},
		{"claim without timestamp", Task{ClaimedBy: "agent-x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.StaleClaim(now, window); got != tt.want {
				t.Errorf("StaleClaim: got %v, want %v", got, tt.want)
			}
		})
	}
}
