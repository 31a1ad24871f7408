// Package notify runs an external command when coordination events
// happen. Delivery is best-effort; the engine never depends on it.
package notify

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Hook is a configured notification command. The event name and subject
// are passed through the environment so the hook script stays free-form.
type Hook struct {
	argv []string
}

// NewHook returns nil for an empty argv, which callers treat as
// notifications disabled.
func NewHook(argv []string) *Hook {
	if len(argv) == 0 {
		return nil
	}
	return &Hook{argv: argv}
}

func (h *Hook) Notify(event, subject string) error {
	cmd := exec.Command(h.argv[0], h.argv[1:]...)
	cmd.Env = append(os.Environ(),
		"WAYMARK_EVENT="+event,
		"WAYMARK_SUBJECT="+subject,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify hook: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
