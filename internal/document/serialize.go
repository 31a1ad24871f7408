package document

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ajmeyer/waymark/internal/model"
)

// EncodeEpoch emits the canonical fenced block for an epoch. Emitted form
// parses back to the same record, so emit → parse → emit is a fixpoint.
func EncodeEpoch(e model.Epoch) []byte {
	w := epochWire{
		EpochID:   e.EpochID,
		Title:     e.Title,
		Priority:  e.Priority.String(),
		UserStory: e.UserStory,
		Archived:  e.Archived,
	}
	if e.Stored != nil {
		w.Status = string(*e.Stored)
	}
	for _, t := range e.Tasks {
		tw := taskWire{
			ID:            t.ID,
			Title:         t.Title,
			Status:        string(t.Status),
			ClaimedBy:     t.ClaimedBy,
			BlockedBy:     t.BlockedBy,
			CompletedDate: t.CompletedDate,
		}
		if t.ClaimedAt != nil {
			tw.ClaimedAt = t.ClaimedAt.UTC().Format(time.RFC3339)
		}
		w.Tasks = append(w.Tasks, tw)
	}

	// Marshal of a plain struct cannot fail.
	payload, _ := yamlv3.Marshal(&w)

	var buf bytes.Buffer
	buf.WriteString(epochFence)
	buf.WriteByte('\n')
	buf.Write(payload)
	buf.WriteString(closeFence)
	buf.WriteByte('\n')
	return buf.Bytes()
}

// EncodeStory emits the canonical story section: heading, reference fields,
// persona sentence, acceptance checklist, fixed order.
func EncodeStory(s model.Story) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "## %s: %s\n\n", s.ID, s.Title)

	impl := s.ImplementedIn
	if impl == "" {
		impl = "_unassigned_"
	}
	fmt.Fprintf(&buf, "- **Implemented in**: %s\n", impl)
	fmt.Fprintf(&buf, "- **Status**: %s\n", s.Status)

	if s.Persona != "" {
		fmt.Fprintf(&buf, "\nAs %s %s, I want %s, so that %s.\n", article(s.Persona), s.Persona, s.Capability, s.Benefit)
	}

	if len(s.AcceptanceCriteria) > 0 {
		buf.WriteString("\n" + criteriaHeading + "\n\n")
		for _, c := range s.AcceptanceCriteria {
			mark := " "
			if c.Done {
				mark = "x"
			}
			fmt.Fprintf(&buf, "- [%s] %s\n", mark, c.Text)
		}
	}
	// Keep a blank line between this section and whatever follows it.
	buf.WriteByte('\n')
	return buf.Bytes()
}

func article(noun string) string {
	if noun == "" {
		return "a"
	}
	if strings.ContainsRune("aeiouAEIOU", rune(noun[0])) {
		return "an"
	}
	return "a"
}
