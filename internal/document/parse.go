package document

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ajmeyer/waymark/internal/model"
)

const (
	epochFence = "```epoch"
	taskFence  = "```task"
	closeFence = "```"
)

var (
	storyHeadingRe = regexp.MustCompile(`^## +([A-Z][A-Z0-9]*-[0-9]+): *(.*?)\s*$`)
	implementedRe  = regexp.MustCompile(`^- \*\*Implemented in\*\*: *(.+?)\s*$`)
	storyStatusRe  = regexp.MustCompile(`^- \*\*Status\*\*: *(.+?)\s*$`)
	personaRe      = regexp.MustCompile(`^As an? (.+?), I want (.+?), so that (.+?)\.?\s*$`)
	criterionRe    = regexp.MustCompile(`^- \[([ xX])\] +(.*?)\s*$`)
)

const criteriaHeading = "### Acceptance Criteria"

// Parse turns document text into the node list. Only recognized delimited
// blocks are interpreted; everything else is prose, preserved byte-for-byte.
func Parse(src []byte) (*Doc, error) {
	p := &parser{lines: splitLines(src)}
	return p.run()
}

type parser struct {
	lines [][]byte
	i     int // current line index

	doc       Doc
	prose     bytes.Buffer
	seenEpoch map[string]bool
	seenTask  map[string]bool
	seenStory map[string]bool
}

func (p *parser) run() (*Doc, error) {
	p.seenEpoch = make(map[string]bool)
	p.seenTask = make(map[string]bool)
	p.seenStory = make(map[string]bool)

	for p.i < len(p.lines) {
		line := p.lines[p.i]
		trimmed := strings.TrimRight(string(line), "\r\n")

		switch {
		case trimmed == epochFence:
			if err := p.parseFenced(true); err != nil {
				return nil, err
			}
		case trimmed == taskFence:
			if err := p.parseFenced(false); err != nil {
				return nil, err
			}
		case storyHeadingRe.MatchString(trimmed) && p.storyFollows():
			if err := p.parseStory(trimmed); err != nil {
				return nil, err
			}
		default:
			p.prose.Write(line)
			p.i++
		}
	}
	p.flushProse()
	return &p.doc, nil
}

// storyFollows reports whether the heading at p.i opens a story section.
// Epoch headings share the ID-colon-title shape, so the body must carry
// a story field line before the next heading or fence to qualify.
func (p *parser) storyFollows() bool {
	for j := p.i + 1; j < len(p.lines); j++ {
		l := strings.TrimRight(string(p.lines[j]), "\r\n")
		if strings.HasPrefix(l, "## ") || l == epochFence || l == taskFence {
			return false
		}
		if implementedRe.MatchString(l) || storyStatusRe.MatchString(l) {
			return true
		}
	}
	return false
}

func (p *parser) flushProse() {
	if p.prose.Len() == 0 {
		return
	}
	raw := make([]byte, p.prose.Len())
	copy(raw, p.prose.Bytes())
	p.doc.Nodes = append(p.doc.Nodes, &Prose{Raw: raw})
	p.prose.Reset()
}

// parseFenced consumes a ```epoch or ```task block starting at p.i.
func (p *parser) parseFenced(isEpoch bool) error {
	p.flushProse()
	openLine := p.i + 1

	var raw bytes.Buffer
	raw.Write(p.lines[p.i])
	p.i++

	var payload bytes.Buffer
	closed := false
	for p.i < len(p.lines) {
		line := p.lines[p.i]
		raw.Write(line)
		p.i++
		if strings.TrimRight(string(line), "\r\n") == closeFence {
			closed = true
			break
		}
		payload.Write(line)
	}
	if !closed {
		return parseErrorf(openLine, "unterminated %s block", strings.TrimPrefix(fenceName(isEpoch), "```"))
	}

	if isEpoch {
		return p.finishEpoch(raw.Bytes(), payload.Bytes(), openLine)
	}
	return p.finishTask(raw.Bytes(), payload.Bytes(), openLine)
}

func fenceName(isEpoch bool) string {
	if isEpoch {
		return epochFence
	}
	return taskFence
}

func (p *parser) finishEpoch(raw, payload []byte, line int) error {
	var w epochWire
	if err := decodeStrict(payload, &w); err != nil {
		return parseErrorf(line, "epoch block: %v", err)
	}
	epoch, warns, err := convertEpoch(w, line, p.seenTask)
	if err != nil {
		return err
	}
	if epoch.EpochID == "" {
		return parseErrorf(line, "epoch block missing epoch_id")
	}
	if p.seenEpoch[epoch.EpochID] {
		return parseErrorf(line, "duplicate epoch_id %q", epoch.EpochID)
	}
	p.seenEpoch[epoch.EpochID] = true
	p.doc.Warnings = append(p.doc.Warnings, warns...)

	rawCopy := make([]byte, len(raw))
	copy(rawCopy, raw)
	p.doc.Nodes = append(p.doc.Nodes, &EpochBlock{Epoch: epoch, Line: line, raw: rawCopy})
	return nil
}

func (p *parser) finishTask(raw, payload []byte, line int) error {
	var w taskWire
	if err := decodeStrict(payload, &w); err != nil {
		return parseErrorf(line, "task block: %v", err)
	}
	task, warn, err := convertTask(w, line)
	if err != nil {
		return err
	}
	if warn != nil {
		p.doc.Warnings = append(p.doc.Warnings, *warn)
	}
	if p.seenTask[task.ID] {
		return parseErrorf(line, "duplicate task id %q", task.ID)
	}
	p.seenTask[task.ID] = true

	rawCopy := make([]byte, len(raw))
	copy(rawCopy, raw)
	p.doc.Nodes = append(p.doc.Nodes, &TaskBlock{Task: task, Line: line, raw: rawCopy})
	return nil
}

// parseStory consumes a story section: the matched heading through the
// line before the next heading or fence.
func (p *parser) parseStory(heading string) error {
	p.flushProse()
	openLine := p.i + 1
	m := storyHeadingRe.FindStringSubmatch(heading)

	var raw bytes.Buffer
	raw.Write(p.lines[p.i])
	p.i++

	var body []string
	for p.i < len(p.lines) {
		line := p.lines[p.i]
		trimmed := strings.TrimRight(string(line), "\r\n")
		if strings.HasPrefix(trimmed, "## ") || trimmed == epochFence || trimmed == taskFence {
			break
		}
		raw.Write(line)
		body = append(body, trimmed)
		p.i++
	}

	story := model.Story{ID: m[1], Title: m[2], Status: model.StoryPlanned}
	inCriteria := false
	for j, l := range body {
		switch {
		case l == criteriaHeading:
			inCriteria = true
		case implementedRe.MatchString(l):
			v := implementedRe.FindStringSubmatch(l)[1]
			if v != "_unassigned_" && v != "—" {
				story.ImplementedIn = v
			}
		case storyStatusRe.MatchString(l):
			v := storyStatusRe.FindStringSubmatch(l)[1]
			st, err := model.ParseStoryStatus(v)
			if err != nil {
				return parseErrorf(openLine+j+1, "story %s: %v", story.ID, err)
			}
			story.Status = st
		case personaRe.MatchString(l):
			pm := personaRe.FindStringSubmatch(l)
			story.Persona, story.Capability, story.Benefit = pm[1], pm[2], pm[3]
		case inCriteria && criterionRe.MatchString(l):
			cm := criterionRe.FindStringSubmatch(l)
			story.AcceptanceCriteria = append(story.AcceptanceCriteria, model.AcceptanceCriterion{
				Text: cm[2],
				Done: cm[1] != " ",
			})
		}
	}

	if p.seenStory[story.ID] {
		return parseErrorf(openLine, "duplicate story id %q", story.ID)
	}
	p.seenStory[story.ID] = true

	rawCopy := make([]byte, raw.Len())
	copy(rawCopy, raw.Bytes())
	p.doc.Nodes = append(p.doc.Nodes, &StorySection{Story: story, Line: openLine, raw: rawCopy})
	return nil
}

// Wire shapes for the YAML payload of fenced blocks. Field order here is
// the canonical emission order.
type epochWire struct {
	EpochID   string     `yaml:"epoch_id"`
	Title     string     `yaml:"title"`
	Status    string     `yaml:"status,omitempty"`
	Priority  string     `yaml:"priority,omitempty"`
	UserStory string     `yaml:"user_story,omitempty"`
	Archived  string     `yaml:"archived,omitempty"`
	Tasks     []taskWire `yaml:"tasks,omitempty"`
}

type taskWire struct {
	ID            string   `yaml:"id"`
	Title         string   `yaml:"title"`
	Status        string   `yaml:"status"`
	ClaimedBy     string   `yaml:"claimed_by,omitempty"`
	ClaimedAt     string   `yaml:"claimed_at,omitempty"`
	BlockedBy     []string `yaml:"blocked_by,omitempty,flow"`
	CompletedDate string   `yaml:"completed_date,omitempty"`
}

func decodeStrict(payload []byte, out any) error {
	dec := yamlv3.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return fmt.Errorf("empty block")
		}
		return err
	}
	return nil
}

func convertEpoch(w epochWire, line int, seenTask map[string]bool) (model.Epoch, []model.Warning, error) {
	var warns []model.Warning

	e := model.Epoch{
		EpochID:   w.EpochID,
		Title:     w.Title,
		UserStory: w.UserStory,
		Archived:  w.Archived,
	}

	if w.Status != "" {
		st, warn, err := model.ParseStatus(w.Status)
		if err != nil {
			return model.Epoch{}, nil, parseErrorf(line, "epoch %s: %v", w.EpochID, err)
		}
		if warn != nil {
			warn.Subject = w.EpochID
			warns = append(warns, *warn)
		}
		e.Stored = &st
	}

	pr, warn := model.ParsePriority(w.Priority)
	if warn != nil {
		warn.Subject = w.EpochID
		warns = append(warns, *warn)
	}
	e.Priority = pr

	local := make(map[string]bool, len(w.Tasks))
	for _, tw := range w.Tasks {
		t, warn, err := convertTask(tw, line)
		if err != nil {
			return model.Epoch{}, nil, err
		}
		if warn != nil {
			warns = append(warns, *warn)
		}
		if local[t.ID] || seenTask[t.ID] {
			return model.Epoch{}, nil, parseErrorf(line, "duplicate task id %q", t.ID)
		}
		local[t.ID] = true
		seenTask[t.ID] = true
		e.Tasks = append(e.Tasks, t)
	}
	return e, warns, nil
}

func convertTask(w taskWire, line int) (model.Task, *model.Warning, error) {
	if w.ID == "" {
		return model.Task{}, nil, parseErrorf(line, "task missing id")
	}
	st, warn, err := model.ParseStatus(w.Status)
	if err != nil {
		return model.Task{}, nil, parseErrorf(line, "task %s: %v", w.ID, err)
	}
	if warn != nil {
		warn.Subject = w.ID
	}
	t := model.Task{
		ID:            w.ID,
		Title:         w.Title,
		Status:        st,
		ClaimedBy:     w.ClaimedBy,
		BlockedBy:     w.BlockedBy,
		CompletedDate: w.CompletedDate,
	}
	if w.ClaimedAt != "" {
		ts, err := time.Parse(time.RFC3339, w.ClaimedAt)
		if err != nil {
			return model.Task{}, nil, parseErrorf(line, "task %s: claimed_at: %v", w.ID, err)
		}
		t.ClaimedAt = &ts
	}
	return t, warn, nil
}

func splitLines(src []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			lines = append(lines, src[start:i+1])
			start = i + 1
		}
	}
	if start < len(src) {
		lines = append(lines, src[start:])
	}
	return lines
}
