// Package document parses and re-serializes the shared coordination
// document: free-form markdown interleaved with fenced epoch blocks and
// story sections. Untouched nodes keep their exact source bytes so a no-op
// round trip is byte-identical.
package document

import (
	"bytes"
	"strings"

	"github.com/ajmeyer/waymark/internal/model"
)

// Node is one span of the document. Exactly one of the concrete types
// below; every node retains the raw bytes it was parsed from.
type Node interface {
	bytes() []byte
}

// Prose is inert content between recognized blocks.
type Prose struct {
	Raw []byte
}

func (p *Prose) bytes() []byte { return p.Raw }

// EpochBlock is a fenced ```epoch block. Mutations go through Update so
// the node re-serializes canonically instead of reusing stale source.
type EpochBlock struct {
	Epoch model.Epoch
	Line  int

	raw   []byte
	dirty bool
}

func (b *EpochBlock) bytes() []byte {
	if b.dirty || b.raw == nil {
		return EncodeEpoch(b.Epoch)
	}
	return b.raw
}

// Update replaces the record and marks the node for canonical re-emit.
func (b *EpochBlock) Update(e model.Epoch) {
	b.Epoch = e
	b.dirty = true
}

// TaskBlock is a bare fenced ```task block: a task with no enclosing
// epoch. The store permits the shape; hygiene reports it as an orphan.
type TaskBlock struct {
	Task model.Task
	Line int

	raw []byte
}

func (b *TaskBlock) bytes() []byte { return b.raw }

// StorySection is a heading-delimited user story.
type StorySection struct {
	Story model.Story
	Line  int

	raw   []byte
	dirty bool
}

func (s *StorySection) bytes() []byte {
	if s.dirty || s.raw == nil {
		return EncodeStory(s.Story)
	}
	return s.raw
}

func (s *StorySection) Update(st model.Story) {
	s.Story = st
	s.dirty = true
}

// Doc is the parsed document: an ordered node list plus the non-fatal
// warnings collected while parsing.
type Doc struct {
	Nodes    []Node
	Warnings []model.Warning
}

// Bytes re-emits the document. Nodes that were never updated contribute
// their source bytes unchanged.
func (d *Doc) Bytes() []byte {
	var buf bytes.Buffer
	for _, n := range d.Nodes {
		buf.Write(n.bytes())
	}
	return buf.Bytes()
}

// Epochs returns the epoch blocks in document order.
func (d *Doc) Epochs() []*EpochBlock {
	var out []*EpochBlock
	for _, n := range d.Nodes {
		if b, ok := n.(*EpochBlock); ok {
			out = append(out, b)
		}
	}
	return out
}

// OrphanTasks returns bare task blocks in document order.
func (d *Doc) OrphanTasks() []*TaskBlock {
	var out []*TaskBlock
	for _, n := range d.Nodes {
		if b, ok := n.(*TaskBlock); ok {
			out = append(out, b)
		}
	}
	return out
}

// Stories returns the story sections in document order.
func (d *Doc) Stories() []*StorySection {
	var out []*StorySection
	for _, n := range d.Nodes {
		if s, ok := n.(*StorySection); ok {
			out = append(out, s)
		}
	}
	return out
}

// FindEpoch returns the block holding the given epoch_id, or nil.
func (d *Doc) FindEpoch(epochID string) *EpochBlock {
	for _, b := range d.Epochs() {
		if b.Epoch.EpochID == epochID {
			return b
		}
	}
	return nil
}

// FindTask returns the block and task index for a globally addressable
// task id, or (nil, -1).
func (d *Doc) FindTask(taskID string) (*EpochBlock, int) {
	for _, b := range d.Epochs() {
		for i := range b.Epoch.Tasks {
			if b.Epoch.Tasks[i].ID == taskID {
				return b, i
			}
		}
	}
	return nil, -1
}

// FindStory returns the section holding the given story id, or nil.
func (d *Doc) FindStory(storyID string) *StorySection {
	for _, s := range d.Stories() {
		if s.Story.ID == storyID {
			return s
		}
	}
	return nil
}

// RemoveEpoch drops the epoch's block from the node list. When the
// immediately preceding prose ends with a heading line naming the epoch,
// that heading (and trailing blank lines under it) is dropped too.
// Returns false when the epoch is not present.
func (d *Doc) RemoveEpoch(epochID string) bool {
	for i, n := range d.Nodes {
		b, ok := n.(*EpochBlock)
		if !ok || b.Epoch.EpochID != epochID {
			continue
		}
		d.Nodes = append(d.Nodes[:i], d.Nodes[i+1:]...)
		if i > 0 {
			if p, ok := d.Nodes[i-1].(*Prose); ok {
				p.Raw = trimEpochHeading(p.Raw, epochID)
			}
		}
		return true
	}
	return false
}

// AppendEpoch appends a canonical epoch block, separated from existing
// content by a blank line.
func (d *Doc) AppendEpoch(e model.Epoch) {
	if len(d.Nodes) > 0 {
		d.Nodes = append(d.Nodes, &Prose{Raw: []byte("\n")})
	}
	d.Nodes = append(d.Nodes, &EpochBlock{Epoch: e, dirty: true})
}

// trimEpochHeading removes a trailing markdown heading that names the
// epoch, along with blank lines between it and the removed block.
func trimEpochHeading(raw []byte, epochID string) []byte {
	lines := splitLines(raw)
	end := len(lines)
	for end > 0 && strings.TrimSpace(string(lines[end-1])) == "" {
		end--
	}
	if end == 0 {
		return raw
	}
	last := strings.TrimSpace(string(lines[end-1]))
	if strings.HasPrefix(last, "#") && strings.Contains(last, epochID) {
		return bytes.Join(lines[:end-1], nil)
	}
	return raw
}
