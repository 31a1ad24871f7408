package engine

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/ajmeyer/waymark/internal/store"
)

// testNow is the fixed clock every engine test runs on.
var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

const epochsFixture = `# Epochs

## EPOCH-001: Parser rewrite

` + "```epoch" + `
epoch_id: EPOCH-001
title: Parser rewrite
priority: p1
user_story: US-001
tasks:
    - id: EPOCH-001-T1
      title: Tokenizer
      status: complete
      completed_date: "2026-08-01"
    - id: EPOCH-001-T2
      title: AST builder
      status: pending
      blocked_by: [EPOCH-001-T1]
    - id: EPOCH-001-T3
      title: Error recovery
      status: pending
      blocked_by: [EPOCH-001-T1]
` + "```" + `

## EPOCH-002: Cache layer

` + "```epoch" + `
epoch_id: EPOCH-002
title: Cache layer
priority: p0
tasks:
    - id: EPOCH-002-T1
      title: Eviction policy
      status: pending
` + "```" + `
`

const storiesFixture = `# Stories

## US-001: Fast parsing

- **Implemented in**: EPOCH-001
- **Status**: In Progress

As a maintainer, I want parse errors with line numbers, so that failures are diagnosable.

### Acceptance Criteria

- [x] Errors carry a line number
- [ ] Round trip is byte identical

## US-002: Cheap lookups

- **Implemented in**: _unassigned_
- **Status**: Planned

As an operator, I want hot entries cached, so that lookups stay cheap.

### Acceptance Criteria

- [ ] Cache hit rate is reported
`

type testStores struct {
	epochs    *store.MemStore
	stories   *store.MemStore
	completed *store.MemStore
}

func newTestEngine(t *testing.T, epochsDoc, storiesDoc, completedDoc string) (*Engine, *testStores) {
	t.Helper()
	s := &testStores{
		epochs:    store.NewMemStore([]byte(epochsDoc)),
		stories:   store.NewMemStore([]byte(storiesDoc)),
		completed: store.NewMemStore([]byte(completedDoc)),
	}
	e := New(Options{
		Epochs:    s.epochs,
		Stories:   s.stories,
		Completed: s.completed,
		Logger:    log.New(io.Discard, "", 0),
		Now:       func() time.Time { return testNow },
	})
	return e, s
}
