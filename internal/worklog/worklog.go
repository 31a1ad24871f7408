// Package worklog reads actor-owned work-log records: small YAML
// frontmatter headers over free-form bodies, with a timestamp and an
// optional epoch identifier encoded in the filename.
package worklog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ajmeyer/waymark/internal/model"
)

const scanConcurrency = 8

// e.g. 20260812-1430-EPOCH-003-ast-builder.md
var filenameRe = regexp.MustCompile(`^(\d{8})-(\d{4})(?:-([A-Z][A-Z0-9]*-\d+))?(?:-[^.]+)?\.md$`)

type header struct {
	TaskID        string `yaml:"task_id"`
	Status        string `yaml:"status"`
	HandoffStatus string `yaml:"handoff_status"`
}

// ParseFile reads one work-log record. A file without frontmatter is a
// valid record with an empty header.
func ParseFile(path string) (model.WorkLog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return model.WorkLog{}, fmt.Errorf("read work log: %w", err)
	}

	wl := model.WorkLog{Path: path}
	wl.Timestamp, wl.EpochID = parseFilename(filepath.Base(path))

	front, ok := frontmatter(string(content))
	if ok {
		var h header
		if err := yamlv3.Unmarshal([]byte(front), &h); err != nil {
			return model.WorkLog{}, fmt.Errorf("work log %s: frontmatter: %w", filepath.Base(path), err)
		}
		wl.TaskID = h.TaskID
		wl.Status = h.Status
		wl.HandoffStatus = h.HandoffStatus
	}
	return wl, nil
}

// ScanDir parses every .md record in the directory concurrently.
// Unreadable or malformed records are returned as warnings, never errors;
// hygiene must keep working around actor-owned files it cannot read.
func ScanDir(ctx context.Context, dir string) ([]model.WorkLog, []model.Warning, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read work-log dir: %w", err)
	}

	var mu sync.Mutex
	var logs []model.WorkLog
	var warns []model.Warning

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			wl, err := ParseFile(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warns = append(warns, model.Warning{
					Code:    model.WarnMalformedWorkLog,
					Subject: path,
					Message: err.Error(),
				})
				return nil
			}
			logs = append(logs, wl)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].Path < logs[j].Path })
	return logs, warns, nil
}

func parseFilename(name string) (time.Time, string) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, ""
	}
	ts, err := time.Parse("20060102-1504", m[1]+"-"+m[2])
	if err != nil {
		ts = time.Time{}
	}
	return ts, m[3]
}

// frontmatter returns the YAML between leading --- fences, if present.
func frontmatter(content string) (string, bool) {
	if !strings.HasPrefix(content, "---\n") {
		return "", false
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return "", false
	}
	return rest[:end+1], true
}
