package config

import (
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

const epochsSkeleton = `# Coordination Board

Epochs and their tasks live in the fenced blocks below. Prose between
blocks is yours; the engine never rewrites it.
`

const storiesSkeleton = `# User Stories

Each story is a heading-delimited section linked to the epoch that
implements it.
`

// Init creates a new workspace: config file, document skeletons, and the
// work-log directory. Fails when the workspace is already initialized.
func Init(workspace string) (Config, error) {
	absDir, err := filepath.Abs(workspace)
	if err != nil {
		return Config{}, fmt.Errorf("resolve workspace: %w", err)
	}

	cfgPath := filepath.Join(absDir, FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return Config{}, fmt.Errorf("%s already exists", cfgPath)
	}

	cfg := Default(absDir)

	if err := os.MkdirAll(cfg.WorklogsDir(), 0755); err != nil {
		return Config{}, fmt.Errorf("create worklogs dir: %w", err)
	}

	content, err := yamlv3.Marshal(cfg)
	if err != nil {
		return Config{}, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		return Config{}, fmt.Errorf("write config: %w", err)
	}

	files := map[string]string{
		cfg.EpochsPath():  epochsSkeleton,
		cfg.StoriesPath(): storiesSkeleton,
	}
	for path, body := range files {
		if _, err := os.Stat(path); err == nil {
			continue // never clobber an existing document
		}
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			return Config{}, fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}
	return cfg, nil
}
