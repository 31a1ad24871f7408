// Package config loads the workspace configuration and initializes new
// workspaces.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

const FileName = "waymark.yaml"

type Config struct {
	Workspace string `yaml:"-"`

	Paths   PathsConfig   `yaml:"paths"`
	Claims  ClaimsConfig  `yaml:"claims"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
	Notify  NotifyConfig  `yaml:"notify"`
}

type PathsConfig struct {
	Epochs        string `yaml:"epochs"`
	Stories       string `yaml:"stories"`
	Completed     string `yaml:"completed"`
	Worklogs      string `yaml:"worklogs"`
	ArchiveSubdir string `yaml:"archive_subdir"`
}

type ClaimsConfig struct {
	StaleAfterHours int `yaml:"stale_after_hours"`
}

type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type NotifyConfig struct {
	// Command is the argv of an external hook run on claim, complete, and
	// archive events. Empty disables notification.
	Command []string `yaml:"command,omitempty"`
}

func Default(workspace string) Config {
	return Config{
		Workspace: workspace,
		Paths: PathsConfig{
			Epochs:        "epochs.md",
			Stories:       "stories.md",
			Completed:     "completed.md",
			Worklogs:      "worklogs",
			ArchiveSubdir: "archive",
		},
		Claims:  ClaimsConfig{StaleAfterHours: 24},
		Watch:   WatchConfig{DebounceMs: 300},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads waymark.yaml from the workspace directory and fills defaults
// for absent fields.
func Load(workspace string) (Config, error) {
	content, err := os.ReadFile(filepath.Join(workspace, FileName))
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default(workspace)
	if err := yamlv3.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Workspace = workspace
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default(c.Workspace)
	if c.Paths.Epochs == "" {
		c.Paths.Epochs = def.Paths.Epochs
	}
	if c.Paths.Stories == "" {
		c.Paths.Stories = def.Paths.Stories
	}
	if c.Paths.Completed == "" {
		c.Paths.Completed = def.Paths.Completed
	}
	if c.Paths.Worklogs == "" {
		c.Paths.Worklogs = def.Paths.Worklogs
	}
	if c.Paths.ArchiveSubdir == "" {
		c.Paths.ArchiveSubdir = def.Paths.ArchiveSubdir
	}
	if c.Claims.StaleAfterHours <= 0 {
		c.Claims.StaleAfterHours = def.Claims.StaleAfterHours
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = def.Watch.DebounceMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

func (c Config) EpochsPath() string    { return filepath.Join(c.Workspace, c.Paths.Epochs) }
func (c Config) StoriesPath() string   { return filepath.Join(c.Workspace, c.Paths.Stories) }
func (c Config) CompletedPath() string { return filepath.Join(c.Workspace, c.Paths.Completed) }
func (c Config) WorklogsDir() string   { return filepath.Join(c.Workspace, c.Paths.Worklogs) }
func (c Config) WorklogArchiveDir() string {
	return filepath.Join(c.WorklogsDir(), c.Paths.ArchiveSubdir)
}
