// Package engine implements the coordination engine over the shared
// document store: status derivation, work selection, the optimistic
// claim protocol, hygiene/archival, and story↔epoch linking.
package engine

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ajmeyer/waymark/internal/config"
	"github.com/ajmeyer/waymark/internal/document"
	"github.com/ajmeyer/waymark/internal/notify"
	"github.com/ajmeyer/waymark/internal/store"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Notifier is the outbound event hook. Failures are logged, never
// propagated; coordination does not depend on delivery.
type Notifier interface {
	Notify(event, subject string) error
}

const DefaultStaleness = 24 * time.Hour

// Options wires an Engine. Zero-value fields get defaults; tests inject
// MemStores and a fixed clock.
type Options struct {
	Epochs     store.Store
	Stories    store.Store
	Completed  store.Store
	WorklogDir string
	ArchiveDir string

	Staleness time.Duration
	Logger    *log.Logger
	LogLevel  LogLevel
	Now       func() time.Time
	Notifier  Notifier
}

type Engine struct {
	epochs     store.Store
	stories    store.Store
	completed  store.Store
	worklogDir string
	archiveDir string

	staleness time.Duration
	logger    *log.Logger
	logLevel  LogLevel
	now       func() time.Time
	notifier  Notifier
}

func New(opts Options) *Engine {
	if opts.Staleness <= 0 {
		opts.Staleness = DefaultStaleness
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		epochs:     opts.Epochs,
		stories:    opts.Stories,
		completed:  opts.Completed,
		worklogDir: opts.WorklogDir,
		archiveDir: opts.ArchiveDir,
		staleness:  opts.Staleness,
		logger:     opts.Logger,
		logLevel:   opts.LogLevel,
		now:        opts.Now,
		notifier:   opts.Notifier,
	}
}

// FromConfig builds an Engine over file stores in the workspace.
func FromConfig(cfg config.Config, logger *log.Logger) *Engine {
	// A typed nil *Hook must not end up in the interface field.
	var notifier Notifier
	if h := notify.NewHook(cfg.Notify.Command); h != nil {
		notifier = h
	}
	return New(Options{
		Epochs:     store.NewFileStore(cfg.EpochsPath(), false),
		Stories:    store.NewFileStore(cfg.StoriesPath(), false),
		Completed:  store.NewFileStore(cfg.CompletedPath(), true),
		WorklogDir: cfg.WorklogsDir(),
		ArchiveDir: cfg.WorklogArchiveDir(),
		Staleness:  time.Duration(cfg.Claims.StaleAfterHours) * time.Hour,
		Logger:     logger,
		LogLevel:   ParseLogLevel(cfg.Logging.Level),
		Notifier:   notifier,
	})
}

// loadEpochs parses the active store, tagging parse errors with the
// store path when it is file-backed.
func (e *Engine) loadEpochs() (*document.Doc, error) {
	content, err := e.epochs.Load()
	if err != nil {
		return nil, err
	}
	return e.parse(content, e.epochs)
}

func (e *Engine) loadStories() (*document.Doc, error) {
	content, err := e.stories.Load()
	if err != nil {
		return nil, err
	}
	return e.parse(content, e.stories)
}

func (e *Engine) loadCompleted() (*document.Doc, error) {
	content, err := e.completed.Load()
	if err != nil {
		return nil, err
	}
	return e.parse(content, e.completed)
}

func (e *Engine) parse(content []byte, s store.Store) (*document.Doc, error) {
	doc, err := document.Parse(content)
	if err != nil {
		if pe, ok := err.(*document.ParseError); ok {
			if fs, ok := s.(*store.FileStore); ok {
				pe.Path = fs.Path()
			}
			return nil, pe
		}
		return nil, err
	}
	return doc, nil
}

func (e *Engine) notifyEvent(event, subject string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(event, subject); err != nil {
		e.log(LogLevelWarn, "notify event=%s subject=%s error=%v", event, subject, err)
	}
}

func (e *Engine) log(level LogLevel, format string, args ...any) {
	if level < e.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	e.logger.Printf("%s %s engine: %s", e.now().Format(time.RFC3339), levelStr, msg)
}
