package store

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports document changes, coalescing write bursts with a
// debounce window. One notification is delivered per settled burst.
type Watcher struct {
	fsw      *fsnotify.Watcher
	paths    map[string]bool
	debounce time.Duration

	Changes chan string
	Errors  chan error
	done    chan struct{}
}

// NewWatcher watches the given document paths. Watching is registered on
// the parent directories because atomic replace swaps the inode under the
// path.
func NewWatcher(paths []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		paths:    make(map[string]bool, len(paths)),
		debounce: debounce,
		Changes:  make(chan string, 8),
		Errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var pending string
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !w.paths[abs] {
				continue
			}
			pending = abs
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.Changes <- pending:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
