package prefabs

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 100 * time.Millisecond

// Watcher reports level, spec and script files that change under a set of
// directories. A path is reported once it has seen no events for the
// debounce interval, so a burst of writes yields a single event after the
// last one.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	Events   chan string
	Errors   chan error
	closeCh  chan struct{}
	done     chan struct{}
	once     sync.Once
}

func NewWatcher(dirs ...string) (*Watcher, error) {
	return NewWatcherDebounce(DefaultDebounce, dirs...)
}

func NewWatcherDebounce(debounce time.Duration, dirs ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	watcher := &Watcher{
		watcher:  w,
		debounce: debounce,
		Events:   make(chan string, 16),
		Errors:   make(chan error, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
		close(w.Events)
		close(w.Errors)
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	// pending maps a path to the time it becomes quiet. Every event pushes
	// the deadline back, so a path is emitted once writes to it settle.
	pending := make(map[string]time.Time)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	armed := false

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !IsWatched(event.Name) {
				continue
			}
			pending[event.Name] = time.Now().Add(w.debounce)
			if !armed {
				timer.Reset(w.debounce)
				armed = true
			}
		case <-timer.C:
			armed = false
			now := time.Now()
			var next time.Time
			for _, path := range settled(pending, now) {
				delete(pending, path)
				select {
				case w.Events <- path:
				case <-w.closeCh:
					return
				}
			}
			for _, at := range pending {
				if next.IsZero() || at.Before(next) {
					next = at
				}
			}
			if !next.IsZero() {
				timer.Reset(time.Until(next))
				armed = true
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			case <-w.closeCh:
				return
			}
		case <-w.closeCh:
			timer.Stop()
			return
		}
	}
}

// settled returns the pending paths whose deadline has passed, in name order.
func settled(pending map[string]time.Time, now time.Time) []string {
	var out []string
	for path, at := range pending {
		if !at.After(now) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// IsWatched reports whether path is a file the watcher emits.
func IsWatched(path string) bool {
	return IsLevelFile(path) || isSpecFile(path) || isScriptFile(path)
}

func IsLevelFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}

func isSpecFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".jsonc":
		return true
	}
	return false
}

func isScriptFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".tengo")
}
