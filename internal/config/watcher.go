package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// debounceWindow coalesces the burst of write events most editors emit
// when saving a file into a single reload.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads the configuration when the config file changes on disk
// and hands the validated result to a callback. Invalid edits are reported
// through the error callback and the previous configuration stays in force.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	onError  func(error)

	mu      sync.Mutex
	pending *time.Timer
	stopCh  chan struct{}
	stopped bool
}

// NewWatcher creates a watcher for the config file viper resolved at
// startup. onChange receives every successfully reloaded Config; onError
// receives reload and validation failures. Either callback may be nil.
func NewWatcher(path string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("no config file to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory rather than the file: editors that save via
	// rename would otherwise detach the watch on the first write.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		path:     path,
		onChange: onChange,
		onError:  onError,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	w.watcher.Close()
	if w.pending != nil {
		w.pending.Stop()
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(fmt.Errorf("config watcher: %w", err))
		}
	}
}

// scheduleReload (re)arms the debounce timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(debounceWindow, w.reload)
}

func (w *Watcher) reload() {
	if err := viper.ReadInConfig(); err != nil {
		w.reportError(fmt.Errorf("failed to re-read config: %w", err))
		return
	}

	cfg, err := Load()
	if err != nil {
		w.reportError(fmt.Errorf("ignoring config change: %w", err))
		return
	}

	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}
