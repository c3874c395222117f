// Package watch reports changes under the content root. Bursts of file system
// events are debounced into batches; the service drains them on its frame
// pump.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Op is the kind of change observed for a path
type Op int

const (
	// Changed covers creation and modification
	Changed Op = iota
	// Removed covers deletion and rename away
	Removed
)

func (o Op) String() string {
	if o == Removed {
		return "removed"
	}
	return "changed"
}

// Event is a debounced change of one file
type Event struct {
	Path string
	Op   Op
}

// Options configures a FileWatcher
type Options struct {
	// Debounce is the quiet period before a batch is delivered
	Debounce time.Duration
	// Patterns restricts events to matching base names or "*.ext"; empty matches all
	Patterns []string
	// Ignore lists base name globs to skip
	Ignore []string
	Logger *zap.Logger
}

// FileWatcher monitors a directory tree and delivers debounced batches
type FileWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	patterns  []string
	ignored   []string
	logger    *zap.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewFileWatcher creates a watcher over root. onChange runs on the debounce
// timer goroutine.
func NewFileWatcher(root string, opts Options, onChange func([]Event)) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	fw := &FileWatcher{
		root:      root,
		watcher:   watcher,
		debouncer: NewDebouncer(opts.Debounce),
		patterns:  opts.Patterns,
		ignored:   opts.Ignore,
		logger:    opts.Logger,
		stopChan:  make(chan struct{}),
	}
	fw.debouncer.SetCallback(onChange)
	return fw, nil
}

// Start watches every directory under the root and begins delivering events
func (fw *FileWatcher) Start() error {
	if err := fw.addTree(fw.root); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.watch()
	return nil
}

// Stop stops the watcher. Pending undelivered events are dropped.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopChan)
		fw.wg.Wait()
		fw.debouncer.Stop()
		err = fw.watcher.Close()
	})
	return err
}

// WatchList returns the directories being watched
func (fw *FileWatcher) WatchList() []string {
	list := fw.watcher.WatchList()
	sort.Strings(list)
	return list
}

func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", zap.Error(err))

		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	if fw.shouldIgnore(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if fw.matchesPattern(event.Name) {
			fw.debouncer.Add(Event{Path: event.Name, Op: Removed})
		}

	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if event.Has(fsnotify.Create) {
				if err := fw.addTree(event.Name); err != nil {
					fw.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
				}
			}
			return
		}
		if fw.matchesPattern(event.Name) {
			fw.debouncer.Add(Event{Path: event.Name, Op: Changed})
		}
	}
}

// addTree watches dir and every non-hidden directory below it
func (fw *FileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && fw.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		fw.logger.Debug("watching directory", zap.String("dir", path))
		return nil
	})
}

func (fw *FileWatcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	for _, pattern := range fw.ignored {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) matchesPattern(path string) bool {
	if len(fw.patterns) == 0 {
		return true
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, pattern := range fw.patterns {
		if strings.HasPrefix(pattern, "*.") && ext == strings.ToLower(pattern[1:]) {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}

// Debouncer collects events and delivers them after a quiet period. A later
// event for the same path replaces an earlier one.
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	events   map[string]Op
	mutex    sync.Mutex
	callback func([]Event)
	stopped  bool
}

// NewDebouncer creates a debouncer
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		events:   make(map[string]Op),
	}
}

// Add records an event and restarts the quiet period
func (d *Debouncer) Add(ev Event) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.events[ev.Path] = ev.Op

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.events) == 0 || d.stopped {
		d.mutex.Unlock()
		return
	}
	batch := make([]Event, 0, len(d.events))
	for path, op := range d.events {
		batch = append(batch, Event{Path: path, Op: op})
	}
	d.events = make(map[string]Op)
	callback := d.callback
	d.mutex.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	if callback != nil {
		callback(batch)
	}
}

// SetCallback sets the batch callback
func (d *Debouncer) SetCallback(callback func([]Event)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop cancels any pending delivery
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.stopped = true
}
