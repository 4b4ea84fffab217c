// Package watcher watches template and data files and reports debounced
// batches of changes, so a burst of editor writes turns into one reload.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/validation"
)

// FileWatcher turns fsnotify events under the watched roots into debounced
// batches and hands each batch to the registered handlers.
type FileWatcher struct {
	fsw      *fsnotify.Watcher
	batches  *Debouncer
	logger   logging.Logger
	mu       sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler
}

// ChangeEvent is one file change after debouncing.
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType is the kind of change seen for a path.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

var eventNames = [...]string{"created", "modified", "deleted", "renamed"}

func (e EventType) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

// FileFilter reports whether a path should be watched
type FileFilter func(path string) bool

// ChangeHandler handles a debounced batch of changes
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Debouncer groups rapid file changes together. Events for the same path
// collapse to the latest one.
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending map[string]ChangeEvent
	mu      sync.Mutex
}

// NewDebouncer creates a debouncer that emits a batch delay after the
// last event.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make(map[string]ChangeEvent),
	}
}

// NewFileWatcher creates a watcher whose batches close delay after the
// last event in a burst.
func NewFileWatcher(delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &FileWatcher{fsw: fsw, batches: NewDebouncer(delay), logger: logger.WithComponent("watcher")}, nil
}

// AddFilter adds a file filter. A path is watched only if every filter
// accepts it.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mu.Lock()
	fw.filters = append(fw.filters, filter)
	fw.mu.Unlock()
}

// AddHandler registers h for every batch.
func (fw *FileWatcher) AddHandler(h ChangeHandler) {
	fw.mu.Lock()
	fw.handlers = append(fw.handlers, h)
	fw.mu.Unlock()
}

// AddPath watches a single file or directory.
func (fw *FileWatcher) AddPath(path string) error {
	clean, err := validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.fsw.Add(clean)
}

// AddRecursive watches a directory and all its subdirectories.
func (fw *FileWatcher) AddRecursive(root string) error {
	clean, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(clean, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case !d.IsDir():
			return nil
		case path != clean && strings.HasPrefix(d.Name(), "."):
			return filepath.SkipDir
		}
		return fw.fsw.Add(path)
	})
}

func validatePath(path string) (string, error) {
	if err := validation.ValidatePath(path); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

// Start runs the watcher until ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.batches.start(ctx)
	go fw.dispatch(ctx)
	go fw.receive(ctx)
}

// Stop cancels any pending batch and closes the underlying watcher.
func (fw *FileWatcher) Stop() error {
	fw.batches.stop()
	return fw.fsw.Close()
}

func (fw *FileWatcher) receive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			fw.handle(ctx, event)
		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) accepts(path string) bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return !slices.ContainsFunc(fw.filters, func(f FileFilter) bool { return !f(path) })
}

func (fw *FileWatcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Cannot watch new directory", "path", event.Name)
			}
			return
		}
	}
	if !fw.accepts(event.Name) {
		return
	}

	change := ChangeEvent{Type: eventType(event.Op), Path: event.Name}
	if info, err := os.Stat(event.Name); err == nil {
		change.ModTime, change.Size = info.ModTime(), info.Size()
	}

	select {
	case fw.batches.events <- change:
	default:
		fw.logger.Debug(ctx, "Dropped file event, debouncer is full", "path", event.Name)
	}
}

// eventType picks the most significant operation in op. Chmod alone
// counts as a modification.
func eventType(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	}
	return EventTypeModified
}

func (fw *FileWatcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.batches.output:
			fw.mu.RLock()
			handlers := fw.handlers
			fw.mu.RUnlock()

			for _, handler := range handlers {
				if err := handler(ctx, events); err != nil {
					fw.logger.Error(ctx, err, "File change handler failed", "events", len(events))
				}
			}
		}
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []ChangeEvent { return d.output }

// Add queues an event directly, bypassing the event channel.
func (d *Debouncer) Add(event ChangeEvent) { d.addEvent(event) }

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[event.Path] = event
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return
	}

	events := slices.SortedFunc(maps.Values(d.pending), func(a, b ChangeEvent) int {
		return strings.Compare(a.Path, b.Path)
	})

	select {
	case d.output <- events:
	default:
		// consumer is behind
	}
	clear(d.pending)
}

// ExtensionFilter accepts paths with one of the given extensions.
func ExtensionFilter(exts ...string) FileFilter {
	return func(path string) bool {
		return slices.Contains(exts, filepath.Ext(path))
	}
}

// NoHiddenFilter rejects dot files and editor swap files.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~") && !strings.HasSuffix(base, ".swp")
}

// NoGitFilter rejects paths inside .git.
func NoGitFilter(path string) bool {
	return !strings.HasPrefix(path, ".git/") && !strings.Contains(path, "/.git/")
}
