package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/kpm-aggregator/internal/logger"
)

// EventType defines the type of tailer event.
type EventType int

const (
	// EventLinesRead indicates that new spool lines were processed.
	EventLinesRead EventType = iota
	// EventError indicates a read or watch error.
	EventError
)

// Event represents a tailer event.
type Event struct {
	Error error
	Stats Stats
	Type  EventType
}

// Config holds configuration for a Tailer.
type Config struct {
	Path     string
	Debounce time.Duration
	// FromStart replays existing spool contents instead of skipping to the end.
	FromStart bool
}

// Tailer follows a spool file and dispatches each appended line.
type Tailer struct {
	path     string
	handler  Handler
	debounce time.Duration

	// mu serializes reads so events reach the handler in file order.
	mu     sync.Mutex
	offset int64
	// file identifies the spool the offset belongs to.
	file  os.FileInfo
	total Stats

	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	timerMu       sync.Mutex
	debounceTimer *time.Timer
	closeOnce     sync.Once
}

// NewTailer creates a tailer and starts watching the spool directory.
func NewTailer(cfg Config, h Handler) (*Tailer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("spool path is empty")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}

	t := &Tailer{
		path:      cfg.Path,
		handler:   h,
		debounce:  cfg.Debounce,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	if !cfg.FromStart {
		if info, err := os.Stat(cfg.Path); err == nil {
			t.offset = info.Size()
			t.file = info
		}
	}

	if err := t.startWatcher(dir); err != nil {
		return nil, fmt.Errorf("failed to start spool watcher: %w", err)
	}

	if cfg.FromStart {
		if _, err := t.Poll(); err != nil {
			logger.Warn("initial spool read failed", "path", cfg.Path, "error", err)
		}
	}

	return t, nil
}

// Events returns the event channel.
func (t *Tailer) Events() <-chan Event {
	return t.eventChan
}

// Stats returns the totals since the tailer was created.
func (t *Tailer) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Poll reads every complete line appended since the last call. A truncated
// or recreated spool is read again from the beginning.
func (t *Tailer) Poll() (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stats Stats

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.offset = 0
			t.file = nil
			return stats, nil
		}
		return stats, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Error("failed to close spool", "error", err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return stats, err
	}
	switch {
	case t.file != nil && !os.SameFile(t.file, info):
		logger.Info("spool replaced, rereading", "path", t.path)
		t.offset = 0
	case info.Size() < t.offset:
		logger.Info("spool truncated, rereading", "path", t.path)
		t.offset = 0
	}
	t.file = info
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return stats, err
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// A partial line stays unread until its newline arrives.
			break
		}
		if err != nil {
			t.total.add(stats)
			return stats, err
		}
		t.offset += int64(len(line))
		processLine(t.handler, line, &stats)
	}

	t.total.add(stats)
	return stats, nil
}

func (t *Tailer) startWatcher(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	t.watcher = watcher

	// Watch the directory so a recreated spool is still seen.
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go t.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (t *Tailer) watchLoop() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(t.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.schedulePoll()
			}

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.sendEvent(Event{Type: EventError, Error: err})

		case <-t.stopChan:
			return
		}
	}
}

func (t *Tailer) schedulePoll() {
	t.timerMu.Lock()
	defer t.timerMu.Unlock()

	select {
	case <-t.stopChan:
		return
	default:
	}

	if t.debounceTimer != nil {
		t.debounceTimer.Stop()
	}
	t.debounceTimer = time.AfterFunc(t.debounce, t.handleFileChange)
}

func (t *Tailer) handleFileChange() {
	stats, err := t.Poll()
	if err != nil {
		t.sendEvent(Event{Type: EventError, Error: err})
		return
	}
	if stats.Lines > 0 {
		t.sendEvent(Event{Type: EventLinesRead, Stats: stats})
	}
}

// sendEvent sends an event to the event channel non-blocking.
func (t *Tailer) sendEvent(event Event) {
	select {
	case t.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-t.eventChan:
		default:
		}
		select {
		case t.eventChan <- event:
		default:
		}
	}
}

// Close stops the watcher.
func (t *Tailer) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.timerMu.Lock()
		close(t.stopChan)
		if t.debounceTimer != nil {
			t.debounceTimer.Stop()
		}
		t.timerMu.Unlock()

		if t.watcher != nil {
			err = t.watcher.Close()
		}
	})
	return err
}
