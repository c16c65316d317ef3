package main

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"testforge/internal/logging"
)

// fileWatcher reruns a callback when one file settles after a burst of writes.
// It watches the parent directory so editors that save by rename are seen.
type fileWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	target      string
	debounceDur time.Duration
	pending     time.Time // zero when no change is waiting
	onChange    func(ctx context.Context, path string)
}

func newFileWatcher(path string, debounce time.Duration, onChange func(ctx context.Context, path string)) (*fileWatcher, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &fileWatcher{
		watcher:     watcher,
		target:      target,
		debounceDur: debounce,
		onChange:    onChange,
	}, nil
}

// Run blocks until ctx is cancelled, then closes the underlying watcher.
// onChange runs on this goroutine, so changes arriving during a run are
// coalesced into the next one.
func (fw *fileWatcher) Run(ctx context.Context) error {
	defer fw.watcher.Close()

	tick := min(100*time.Millisecond, fw.debounceDur/2)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	logging.BootDebug("watching %s (debounce %v)", fw.target, fw.debounceDur)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			logging.BootWarn("watcher error: %v", err)

		case <-ticker.C:
			if fw.settled() {
				fw.onChange(ctx, fw.target)
			}
		}
	}
}

func (fw *fileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != fw.target {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	fw.mu.Lock()
	fw.pending = time.Now()
	fw.mu.Unlock()
}

// settled reports, and clears, a pending change older than the debounce window.
func (fw *fileWatcher) settled() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.pending.IsZero() || time.Since(fw.pending) < fw.debounceDur {
		return false
	}
	fw.pending = time.Time{}
	return true
}
