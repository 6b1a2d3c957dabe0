// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/halyardhq/halyard/services/project/transaction"
)

// Change is one observed filesystem change to the watched project file
// or its transaction backup.
type Change struct {
	// Path is the absolute path of the changed file.
	Path string

	// Op is the kind of change.
	Op ChangeOp

	// Time is when the change was observed.
	Time time.Time
}

// ChangeOp is the kind of filesystem change.
type ChangeOp int

const (
	// ChangeWrite indicates the file's content was modified.
	ChangeWrite ChangeOp = iota

	// ChangeCreate indicates the file appeared.
	ChangeCreate

	// ChangeRemove indicates the file was deleted.
	ChangeRemove

	// ChangeRename indicates the file was renamed away.
	ChangeRename
)

// String returns the string representation of the operation.
func (op ChangeOp) String() string {
	switch op {
	case ChangeWrite:
		return "write"
	case ChangeCreate:
		return "create"
	case ChangeRemove:
		return "remove"
	case ChangeRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeHandler is called with debounced, deduplicated changes.
type ChangeHandler func(changes []Change)

// Watcher observes one project file for external modification.
//
// # Description
//
// The watch is placed on the file's directory, not the file itself:
// editors and other halyard processes save by writing a temporary file
// and renaming it over the original, which a file-level watch loses
// track of. Events are filtered down to the project file and its
// transaction backup, then batched behind a debounce window so a burst
// of writes triggers one handler call.
//
// # Thread Safety
//
// Safe for concurrent use. The handler runs on a single goroutine.
type Watcher struct {
	path       string
	backupPath string
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	logger     *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	handler  ChangeHandler
	watching bool
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before the
	// handler fires. Default: 250ms.
	DebounceWindow time.Duration

	// BufferSize is the capacity of the internal change channel.
	// Default: 64.
	BufferSize int
}

// DefaultWatcherOptions returns the default watcher configuration.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 250 * time.Millisecond,
		BufferSize:     64,
	}
}

// NewWatcher creates a watcher for the given project file. Call Start to
// begin watching and Stop to release the underlying notifier.
func NewWatcher(projectPath string, handler ChangeHandler, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}

	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:       abs,
		backupPath: abs + transaction.DefaultBackupSuffix,
		watcher:    fsw,
		handler:    handler,
		debounce:   opts.DebounceWindow,
		logger:     slog.Default().With(slog.String("component", "watcher")),
		changes:    make(chan Change, opts.BufferSize),
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching. The two goroutines it spawns exit when the
// context is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher and releases the underlying notifier.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// SetHandler replaces the change handler.
func (w *Watcher) SetHandler(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

// relevant reports whether an event path is the project file or its
// backup.
func (w *Watcher) relevant(name string) bool {
	clean := filepath.Clean(name)
	return clean == w.path || clean == w.backupPath
}

// processEvents filters raw notifier events into the change channel.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}
			change := Change{
				Path: filepath.Clean(event.Name),
				Op:   convertOp(event.Op),
				Time: time.Now(),
			}
			select {
			case w.changes <- change:
			default:
				// Buffer full; the debouncer will still fire on what
				// it already holds.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// convertOp maps a notifier op to a ChangeOp.
func convertOp(op fsnotify.Op) ChangeOp {
	switch {
	case op.Has(fsnotify.Create):
		return ChangeCreate
	case op.Has(fsnotify.Remove):
		return ChangeRemove
	case op.Has(fsnotify.Rename):
		return ChangeRename
	default:
		return ChangeWrite
	}
}

// debounceLoop batches changes and calls the handler once the window
// closes without new ones.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupeChanges(batch)
			w.mu.RLock()
			handler := w.handler
			w.mu.RUnlock()
			if len(deduped) > 0 && handler != nil {
				handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupeChanges keeps the most recent change per path, preserving first
// appearance order.
func dedupeChanges(changes []Change) []Change {
	seen := make(map[string]int)
	result := make([]Change, 0, len(changes))
	for _, change := range changes {
		if idx, ok := seen[change.Path]; ok {
			result[idx] = change
			continue
		}
		seen[change.Path] = len(result)
		result = append(result, change)
	}
	return result
}

// Watch reloads and revalidates the project whenever another process
// modifies it, calling onReload with each fresh report. Backup file
// churn is reported in the log only: it means a transaction is running
// elsewhere, not that the project changed. Blocks until the context is
// canceled. opts may be nil for defaults.
//
// The caller must not use the service from other goroutines while Watch
// runs; reloads swap the underlying graph.
func (s *Service) Watch(ctx context.Context, opts *WatcherOptions, onReload func(*Report)) error {
	w, err := NewWatcher(s.config.ProjectPath, nil, opts)
	if err != nil {
		return err
	}
	defer w.Stop()

	w.SetHandler(func(changes []Change) {
		projectTouched := false
		for _, c := range changes {
			if c.Path == w.backupPath {
				s.logger.InfoContext(ctx, "transaction backup changed by another process",
					slog.String("op", c.Op.String()),
				)
				continue
			}
			projectTouched = true
		}
		if !projectTouched {
			return
		}
		if reloadErr := s.reload(); reloadErr != nil {
			// Likely a partial write; the next event retries.
			s.logger.WarnContext(ctx, "reload after external change failed",
				slog.String("error", reloadErr.Error()),
			)
			return
		}
		s.logger.InfoContext(ctx, "project reloaded after external change")
		if onReload != nil {
			onReload(s.Validate(ctx))
		}
	})

	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}
