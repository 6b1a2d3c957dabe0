// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// Manager coordinates exclusive file locks across halyard invocations.
//
// # Description
//
// Provides exclusive file locking with:
// - Advisory locks via flock (Unix) or LockFileEx (Windows)
// - External change detection via fsnotify
// - Stale lock cleanup via PID checks and TTL expiration
// - Lock info files for visibility from other sessions
//
// # Thread Safety
//
// All public methods are safe for concurrent use from multiple goroutines.
type Manager struct {
	lockDir   string
	sessionID string
	ttl       time.Duration
	locker    FileLocker
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*lockEntry

	watcher   *fsnotify.Watcher
	watcherMu sync.Mutex
	callbacks map[string][]func(ChangeEvent)
}

// NewManager creates a lock manager.
//
// # Description
//
// Creates a manager with the given configuration. Zero-value fields fall
// back to defaults, and an empty SessionID gets a fresh UUID. If
// CleanupOnInit is set, lock files left behind by dead processes are
// removed before the manager is returned.
//
// # Inputs
//
//   - cfg: Manager configuration. Use DefaultConfig() for sane defaults.
//
// # Outputs
//
//   - *Manager: Ready-to-use lock manager.
//   - error: Non-nil if setup fails (e.g. the lock directory cannot be created).
func NewManager(cfg Config) (*Manager, error) {
	if cfg.LockDir == "" {
		cfg.LockDir = DefaultLockDir
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	if err := os.MkdirAll(cfg.LockDir, 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory %s: %w", cfg.LockDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating lock watcher: %w", err)
	}

	m := &Manager{
		lockDir:   cfg.LockDir,
		sessionID: cfg.SessionID,
		ttl:       cfg.TTL,
		locker:    newFileLocker(),
		logger:    slog.Default().With("component", "lock"),
		locks:     make(map[string]*lockEntry),
		watcher:   watcher,
		callbacks: make(map[string][]func(ChangeEvent)),
	}

	go m.watchLoop()

	if cfg.CleanupOnInit {
		cleaned, err := m.CleanupStale()
		if err != nil {
			m.logger.Warn("stale lock cleanup failed on init", "error", err)
		} else if cleaned > 0 {
			m.logger.Info("removed stale locks on init", "count", cleaned)
		}
	}

	return m, nil
}

// Acquire takes an exclusive lock on a file.
//
// # Description
//
// Non-blocking: returns immediately if another live process holds the
// lock. Re-acquiring a lock this manager already holds just updates the
// recorded reason. A JSON info file is written to the lock directory so
// other sessions can see who holds the lock and why.
//
// # Inputs
//
//   - filePath: Path to the file to lock.
//   - reason: Human-readable reason recorded in the info file.
//
// # Outputs
//
//   - error: nil on success, a HeldError wrapping ErrFileLocked if the
//     file is locked elsewhere, other errors on failure.
//
// # Example
//
//	if err := mgr.Acquire(projectPath, "add-file"); err != nil {
//	    if errors.Is(err, lock.ErrFileLocked) {
//	        // Another halyard session owns the project.
//	    }
//	    return err
//	}
//	defer mgr.Release(projectPath)
func (m *Manager) Acquire(filePath, reason string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", filePath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.locks[absPath]; ok {
		entry.info.Reason = reason
		return nil
	}

	// The lock directory may have been deleted since NewManager.
	if err := m.ensureLockDir(); err != nil {
		return err
	}

	lockPath := m.lockPath(absPath)
	existing, err := m.readInfo(lockPath)
	if err == nil && existing != nil {
		if !existing.IsExpired() && IsProcessAlive(existing.PID) {
			return &HeldError{
				Path:   absPath,
				Holder: existing,
				Err:    ErrFileLocked,
			}
		}
		m.logger.Info("removing stale lock",
			"path", absPath,
			"old_pid", existing.PID)
		_ = os.Remove(lockPath)
	}

	f, err := os.OpenFile(absPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening file for lock %s: %w", absPath, err)
	}

	if err := m.locker.Lock(f); err != nil {
		f.Close()
		if err == ErrFileLocked {
			return &HeldError{Path: absPath, Err: ErrFileLocked}
		}
		return fmt.Errorf("acquiring lock on %s: %w", absPath, err)
	}

	now := time.Now()
	info := &Info{
		FilePath:  absPath,
		PID:       os.Getpid(),
		SessionID: m.sessionID,
		LockedAt:  now,
		ExpiresAt: now.Add(m.ttl),
		Reason:    reason,
	}

	if err := m.writeInfo(lockPath, info); err != nil {
		m.locker.Unlock(f)
		f.Close()
		return fmt.Errorf("writing lock info: %w", err)
	}

	m.addWatch(absPath)

	m.locks[absPath] = &lockEntry{
		file:     f,
		path:     absPath,
		lockPath: lockPath,
		info:     info,
	}

	m.logger.Debug("acquired lock",
		"path", absPath,
		"reason", reason,
		"expires_at", info.ExpiresAt.Format(time.RFC3339))

	return nil
}

// Release drops a lock held by this manager.
//
// # Description
//
// Releases a previously acquired lock and removes its info file.
// Returns ErrLockNotHeld for files this manager never locked.
//
// # Inputs
//
//   - filePath: Path passed to Acquire.
//
// # Outputs
//
//   - error: nil on success, ErrLockNotHeld if not locked by this manager.
func (m *Manager) Release(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", filePath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[absPath]
	if !ok {
		return ErrLockNotHeld
	}

	return m.releaseEntry(absPath, entry)
}

// releaseEntry releases one entry. Caller holds mu.
func (m *Manager) releaseEntry(absPath string, entry *lockEntry) error {
	m.removeWatch(absPath)

	if err := m.locker.Unlock(entry.file); err != nil {
		m.logger.Warn("unlock failed",
			"path", absPath,
			"error", err)
	}
	entry.file.Close()

	if err := os.Remove(entry.lockPath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("lock info file could not be removed",
			"path", entry.lockPath,
			"error", err)
	}

	delete(m.locks, absPath)

	m.logger.Debug("released lock", "path", absPath)

	return nil
}

// ReleaseAll releases every lock held by this manager.
//
// # Description
//
// Called on session end or manager shutdown. Keeps going past
// individual failures and reports the first one.
//
// # Outputs
//
//   - error: First error encountered.
func (m *Manager) ReleaseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for path, entry := range m.locks {
		if err := m.releaseEntry(path, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsLocked reports whether any live process holds a lock on the file.
//
// # Description
//
// Checks this manager's own locks first, then the on-disk info file.
// Expired info files and files whose holder PID is dead count as
// unlocked.
//
// # Inputs
//
//   - filePath: Path to check.
//
// # Outputs
//
//   - bool: True if the file is locked.
//   - *Info: The holder's lock info (nil if not locked).
//   - error: Non-nil on failure to check.
func (m *Manager) IsLocked(filePath string) (bool, *Info, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return false, nil, fmt.Errorf("resolving path %s: %w", filePath, err)
	}

	m.mu.Lock()
	if entry, ok := m.locks[absPath]; ok {
		m.mu.Unlock()
		return true, entry.info, nil
	}
	m.mu.Unlock()

	info, err := m.readInfo(m.lockPath(absPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if info == nil {
		return false, nil, nil
	}

	if info.IsExpired() || !IsProcessAlive(info.PID) {
		return false, nil, nil
	}

	return true, info, nil
}

// CleanupStale removes lock files left by dead or expired holders.
//
// # Description
//
// Scans the lock directory and removes info files whose TTL has passed
// or whose holder process no longer exists.
//
// # Outputs
//
//   - int: Number of stale locks removed.
//   - error: Non-nil on failure to scan the directory.
func (m *Manager) CleanupStale() (int, error) {
	entries, err := os.ReadDir(m.lockDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading lock directory: %w", err)
	}

	cleaned := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
			continue
		}

		lockPath := filepath.Join(m.lockDir, entry.Name())
		info, err := m.readInfo(lockPath)
		if err != nil {
			m.logger.Warn("unreadable lock info file",
				"path", lockPath,
				"error", err)
			continue
		}
		if info == nil {
			continue
		}

		if info.IsExpired() || !IsProcessAlive(info.PID) {
			m.logger.Info("cleaning up stale lock",
				"path", info.FilePath,
				"pid", info.PID,
				"expired", info.IsExpired())
			if err := os.Remove(lockPath); err != nil {
				m.logger.Warn("stale lock could not be removed",
					"path", lockPath,
					"error", err)
			} else {
				cleaned++
			}
		}
	}

	return cleaned, nil
}

// RegisterCallback registers a callback for external changes to a file.
//
// # Description
//
// The callback fires when a file locked by this manager is modified by
// another process. Multiple callbacks may be registered per file.
//
// # Inputs
//
//   - filePath: Path to monitor.
//   - callback: Function invoked with the change event.
func (m *Manager) RegisterCallback(filePath string, callback func(ChangeEvent)) {
	absPath, _ := filepath.Abs(filePath)

	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	m.callbacks[absPath] = append(m.callbacks[absPath], callback)
}

// WatchFile watches a file for external changes until ctx is done.
//
// # Description
//
// Adds the file to the watcher and invokes the callback with the file
// path on every external change. Blocks until the context is cancelled,
// then removes the watch.
//
// # Inputs
//
//   - ctx: Context bounding the watch.
//   - filePath: File to watch.
//   - callback: Function called with the changed path.
func (m *Manager) WatchFile(ctx context.Context, filePath string, callback func(string)) {
	absPath, _ := filepath.Abs(filePath)

	m.addWatch(absPath)

	m.RegisterCallback(absPath, func(ev ChangeEvent) {
		callback(ev.Path)
	})

	<-ctx.Done()

	m.removeWatch(absPath)
}

// Close releases all locks and stops the watcher.
func (m *Manager) Close() error {
	if err := m.ReleaseAll(); err != nil {
		m.logger.Warn("error releasing locks during close", "error", err)
	}
	return m.watcher.Close()
}

// lockPath maps a file path to its info file under lockDir.
func (m *Manager) lockPath(absPath string) string {
	hash := sha256.Sum256([]byte(absPath))
	return filepath.Join(m.lockDir, hex.EncodeToString(hash[:])[:16]+".lock")
}

func (m *Manager) ensureLockDir() error {
	if err := os.MkdirAll(m.lockDir, 0755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	return nil
}

func (m *Manager) writeInfo(lockPath string, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(lockPath, data, 0644)
}

func (m *Manager) readInfo(lockPath string) (*Info, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (m *Manager) addWatch(path string) {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	if err := m.watcher.Add(path); err != nil {
		m.logger.Warn("watch failed",
			"path", path,
			"error", err)
	}
}

func (m *Manager) removeWatch(path string) {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	// fsnotify returns ErrNonExistentWatch for paths never added; either
	// way there is nothing to undo.
	if err := m.watcher.Remove(path); err != nil {
		m.logger.Debug("watch removal skipped",
			"path", path,
			"error", err)
	}

	delete(m.callbacks, path)
}

// watchLoop drains fsnotify events until the watcher closes.
func (m *Manager) watchLoop() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("lock watcher error", "error", err)
		}
	}
}

// handleEvent fans one fsnotify event out to callbacks, but only for
// files this manager has locked.
func (m *Manager) handleEvent(event fsnotify.Event) {
	var kind EventKind
	switch {
	case event.Op&fsnotify.Write != 0:
		kind = EventWrite
	case event.Op&fsnotify.Remove != 0:
		kind = EventRemove
	case event.Op&fsnotify.Rename != 0:
		kind = EventRename
	default:
		return
	}

	absPath, _ := filepath.Abs(event.Name)

	m.mu.Lock()
	_, held := m.locks[absPath]
	m.mu.Unlock()

	if !held {
		return
	}

	m.logger.Warn("locked file modified by another process",
		"path", absPath,
		"event", kind.String())

	m.watcherMu.Lock()
	callbacks := m.callbacks[absPath]
	m.watcherMu.Unlock()

	ev := ChangeEvent{Path: absPath, Kind: kind}
	for _, cb := range callbacks {
		cb(ev)
	}
}
