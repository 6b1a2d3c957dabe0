// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"os"
	"time"
)

// DefaultLockDir is where lock info files live, relative to the working
// directory unless overridden.
const DefaultLockDir = ".halyard/locks"

// DefaultTTL bounds how long a lock is honored without renewal. Project
// edits are short; anything older than this from a live process is
// treated as leaked.
const DefaultTTL = 10 * time.Minute

// Config configures a Manager.
type Config struct {
	// LockDir is the directory holding lock info files.
	// Default: DefaultLockDir.
	LockDir string

	// SessionID tags locks taken by this manager. Defaults to a fresh
	// random ID when empty.
	SessionID string

	// TTL is how long acquired locks are honored. Default: DefaultTTL.
	TTL time.Duration

	// CleanupOnInit removes stale lock files from dead or expired
	// holders when the manager starts.
	CleanupOnInit bool
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		LockDir:       DefaultLockDir,
		TTL:           DefaultTTL,
		CleanupOnInit: true,
	}
}

// Info describes one held lock. It is persisted as JSON next to the
// locked file's hash so other processes can see who holds what.
type Info struct {
	// FilePath is the absolute path of the locked file.
	FilePath string `json:"file_path"`

	// PID is the process holding the lock.
	PID int `json:"pid"`

	// SessionID identifies the manager session that took the lock.
	SessionID string `json:"session_id"`

	// LockedAt is when the lock was acquired.
	LockedAt time.Time `json:"locked_at"`

	// ExpiresAt is when the lock stops being honored.
	ExpiresAt time.Time `json:"expires_at"`

	// Reason is a human-readable note for `halyard locks` output.
	Reason string `json:"reason"`
}

// IsExpired reports whether the lock's TTL has passed.
func (i *Info) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// lockEntry is one lock held by this manager.
type lockEntry struct {
	file     *os.File
	path     string
	lockPath string
	info     *Info
}

// EventKind is the kind of external change observed on a locked file.
type EventKind int

const (
	// EventWrite indicates the locked file was modified.
	EventWrite EventKind = iota

	// EventRemove indicates the locked file was deleted.
	EventRemove

	// EventRename indicates the locked file was renamed away.
	EventRename
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeEvent reports an external modification to a locked file.
type ChangeEvent struct {
	// Path is the absolute path of the modified file.
	Path string

	// Kind is what happened to it.
	Kind EventKind
}
