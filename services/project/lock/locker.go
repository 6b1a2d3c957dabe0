// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"os"
)

// FileLocker abstracts platform-specific file locking.
//
// # Description
//
// Unix locks through flock(2), Windows through LockFileEx. Both are
// advisory: they keep cooperating halyard processes apart but do not
// stop an editor from writing the file anyway, which is what the
// external change watch is for.
//
// # Thread Safety
//
// Implementations are safe for concurrent use on different files.
// Locking the same file from multiple goroutines is undefined.
type FileLocker interface {
	// Lock acquires an exclusive lock, non-blocking. Returns
	// ErrFileLocked when another process holds it.
	Lock(f *os.File) error

	// Unlock releases a previously acquired lock. Safe to call on an
	// unlocked file.
	Unlock(f *os.File) error
}

// IsProcessAlive reports whether a process with the given PID is still
// running. Used for stale lock detection; implemented per platform.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}

// newFileLocker returns the locker for the current platform.
func newFileLocker() FileLocker {
	return newPlatformLocker()
}
