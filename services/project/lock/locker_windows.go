// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build windows

package lock

import (
	"os"

	"golang.org/x/sys/windows"
)

// windowsFileLocker implements FileLocker with LockFileEx. Like flock,
// these are whole-file byte-range locks released on close or process
// exit.
type windowsFileLocker struct{}

// Lock acquires an exclusive, non-blocking lock over the first byte.
func (l *windowsFileLocker) Lock(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return ErrFileLocked
		}
		return err
	}
	return nil
}

// Unlock releases the byte-range lock.
func (l *windowsFileLocker) Unlock(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
}

// isProcessAlive opens the process and checks its exit code is
// STILL_ACTIVE.
func isProcessAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == windows.STILL_ACTIVE
}

// newPlatformLocker returns the Windows locker.
func newPlatformLocker() FileLocker {
	return &windowsFileLocker{}
}
