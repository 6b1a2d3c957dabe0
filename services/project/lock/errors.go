// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"errors"
	"fmt"
)

// ErrFileLocked is returned when another live process holds the lock.
var ErrFileLocked = errors.New("file is locked by another process")

// ErrLockNotHeld is returned when releasing a lock this manager does
// not hold.
var ErrLockNotHeld = errors.New("lock not held by this manager")

// HeldError carries the holder details of a lock conflict.
type HeldError struct {
	// Path is the file that could not be locked.
	Path string

	// Holder describes who holds the lock, when known.
	Holder *Info

	// Err is the underlying sentinel, usually ErrFileLocked.
	Err error
}

// Error formats the conflict with holder details when available.
func (e *HeldError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("%s: %v (held by pid %d since %s: %s)",
			e.Path, e.Err, e.Holder.PID, e.Holder.LockedAt.Format("15:04:05"), e.Holder.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap exposes the sentinel for errors.Is checks.
func (e *HeldError) Unwrap() error {
	return e.Err
}
