// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"
	"fmt"

	"github.com/halyardhq/halyard/services/project/hproj"
)

var (
	// ErrGroupNotFound is returned when a group path or name resolves to
	// nothing. Distinct from a name collision, which is ErrOperationFailed.
	ErrGroupNotFound = errors.New("group not found")

	// ErrTargetNotFound is returned when no target carries the given name.
	ErrTargetNotFound = errors.New("target not found")

	// ErrFileNotFound is returned when the file locator exhausts all of its
	// matching tiers. It refers to the graph, not the disk: a file that is
	// missing on disk fails with ErrOperationFailed instead.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidArguments is returned for empty or malformed inputs before
	// anything is looked up or mutated.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrOperationFailed is returned for mutation failures: name
	// collisions, protected-group removal, missing on-disk files, and I/O
	// errors outside the transaction manager's own sentinels.
	ErrOperationFailed = errors.New("operation failed")
)

// NotFoundError reports a lookup that matched nothing, along with the
// discovery command that lists what does exist.
type NotFoundError struct {
	// Kind is "group", "target", or "file".
	Kind string

	// Name is the query that failed to resolve.
	Name string

	// Hint is the discovery command to suggest.
	Hint string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found (run '%s' to see available %ss)",
		e.Kind, e.Name, e.Hint, e.Kind)
}

// Unwrap maps the Kind to its sentinel so errors.Is keeps working.
func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "group":
		return ErrGroupNotFound
	case "target":
		return ErrTargetNotFound
	case "file":
		return ErrFileNotFound
	}
	return nil
}

// NameCollisionError reports that a name about to be created at one level
// of the hierarchy is already taken by a sibling. Nothing has been mutated
// when this error is returned.
type NameCollisionError struct {
	// Parent is the hierarchical path of the parent group, "" for the root.
	Parent string

	// Name is the name that was about to be created.
	Name string

	// Existing is the display name of the conflicting sibling.
	Existing string

	// ExistingKind is the sibling's object kind.
	ExistingKind hproj.ObjectKind
}

func (e *NameCollisionError) Error() string {
	parent := e.Parent
	if parent == "" {
		parent = "the root group"
	}
	return fmt.Sprintf("cannot create %q in %s: name conflicts with %s %q",
		e.Name, parent, e.ExistingKind, e.Existing)
}

func (e *NameCollisionError) Unwrap() error { return ErrOperationFailed }
