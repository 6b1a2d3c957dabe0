// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hproj

import "errors"

var (
	// ErrNilObject is returned when a nil object is registered.
	ErrNilObject = errors.New("object is nil")

	// ErrDuplicateObject is returned when an object's ID is already
	// registered in the project.
	ErrDuplicateObject = errors.New("object already registered")

	// ErrObjectNotFound is returned when an ID resolves to nothing.
	ErrObjectNotFound = errors.New("object not found")

	// ErrNotAGroup is returned when an ID that must name a group names
	// something else.
	ErrNotAGroup = errors.New("object is not a group")

	// ErrNotATarget is returned when an ID that must name a target
	// names something else.
	ErrNotATarget = errors.New("object is not a target")

	// ErrInvalidDocument is returned when a serialized project fails
	// structural validation on load.
	ErrInvalidDocument = errors.New("invalid project document")

	// ErrSchemaVersion is returned when a serialized project declares a
	// schema version this build does not understand.
	ErrSchemaVersion = errors.New("unsupported schema version")

	// ErrUnknownObjectKind is returned when a serialized object carries
	// a kind string this build does not understand.
	ErrUnknownObjectKind = errors.New("unknown object kind")
)
