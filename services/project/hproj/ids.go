// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hproj

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// nodeIDPattern matches the canonical 24 uppercase hex character form.
var nodeIDPattern = regexp.MustCompile(`^[0-9A-F]{24}$`)

// NewNodeID returns a fresh random identity.
//
// The value is the first 12 bytes of a v4 UUID rendered as uppercase
// hex, which keeps IDs short enough to read in diffs while leaving the
// collision probability negligible for project-sized graphs.
func NewNodeID() NodeID {
	u := uuid.New()
	return NodeID(strings.ToUpper(hex.EncodeToString(u[:12])))
}

// IsValid reports whether the ID is in canonical form.
func (id NodeID) IsValid() bool {
	return nodeIDPattern.MatchString(string(id))
}
