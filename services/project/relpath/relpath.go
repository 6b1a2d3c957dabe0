// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package relpath computes the group-relative paths stored in file
// references.
//
// Everything here is pure string computation on slash-separated paths.
// Nothing touches the filesystem, which is what makes the add and move
// operations testable without a disk layout.
package relpath

import (
	"path"
	"strings"
)

// Between computes the path of target relative to baseDir.
//
// Description:
//
//	Both inputs must be absolute. When target lies beneath baseDir the
//	result is the remainder after stripping the prefix. Otherwise the
//	longest shared component prefix is found and the result climbs out
//	of baseDir with one ".." per unshared base component before
//	descending to target.
//
//	When the two paths share no root at all (for example different
//	Windows volumes), target is returned verbatim: an absolute
//	reference is the only correct answer there.
//
// Inputs:
//
//	baseDir - Absolute directory the result is relative to.
//	target - Absolute path being referenced.
//
// Outputs:
//
//	string - Slash-separated relative path, or target verbatim when no
//	relative form exists.
//
// Example:
//
//	Between("/p/Sources", "/p/Sources/App/main.swift") = "App/main.swift"
//	Between("/p/Sources", "/p/Vendor/lib.a") = "../Vendor/lib.a"
func Between(baseDir, target string) string {
	base := splitClean(baseDir)
	tgt := splitClean(target)

	if volume(base) != volume(tgt) {
		return Normalize(target)
	}

	shared := 0
	for shared < len(base) && shared < len(tgt) && base[shared] == tgt[shared] {
		shared++
	}

	parts := make([]string, 0, len(base)-shared+len(tgt)-shared)
	for i := shared; i < len(base); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, tgt[shared:]...)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

// IsBeneath reports whether target lies at or beneath baseDir.
func IsBeneath(baseDir, target string) bool {
	base := splitClean(baseDir)
	tgt := splitClean(target)
	if len(tgt) < len(base) {
		return false
	}
	for i := range base {
		if base[i] != tgt[i] {
			return false
		}
	}
	return true
}

// Normalize converts a path to cleaned slash-separated form. Windows
// separators are folded so stored references look identical across
// platforms.
func Normalize(p string) string {
	return path.Clean(strings.ReplaceAll(p, `\`, "/"))
}

// splitClean normalizes and splits a path into components. An absolute
// path keeps a leading "" component so "/a" and "a" never compare
// equal. Windows volume names ("C:") survive as the first component.
func splitClean(p string) []string {
	n := Normalize(p)
	if n == "/" {
		return []string{""}
	}
	if n == "." || n == "" {
		return nil
	}
	return strings.Split(n, "/")
}

// volume returns the component that roots a path: "" for Unix absolute
// paths, the drive component for Windows paths, or the first component
// for relative input.
func volume(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
