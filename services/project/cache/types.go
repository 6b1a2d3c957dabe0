// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"errors"
	"strings"
)

// Default capacity per scope. Sized for large app projects; the LRU
// discipline makes oversizing cheap and undersizing merely slow.
const (
	// DefaultGroupEntries is the default capacity of the group scope.
	DefaultGroupEntries = 512

	// DefaultTargetEntries is the default capacity of the target scope.
	DefaultTargetEntries = 128

	// DefaultFileEntries is the default capacity of the file scope.
	DefaultFileEntries = 4096
)

// keySeparator joins the group path and relative path halves of a file
// key. NUL cannot appear in either half, so composed keys never collide
// with each other or with plain group keys.
const keySeparator = "\x00"

var (
	// ErrInvalidCapacity is returned when a scope capacity is not
	// positive.
	ErrInvalidCapacity = errors.New("cache capacity must be positive")
)

// Scope selects one of the three lookup namespaces.
type Scope int

const (
	// ScopeGroup caches hierarchy path -> group ID.
	ScopeGroup Scope = iota

	// ScopeTarget caches target name -> target ID.
	ScopeTarget

	// ScopeFile caches composite file key -> file reference ID.
	ScopeFile

	// numScopes is the scope count, for iteration.
	numScopes
)

// scopeNames maps Scope values to their string representations.
var scopeNames = map[Scope]string{
	ScopeGroup:  "group",
	ScopeTarget: "target",
	ScopeFile:   "file",
}

// String returns the string representation of the Scope.
func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return "unknown"
}

// GroupKey returns the group-scope key for a hierarchy path.
func GroupKey(path string) string {
	return path
}

// TargetKey returns the target-scope key for a target name.
func TargetKey(name string) string {
	return name
}

// FileKey returns the file-scope key for a file reference.
//
// The key is composite: the owning group's hierarchy path plus the
// reference's group-relative path. Two files named main.swift in
// different groups therefore never share a key, which is what lets the
// cache disambiguate same-basename files.
func FileKey(groupPath, relPath string) string {
	return groupPath + keySeparator + relPath
}

// fileKeyGroup extracts the group path half of a file key.
func fileKeyGroup(key string) string {
	if i := strings.Index(key, keySeparator); i >= 0 {
		return key[:i]
	}
	return key
}

// Options configures a Lookup.
type Options struct {
	// GroupEntries is the capacity of the group scope.
	GroupEntries int

	// TargetEntries is the capacity of the target scope.
	TargetEntries int

	// FileEntries is the capacity of the file scope.
	FileEntries int
}

// DefaultOptions returns sensible defaults for lookup configuration.
func DefaultOptions() Options {
	return Options{
		GroupEntries:  DefaultGroupEntries,
		TargetEntries: DefaultTargetEntries,
		FileEntries:   DefaultFileEntries,
	}
}

// Option is a functional option for configuring a Lookup.
type Option func(*Options)

// WithGroupEntries sets the capacity of the group scope.
func WithGroupEntries(n int) Option {
	return func(o *Options) {
		o.GroupEntries = n
	}
}

// WithTargetEntries sets the capacity of the target scope.
func WithTargetEntries(n int) Option {
	return func(o *Options) {
		o.TargetEntries = n
	}
}

// WithFileEntries sets the capacity of the file scope.
func WithFileEntries(n int) Option {
	return func(o *Options) {
		o.FileEntries = n
	}
}

// Stats contains counters describing lookup traffic since creation.
type Stats struct {
	// Hits is the number of Get calls that returned a live entry.
	Hits int64

	// Misses is the number of Get calls that found nothing.
	Misses int64

	// StaleDrops is the number of entries evicted because their ID no
	// longer resolved in the registry at Get time.
	StaleDrops int64

	// Invalidations is the number of entries removed by Invalidate and
	// InvalidateGroupPrefix calls.
	Invalidations int64

	// GroupEntries is the current entry count of the group scope.
	GroupEntries int

	// TargetEntries is the current entry count of the target scope.
	TargetEntries int

	// FileEntries is the current entry count of the file scope.
	FileEntries int
}
