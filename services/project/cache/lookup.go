// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the multi-scope lookup cache sitting between
// the engine and the project graph.
//
// Three LRU scopes memoize the expensive resolutions: hierarchy path to
// group, target name to target, and composite file key to file
// reference. Entries are advisory, never authoritative: a hit is
// re-verified against the live registry before being returned, so a
// stale entry costs a walk, not a wrong answer.
package cache

import (
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/halyardhq/halyard/services/project/hproj"
)

// AliveFunc reports whether an ID still resolves in the registry.
// Wired to Project.Contains in normal use.
type AliveFunc func(id hproj.NodeID) bool

// Lookup is the three-scope resolution cache.
//
// Thread Safety:
//
//	Lookup is safe for concurrent use: the underlying LRUs lock
//	internally and the counters are atomic. The engine mutates from a
//	single goroutine regardless, so this mostly buys safe reads from
//	watchers.
type Lookup struct {
	groups  *lru.Cache[string, hproj.NodeID]
	targets *lru.Cache[string, hproj.NodeID]
	files   *lru.Cache[string, hproj.NodeID]

	// alive re-verifies hits against the registry. Nil disables
	// verification (tests only).
	alive AliveFunc

	hits          int64
	misses        int64
	staleDrops    int64
	invalidations int64
}

// New creates a Lookup with the given options.
func New(opts ...Option) (*Lookup, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.GroupEntries <= 0 || options.TargetEntries <= 0 || options.FileEntries <= 0 {
		return nil, fmt.Errorf("%w: groups=%d targets=%d files=%d", ErrInvalidCapacity,
			options.GroupEntries, options.TargetEntries, options.FileEntries)
	}

	groups, err := lru.New[string, hproj.NodeID](options.GroupEntries)
	if err != nil {
		return nil, fmt.Errorf("creating group scope: %w", err)
	}
	targets, err := lru.New[string, hproj.NodeID](options.TargetEntries)
	if err != nil {
		return nil, fmt.Errorf("creating target scope: %w", err)
	}
	files, err := lru.New[string, hproj.NodeID](options.FileEntries)
	if err != nil {
		return nil, fmt.Errorf("creating file scope: %w", err)
	}

	return &Lookup{groups: groups, targets: targets, files: files}, nil
}

// SetAlive installs the registry liveness check applied to every hit.
func (l *Lookup) SetAlive(alive AliveFunc) {
	l.alive = alive
}

// Get retrieves a cached resolution.
//
// Description:
//
//	Looks the key up in the scope's LRU. A found entry whose ID no
//	longer resolves in the registry is evicted on the spot and reported
//	as a miss, so callers never act on an ID that outlived its object.
//
// Outputs:
//
//	hproj.NodeID - The cached ID on a hit.
//	bool - True on a live hit.
func (l *Lookup) Get(scope Scope, key string) (hproj.NodeID, bool) {
	id, ok := l.scopeLRU(scope).Get(key)
	if !ok {
		atomic.AddInt64(&l.misses, 1)
		return "", false
	}
	if l.alive != nil && !l.alive(id) {
		l.scopeLRU(scope).Remove(key)
		atomic.AddInt64(&l.staleDrops, 1)
		atomic.AddInt64(&l.misses, 1)
		return "", false
	}
	atomic.AddInt64(&l.hits, 1)
	return id, true
}

// Put stores a resolution.
func (l *Lookup) Put(scope Scope, key string, id hproj.NodeID) {
	l.scopeLRU(scope).Add(key, id)
}

// Invalidate removes one entry. Returns true if the key was present.
func (l *Lookup) Invalidate(scope Scope, key string) bool {
	removed := l.scopeLRU(scope).Remove(key)
	if removed {
		atomic.AddInt64(&l.invalidations, 1)
	}
	return removed
}

// InvalidateGroupPrefix removes every entry under a hierarchy path.
//
// Description:
//
//	Removing a group invalidates the group itself, every descendant
//	group, and every file cached beneath any of them. The group scope
//	is matched on the key and the file scope on the group-path half of
//	the composite key. Matching is component-wise: removing "App" must
//	not touch "AppKit".
//
// Outputs:
//
//	int - Number of entries removed across both scopes.
func (l *Lookup) InvalidateGroupPrefix(path string) int {
	removed := 0
	for _, key := range l.groups.Keys() {
		if pathHasPrefix(key, path) && l.groups.Remove(key) {
			removed++
		}
	}
	for _, key := range l.files.Keys() {
		if pathHasPrefix(fileKeyGroup(key), path) && l.files.Remove(key) {
			removed++
		}
	}
	atomic.AddInt64(&l.invalidations, int64(removed))
	return removed
}

// Purge empties every scope. Counters are kept.
func (l *Lookup) Purge() {
	l.groups.Purge()
	l.targets.Purge()
	l.files.Purge()
}

// Stats returns current lookup statistics.
func (l *Lookup) Stats() Stats {
	return Stats{
		Hits:          atomic.LoadInt64(&l.hits),
		Misses:        atomic.LoadInt64(&l.misses),
		StaleDrops:    atomic.LoadInt64(&l.staleDrops),
		Invalidations: atomic.LoadInt64(&l.invalidations),
		GroupEntries:  l.groups.Len(),
		TargetEntries: l.targets.Len(),
		FileEntries:   l.files.Len(),
	}
}

func (l *Lookup) scopeLRU(scope Scope) *lru.Cache[string, hproj.NodeID] {
	switch scope {
	case ScopeTarget:
		return l.targets
	case ScopeFile:
		return l.files
	default:
		return l.groups
	}
}

// pathHasPrefix reports whether key equals prefix or lies beneath it,
// comparing whole components.
func pathHasPrefix(key, prefix string) bool {
	if key == prefix {
		return true
	}
	return strings.HasPrefix(key, prefix+"/")
}
