// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"errors"
	"testing"

	"github.com/halyardhq/halyard/services/project/hproj"
)

func newTestLookup(t *testing.T, opts ...Option) *Lookup {
	t.Helper()
	l, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestNew_InvalidCapacity(t *testing.T) {
	if _, err := New(WithFileEntries(0)); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("err = %v, expected ErrInvalidCapacity", err)
	}
	if _, err := New(WithGroupEntries(-1)); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("err = %v, expected ErrInvalidCapacity", err)
	}
}

func TestLookup_GetPut(t *testing.T) {
	l := newTestLookup(t)

	if _, ok := l.Get(ScopeGroup, GroupKey("Sources/App")); ok {
		t.Fatal("hit on empty cache")
	}

	l.Put(ScopeGroup, GroupKey("Sources/App"), "AAAA")
	id, ok := l.Get(ScopeGroup, GroupKey("Sources/App"))
	if !ok || id != "AAAA" {
		t.Fatalf("Get = (%s, %v), expected (AAAA, true)", id, ok)
	}

	stats := l.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %d hits / %d misses, expected 1/1", stats.Hits, stats.Misses)
	}
}

func TestLookup_ScopesAreIsolated(t *testing.T) {
	l := newTestLookup(t)
	l.Put(ScopeGroup, "App", "G1")
	l.Put(ScopeTarget, "App", "T1")

	if id, _ := l.Get(ScopeGroup, "App"); id != "G1" {
		t.Errorf("group scope = %s, expected G1", id)
	}
	if id, _ := l.Get(ScopeTarget, "App"); id != "T1" {
		t.Errorf("target scope = %s, expected T1", id)
	}
	if _, ok := l.Get(ScopeFile, "App"); ok {
		t.Error("file scope should not see other scopes' keys")
	}
}

func TestLookup_StaleHitEvicts(t *testing.T) {
	l := newTestLookup(t)
	live := map[hproj.NodeID]bool{"AAAA": true}
	l.SetAlive(func(id hproj.NodeID) bool { return live[id] })

	l.Put(ScopeTarget, TargetKey("App"), "AAAA")
	if _, ok := l.Get(ScopeTarget, TargetKey("App")); !ok {
		t.Fatal("expected live hit")
	}

	// The object disappears from the registry; the cached entry must
	// now read as a miss and be evicted.
	delete(live, "AAAA")
	if _, ok := l.Get(ScopeTarget, TargetKey("App")); ok {
		t.Fatal("stale entry returned as hit")
	}

	stats := l.Stats()
	if stats.StaleDrops != 1 {
		t.Errorf("StaleDrops = %d, expected 1", stats.StaleDrops)
	}
	if stats.TargetEntries != 0 {
		t.Errorf("TargetEntries = %d, expected 0 after stale drop", stats.TargetEntries)
	}
}

func TestLookup_Invalidate(t *testing.T) {
	l := newTestLookup(t)
	l.Put(ScopeGroup, "Sources", "G1")

	if !l.Invalidate(ScopeGroup, "Sources") {
		t.Fatal("Invalidate = false for present key")
	}
	if l.Invalidate(ScopeGroup, "Sources") {
		t.Fatal("Invalidate = true for absent key")
	}
	if _, ok := l.Get(ScopeGroup, "Sources"); ok {
		t.Error("invalidated key still resolves")
	}
}

func TestLookup_InvalidateGroupPrefix(t *testing.T) {
	l := newTestLookup(t)
	l.Put(ScopeGroup, "App", "G1")
	l.Put(ScopeGroup, "App/Views", "G2")
	l.Put(ScopeGroup, "AppKit", "G3")
	l.Put(ScopeFile, FileKey("App/Views", "Main.swift"), "F1")
	l.Put(ScopeFile, FileKey("AppKit", "Shim.swift"), "F2")
	l.Put(ScopeTarget, "App", "T1")

	removed := l.InvalidateGroupPrefix("App")
	if removed != 3 {
		t.Errorf("removed = %d, expected 3", removed)
	}

	// Component-wise matching: AppKit survives an App invalidation.
	if _, ok := l.Get(ScopeGroup, "AppKit"); !ok {
		t.Error("AppKit group was wrongly invalidated")
	}
	if _, ok := l.Get(ScopeFile, FileKey("AppKit", "Shim.swift")); !ok {
		t.Error("AppKit file was wrongly invalidated")
	}
	// Target scope is name-keyed, not path-keyed; untouched.
	if _, ok := l.Get(ScopeTarget, "App"); !ok {
		t.Error("target entry was wrongly invalidated")
	}
	if _, ok := l.Get(ScopeGroup, "App/Views"); ok {
		t.Error("descendant group survived invalidation")
	}
	if _, ok := l.Get(ScopeFile, FileKey("App/Views", "Main.swift")); ok {
		t.Error("descendant file survived invalidation")
	}
}

func TestLookup_Purge(t *testing.T) {
	l := newTestLookup(t)
	l.Put(ScopeGroup, "A", "G1")
	l.Put(ScopeTarget, "B", "T1")
	l.Put(ScopeFile, FileKey("A", "x"), "F1")

	l.Purge()
	stats := l.Stats()
	if stats.GroupEntries+stats.TargetEntries+stats.FileEntries != 0 {
		t.Errorf("entries after purge = %+v, expected all zero", stats)
	}
}

func TestLookup_LRUEviction(t *testing.T) {
	l := newTestLookup(t, WithGroupEntries(2))
	l.Put(ScopeGroup, "A", "G1")
	l.Put(ScopeGroup, "B", "G2")
	l.Put(ScopeGroup, "C", "G3")

	if _, ok := l.Get(ScopeGroup, "A"); ok {
		t.Error("oldest entry survived past capacity")
	}
	if _, ok := l.Get(ScopeGroup, "C"); !ok {
		t.Error("newest entry missing")
	}
}

func TestFileKey(t *testing.T) {
	a := FileKey("App", "Views/Main.swift")
	b := FileKey("App/Views", "Main.swift")
	if a == b {
		t.Error("distinct group/rel splits must not collide")
	}
	if fileKeyGroup(a) != "App" {
		t.Errorf("fileKeyGroup = %q, expected App", fileKeyGroup(a))
	}
}
