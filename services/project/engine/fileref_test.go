// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/halyardhq/halyard/services/project/hproj"
)

// phaseOf returns the target's phase of the given kind, or nil.
func phaseOf(t *testing.T, svc *Service, target *hproj.Target, kind hproj.PhaseKind) *hproj.BuildPhase {
	t.Helper()
	for _, pid := range target.Phases {
		if p := svc.Project().GetBuildPhase(pid); p != nil && p.Kind == kind {
			return p
		}
	}
	return nil
}

func TestSuffixMatch(t *testing.T) {
	tests := []struct {
		p     string
		query string
		want  bool
	}{
		{"a/b/c.md", "c.md", true},
		{"a/b/c.md", "b/c.md", true},
		{"a/b/c.md", "a/b/c.md", true},
		{"a/b/c.md", "/c.md", false},
		{"a/bc.md", "c.md", false},
		{"c.md", "c.md", true},
		{"c.md", "b/c.md", false},
	}
	for _, tt := range tests {
		if got := suffixMatch(tt.p, tt.query); got != tt.want {
			t.Errorf("suffixMatch(%q, %q) = %v, want %v", tt.p, tt.query, got, tt.want)
		}
	}
}

func TestAddFileCreatesReference(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.EnsureHierarchy(ctx, "App"); err != nil {
		t.Fatalf("EnsureHierarchy: %v", err)
	}
	touch(t, svc, "Sources/main.swift")

	f, err := svc.AddFile(ctx, "Sources/main.swift", "App", nil)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if f.Path != "Sources/main.swift" {
		t.Errorf("Path = %q, want Sources/main.swift", f.Path)
	}
	if f.FileType != "sourcecode.swift" {
		t.Errorf("FileType = %q, want sourcecode.swift", f.FileType)
	}

	rg, err := svc.resolveGroup("App")
	if err != nil {
		t.Fatalf("resolveGroup: %v", err)
	}
	if len(rg.group.Children) != 1 || rg.group.Children[0] != f.ID() {
		t.Error("group does not list the new file")
	}
}

func TestAddFileMissingOnDisk(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	before := svc.Project().ObjectCount()
	if _, err := svc.AddFile(ctx, "ghost.swift", "", nil); !errors.Is(err, ErrOperationFailed) {
		t.Errorf("AddFile(ghost.swift) = %v, want ErrOperationFailed", err)
	}
	if svc.Project().ObjectCount() != before {
		t.Error("failed add mutated the graph")
	}
}

func TestAddFileIdempotentOnSamePath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	touch(t, svc, "main.swift")

	first, err := svc.AddFile(ctx, "main.swift", "", nil)
	if err != nil {
		t.Fatalf("first AddFile: %v", err)
	}
	count := svc.Project().ObjectCount()

	second, err := svc.AddFile(ctx, "main.swift", "", nil)
	if err != nil {
		t.Fatalf("second AddFile: %v", err)
	}
	if second.ID() != first.ID() {
		t.Error("second add returned a different reference")
	}
	if svc.Project().ObjectCount() != count {
		t.Error("second add created objects")
	}
	if root := svc.Project().RootGroup(); len(root.Children) != 1 {
		t.Errorf("root has %d children, want 1", len(root.Children))
	}
}

func TestAddFileUnknownTargetCreatesNothing(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	touch(t, svc, "main.swift")

	before := svc.Project().ObjectCount()
	_, err := svc.AddFile(ctx, "main.swift", "", []string{"Ghost"})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("AddFile with unknown target = %v, want ErrTargetNotFound", err)
	}
	if svc.Project().ObjectCount() != before {
		t.Error("failed add left objects in the graph")
	}
	if root := svc.Project().RootGroup(); len(root.Children) != 0 {
		t.Error("failed add linked a child")
	}
}

func TestAddFileCollidesWithSiblingGroup(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.EnsureHierarchy(ctx, "Assets"); err != nil {
		t.Fatalf("EnsureHierarchy: %v", err)
	}
	touch(t, svc, "Assets.xcassets")

	_, err := svc.AddFile(ctx, "Assets.xcassets", "", nil)
	var collision *NameCollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("AddFile = %v, want NameCollisionError", err)
	}
	if collision.Existing != "Assets" || collision.ExistingKind != hproj.KindGroup {
		t.Errorf("collision against %s %q, want group Assets", collision.ExistingKind, collision.Existing)
	}
	if !errors.Is(err, ErrOperationFailed) {
		t.Error("collision does not unwrap to ErrOperationFailed")
	}
}

func TestAddFilePhaseRouting(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	target := addTarget(t, svc, "App", hproj.ProductTypeApplication)

	files := []string{"main.swift", "logo.png", "libz.tbd", "Crypto.framework", "Bridge.h"}
	for _, name := range files {
		touch(t, svc, name)
		if _, err := svc.AddFile(ctx, name, "", []string{"App"}); err != nil {
			t.Fatalf("AddFile(%s): %v", name, err)
		}
	}

	sources := phaseOf(t, svc, target, hproj.PhaseSources)
	if sources == nil || len(sources.Files) != 1 {
		t.Errorf("sources phase = %+v, want exactly main.swift", sources)
	}
	resources := phaseOf(t, svc, target, hproj.PhaseResources)
	if resources == nil || len(resources.Files) != 1 {
		t.Errorf("resources phase = %+v, want exactly logo.png", resources)
	}
	frameworks := phaseOf(t, svc, target, hproj.PhaseFrameworks)
	if frameworks == nil || len(frameworks.Files) != 2 {
		t.Fatalf("frameworks phase = %+v, want libz.tbd and Crypto.framework", frameworks)
	}

	// The header joined no phase: three phases, five files, four
	// memberships.
	if len(target.Phases) != 3 {
		t.Errorf("target has %d phases, want 3", len(target.Phases))
	}

	// Framework memberships carry the code sign setting.
	signed := 0
	for _, bfID := range frameworks.Files {
		bf := svc.Project().GetBuildFile(bfID)
		if bf == nil {
			t.Fatal("frameworks phase lists a missing membership")
		}
		if on, ok := bf.Settings["code_sign_on_copy"].(bool); ok && on {
			signed++
		}
	}
	if signed != 1 {
		t.Errorf("%d signed memberships, want 1 (the .framework only)", signed)
	}
}

func TestAddFilesBatchChecksDiskFirst(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	touch(t, svc, "a.swift")
	touch(t, svc, "c.swift")

	before := svc.Project().ObjectCount()
	added, err := svc.AddFiles(ctx, []string{"a.swift", "b.swift", "c.swift"}, "", nil)
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("AddFiles with a missing path = %v, want ErrOperationFailed", err)
	}
	if len(added) != 0 {
		t.Errorf("%d files added despite failed pre-check, want 0", len(added))
	}
	if svc.Project().ObjectCount() != before {
		t.Error("failed batch mutated the graph")
	}

	touch(t, svc, "b.swift")
	added, err = svc.AddFiles(ctx, []string{"a.swift", "b.swift", "c.swift"}, "", nil)
	if err != nil {
		t.Fatalf("AddFiles: %v", err)
	}
	if len(added) != 3 {
		t.Errorf("added %d files, want 3", len(added))
	}
}

func TestAddFileCompositeKeysDisambiguate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ga, err := svc.EnsureHierarchy(ctx, "GA")
	if err != nil {
		t.Fatalf("EnsureHierarchy GA: %v", err)
	}
	ga.Path = "A"
	gb, err := svc.EnsureHierarchy(ctx, "GB")
	if err != nil {
		t.Fatalf("EnsureHierarchy GB: %v", err)
	}
	gb.Path = "B"
	touch(t, svc, "A/Utils.swift")
	touch(t, svc, "B/Utils.swift")

	fa, err := svc.AddFile(ctx, "A/Utils.swift", "GA", nil)
	if err != nil {
		t.Fatalf("AddFile A: %v", err)
	}
	fb, err := svc.AddFile(ctx, "B/Utils.swift", "GB", nil)
	if err != nil {
		t.Fatalf("AddFile B: %v", err)
	}

	// Both references store the same relative path; only the composite
	// key keeps them apart.
	if fa.Path != "Utils.swift" || fb.Path != "Utils.swift" {
		t.Fatalf("paths = %q, %q, want Utils.swift for both", fa.Path, fb.Path)
	}
	if fa.ID() == fb.ID() {
		t.Fatal("same identity for files in different groups")
	}

	again, err := svc.AddFile(ctx, "A/Utils.swift", "GA", nil)
	if err != nil {
		t.Fatalf("re-add A: %v", err)
	}
	if again.ID() != fa.ID() {
		t.Error("re-add into GA resolved to GB's file")
	}
	again, err = svc.AddFile(ctx, "B/Utils.swift", "GB", nil)
	if err != nil {
		t.Fatalf("re-add B: %v", err)
	}
	if again.ID() != fb.ID() {
		t.Error("re-add into GB resolved to GA's file")
	}
}

func TestRemoveFileByDistinctRelativePath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.CreateGroups(ctx, "GA", "GB"); err != nil {
		t.Fatalf("CreateGroups: %v", err)
	}
	touch(t, svc, "A/Utils.swift")
	touch(t, svc, "B/Utils.swift")

	fa, err := svc.AddFile(ctx, "A/Utils.swift", "GA", nil)
	if err != nil {
		t.Fatalf("AddFile A: %v", err)
	}
	fb, err := svc.AddFile(ctx, "B/Utils.swift", "GB", nil)
	if err != nil {
		t.Fatalf("AddFile B: %v", err)
	}

	if err := svc.RemoveFile(ctx, "B/Utils.swift"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if svc.Project().Contains(fb.ID()) {
		t.Error("B/Utils.swift still registered")
	}
	if !svc.Project().Contains(fa.ID()) {
		t.Error("A/Utils.swift was removed instead")
	}
}

func TestLocateFilePrecedence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	alpha, err := svc.EnsureHierarchy(ctx, "Alpha")
	if err != nil {
		t.Fatalf("EnsureHierarchy Alpha: %v", err)
	}
	beta, err := svc.EnsureHierarchy(ctx, "Beta")
	if err != nil {
		t.Fatalf("EnsureHierarchy Beta: %v", err)
	}

	early := linkFile(t, svc, alpha, "notes/Readme.md")
	exact := linkFile(t, svc, beta, "docs/Readme.md")
	named := linkFile(t, svc, alpha, "res/logo_v2.png")
	named.Name = "Logo.png"
	nested := linkFile(t, svc, beta, "a/b/c.md")

	tests := []struct {
		query string
		want  hproj.NodeID
		desc  string
	}{
		{"docs/Readme.md", exact.ID(), "exact path beats an earlier basename match"},
		{"Readme.md", early.ID(), "first match in walk order wins the name tier"},
		{"Logo.png", named.ID(), "display name matches before basename"},
		{"logo_v2.png", named.ID(), "basename fallback"},
		{"b/c.md", nested.ID(), "component-aligned path suffix"},
	}
	for _, tt := range tests {
		hit, err := svc.locateFile(tt.query)
		if err != nil {
			t.Errorf("locateFile(%q): %v (%s)", tt.query, err, tt.desc)
			continue
		}
		if hit.file.ID() != tt.want {
			t.Errorf("locateFile(%q) matched %s: %s", tt.query, hit.file.Path, tt.desc)
		}
	}

	if _, err := svc.locateFile("s/Readme.md"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("locateFile(s/Readme.md) = %v, want ErrFileNotFound (suffix not component aligned)", err)
	}
	var notFound *NotFoundError
	_, err = svc.locateFile("nowhere.txt")
	if !errors.As(err, &notFound) || notFound.Kind != "file" {
		t.Errorf("locateFile(nowhere.txt) = %v, want file NotFoundError", err)
	}
}

func TestMoveFileToGroupRecomputesPath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ga, err := svc.EnsureHierarchy(ctx, "GA")
	if err != nil {
		t.Fatalf("EnsureHierarchy GA: %v", err)
	}
	ga.Path = "A"
	gb, err := svc.EnsureHierarchy(ctx, "GB")
	if err != nil {
		t.Fatalf("EnsureHierarchy GB: %v", err)
	}
	gb.Path = "B"
	touch(t, svc, "A/Utils.swift")

	f, err := svc.AddFile(ctx, "A/Utils.swift", "GA", nil)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	if err := svc.MoveFileToGroup(ctx, "Utils.swift", "GB"); err != nil {
		t.Fatalf("MoveFileToGroup: %v", err)
	}
	if f.Path != "../A/Utils.swift" {
		t.Errorf("Path = %q, want ../A/Utils.swift (same disk location, new anchor)", f.Path)
	}
	if !slices.Contains(gb.Children, f.ID()) {
		t.Error("destination group does not list the file")
	}
	if slices.Contains(ga.Children, f.ID()) {
		t.Error("source group still lists the file")
	}
}

func TestMoveFileToGroupRefusesDuplicatePath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.CreateGroups(ctx, "GA", "GB"); err != nil {
		t.Fatalf("CreateGroups: %v", err)
	}
	touch(t, svc, "shared.swift")

	if _, err := svc.AddFile(ctx, "shared.swift", "GA", nil); err != nil {
		t.Fatalf("AddFile GA: %v", err)
	}
	gb, err := svc.resolveGroup("GB")
	if err != nil {
		t.Fatalf("resolveGroup GB: %v", err)
	}
	linkFile(t, svc, gb.group, "shared.swift")

	err = svc.MoveFileToGroup(ctx, "shared.swift", "GB")
	if !errors.Is(err, ErrOperationFailed) {
		t.Errorf("MoveFileToGroup onto duplicate = %v, want ErrOperationFailed", err)
	}
}

func TestMoveFileRepointsWithoutDiskCheck(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	touch(t, svc, "Old.swift")

	f, err := svc.AddFile(ctx, "Old.swift", "", nil)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	// The destination deliberately does not exist on disk: the project
	// side renames first.
	if err := svc.MoveFile(ctx, "Old.swift", "New.md"); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if f.Path != "New.md" {
		t.Errorf("Path = %q, want New.md", f.Path)
	}
	if f.FileType != "net.daringfireball.markdown" {
		t.Errorf("FileType = %q, want re-derived markdown type", f.FileType)
	}

	// The old path no longer resolves; the new one does.
	if _, err := svc.locateFile("Old.swift"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("locateFile(Old.swift) = %v, want ErrFileNotFound", err)
	}
	hit, err := svc.locateFile("New.md")
	if err != nil || hit.file.ID() != f.ID() {
		t.Errorf("locateFile(New.md) = %v, %v", hit, err)
	}
}

func TestRemoveFileDeletesDuplicateMemberships(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	target := addTarget(t, svc, "App", hproj.ProductTypeApplication)
	touch(t, svc, "main.swift")

	f, err := svc.AddFile(ctx, "main.swift", "", []string{"App"})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	sources := phaseOf(t, svc, target, hproj.PhaseSources)
	if sources == nil {
		t.Fatal("no sources phase")
	}

	// Malformed graphs can list the same file twice in one phase.
	dup := &hproj.BuildFile{FileID: f.ID()}
	if _, err := svc.Project().AddObject(dup); err != nil {
		t.Fatalf("AddObject dup: %v", err)
	}
	sources.Files = append(sources.Files, dup.ID())

	if err := svc.RemoveFile(ctx, "main.swift"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if len(sources.Files) != 0 {
		t.Errorf("sources phase still holds %d memberships, want 0", len(sources.Files))
	}
	if svc.Project().Contains(dup.ID()) {
		t.Error("duplicate membership object survived")
	}
	if svc.Project().Contains(f.ID()) {
		t.Error("file reference survived removal")
	}
}

func TestAddFileToTargetIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	target := addTarget(t, svc, "App", hproj.ProductTypeApplication)
	touch(t, svc, "main.swift")

	if _, err := svc.AddFile(ctx, "main.swift", "", nil); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := svc.AddFileToTarget(ctx, "main.swift", "App"); err != nil {
		t.Fatalf("AddFileToTarget: %v", err)
	}
	if err := svc.AddFileToTarget(ctx, "main.swift", "App"); err != nil {
		t.Fatalf("second AddFileToTarget: %v", err)
	}

	sources := phaseOf(t, svc, target, hproj.PhaseSources)
	if sources == nil || len(sources.Files) != 1 {
		t.Errorf("sources phase = %+v, want exactly one membership", sources)
	}
}

func TestAddFileToTargetHeaderRefused(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	addTarget(t, svc, "App", hproj.ProductTypeApplication)
	touch(t, svc, "Bridge.h")

	if _, err := svc.AddFile(ctx, "Bridge.h", "", nil); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := svc.AddFileToTarget(ctx, "Bridge.h", "App"); !errors.Is(err, ErrOperationFailed) {
		t.Errorf("AddFileToTarget(Bridge.h) = %v, want ErrOperationFailed", err)
	}
}

func TestRemoveFileFromTarget(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	addTarget(t, svc, "App", hproj.ProductTypeApplication)
	touch(t, svc, "main.swift")

	if _, err := svc.AddFile(ctx, "main.swift", "", []string{"App"}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	removed, err := svc.RemoveFileFromTarget(ctx, "main.swift", "App")
	if err != nil {
		t.Fatalf("RemoveFileFromTarget: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	removed, err = svc.RemoveFileFromTarget(ctx, "main.swift", "App")
	if err != nil {
		t.Fatalf("second RemoveFileFromTarget: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d on repeat, want 0", removed)
	}
}

func TestResolveTargetStaleEntryDropped(t *testing.T) {
	svc := newTestService(t)
	target := addTarget(t, svc, "App", hproj.ProductTypeApplication)

	if _, err := svc.resolveTarget("App"); err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	svc.Project().DeleteObject(target.ID())

	if _, err := svc.resolveTarget("App"); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("resolveTarget after delete = %v, want ErrTargetNotFound", err)
	}
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.EnsureHierarchy(ctx, "App"); err != nil {
		t.Fatalf("EnsureHierarchy: %v", err)
	}
	touch(t, svc, "main.swift")
	touch(t, svc, "Views/View.swift")

	if _, err := svc.AddFile(ctx, "main.swift", "", nil); err != nil {
		t.Fatalf("AddFile main: %v", err)
	}
	if _, err := svc.AddFile(ctx, "Views/View.swift", "App", nil); err != nil {
		t.Fatalf("AddFile view: %v", err)
	}

	infos := svc.ListFiles()
	if len(infos) != 2 {
		t.Fatalf("ListFiles returned %d entries, want 2", len(infos))
	}
	byName := make(map[string]FileInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}
	if info := byName["main.swift"]; info.GroupPath != "" {
		t.Errorf("main.swift group = %q, want root", info.GroupPath)
	}
	if info := byName["View.swift"]; info.GroupPath != "App" {
		t.Errorf("View.swift group = %q, want App", info.GroupPath)
	}
}
