// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halyardhq/halyard/services/project/cache"
	"github.com/halyardhq/halyard/services/project/hproj"
	"github.com/halyardhq/halyard/services/project/relpath"
)

// fileHit is one located file reference with its surroundings.
type fileHit struct {
	file *hproj.FileReference

	// container is the Group or VariantGroup that directly lists the file.
	container hproj.Object

	// owner is the group whose directory anchors the file's relative path.
	// For a file inside a variant group, that is the group holding the
	// variant group.
	owner *resolvedGroup
}

// walkFiles visits every file reference reachable from the root in
// document order: each group's children in display order, depth first.
// The chain slice is reused across calls; callers that retain it must
// copy it. Returning false stops the walk.
func (s *Service) walkFiles(visit func(f *hproj.FileReference, container hproj.Object, owner *hproj.Group, ownerPath string, chain []*hproj.Group) bool) {
	root := s.project.RootGroup()
	if root == nil {
		return
	}
	// Malformed graphs may contain child cycles.
	seen := make(map[hproj.NodeID]bool)

	var walk func(g *hproj.Group, path string, chain []*hproj.Group) bool
	walk = func(g *hproj.Group, groupPath string, chain []*hproj.Group) bool {
		if seen[g.ID()] {
			return true
		}
		seen[g.ID()] = true
		for _, cid := range g.Children {
			obj, ok := s.project.Object(cid)
			if !ok {
				continue
			}
			switch node := obj.(type) {
			case *hproj.FileReference:
				if !visit(node, g, g, groupPath, chain) {
					return false
				}
			case *hproj.VariantGroup:
				for _, vcid := range node.Children {
					if f := s.project.GetFileReference(vcid); f != nil {
						if !visit(f, node, g, groupPath, chain) {
							return false
						}
					}
				}
			case *hproj.Group:
				if !walk(node, joinHier(groupPath, node.DisplayName()), append(chain, node)) {
					return false
				}
			}
		}
		return true
	}
	walk(root, "", []*hproj.Group{root})
}

// suffixMatch reports whether query is a component-aligned suffix of p.
func suffixMatch(p, query string) bool {
	if !strings.HasSuffix(p, query) {
		return false
	}
	return len(p) == len(query) || p[len(p)-len(query)-1] == '/'
}

// locateFile finds a file reference by query, trying exact path, display
// name, basename, and component-aligned path suffix, in that precedence
// order. Within a tier the first match in document order wins.
func (s *Service) locateFile(query string) (*fileHit, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty file query", ErrInvalidArguments)
	}
	q := relpath.Normalize(query)

	var tiers [4]*fileHit
	s.walkFiles(func(f *hproj.FileReference, container hproj.Object, owner *hproj.Group, ownerPath string, chain []*hproj.Group) bool {
		hit := func() *fileHit {
			return &fileHit{
				file:      f,
				container: container,
				owner:     &resolvedGroup{group: owner, path: ownerPath, chain: slices.Clone(chain)},
			}
		}
		switch {
		case f.Path == q:
			tiers[0] = hit()
			return false
		case tiers[1] == nil && f.DisplayName() == query:
			tiers[1] = hit()
		case tiers[2] == nil && path.Base(f.Path) == query:
			tiers[2] = hit()
		case tiers[3] == nil && suffixMatch(f.Path, q):
			tiers[3] = hit()
		}
		return true
	})

	for _, h := range tiers {
		if h != nil {
			return h, nil
		}
	}
	return nil, &NotFoundError{Kind: "file", Name: query, Hint: "halyard files list"}
}

// childFileByPath finds a direct child file reference with the given
// relative path, or nil.
func (s *Service) childFileByPath(g *hproj.Group, rel string) *hproj.FileReference {
	for _, cid := range g.Children {
		if f := s.project.GetFileReference(cid); f != nil && f.Path == rel {
			return f
		}
	}
	return nil
}

// checkFileCollision rejects a new file whose name would shadow a sibling
// group or variant group. Group names compare against both the file's
// full name and its stem; variant groups compare by full name only,
// mirroring how sibling files may legally share a stem (Foo.h next to
// Foo.m).
func (s *Service) checkFileCollision(rg *resolvedGroup, fileName string) error {
	stem := stemOf(fileName)
	for _, cid := range rg.group.Children {
		obj, ok := s.project.Object(cid)
		if !ok {
			continue
		}
		switch node := obj.(type) {
		case *hproj.Group:
			name := node.DisplayName()
			if name == fileName || name == stem {
				return &NameCollisionError{
					Parent:       rg.path,
					Name:         fileName,
					Existing:     name,
					ExistingKind: hproj.KindGroup,
				}
			}
		case *hproj.VariantGroup:
			if node.Name == fileName {
				return &NameCollisionError{
					Parent:       rg.path,
					Name:         fileName,
					Existing:     node.Name,
					ExistingKind: hproj.KindVariantGroup,
				}
			}
		}
	}
	return nil
}

// resolveTarget finds a target by name, through the cache when possible.
func (s *Service) resolveTarget(name string) (*hproj.Target, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty target name", ErrInvalidArguments)
	}
	if id, ok := s.cache.Get(cache.ScopeTarget, cache.TargetKey(name)); ok {
		if t := s.project.GetTarget(id); t != nil {
			return t, nil
		}
		s.cache.Invalidate(cache.ScopeTarget, cache.TargetKey(name))
	}
	for _, t := range s.project.Targets() {
		if t.Name == name {
			s.cache.Put(cache.ScopeTarget, cache.TargetKey(name), t.ID())
			return t, nil
		}
	}
	return nil, &NotFoundError{Kind: "target", Name: name, Hint: "halyard targets list"}
}

// resolveTargets resolves every name or fails on the first unknown one.
func (s *Service) resolveTargets(names []string) ([]*hproj.Target, error) {
	targets := make([]*hproj.Target, 0, len(names))
	for _, name := range names {
		t, err := s.resolveTarget(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// phaseKindForFileType routes a classified file type to the build phase
// that should list it. Headers are declarations only and belong to no
// phase.
func phaseKindForFileType(fileType string) (hproj.PhaseKind, bool) {
	switch {
	case fileType == "sourcecode.c.h" || fileType == "sourcecode.cpp.h":
		return hproj.PhaseUnknown, false
	case fileType == "sourcecode.text-based-dylib-definition":
		return hproj.PhaseFrameworks, true
	case strings.HasPrefix(fileType, "sourcecode."):
		return hproj.PhaseSources, true
	case fileType == "wrapper.framework" || fileType == "archive.ar" || fileType == "compiled.mach-o.dylib":
		return hproj.PhaseFrameworks, true
	default:
		return hproj.PhaseResources, true
	}
}

// ensurePhase finds the target's phase of the given kind, creating and
// linking one when missing.
func (s *Service) ensurePhase(t *hproj.Target, kind hproj.PhaseKind) (*hproj.BuildPhase, error) {
	for _, pid := range t.Phases {
		if phase := s.project.GetBuildPhase(pid); phase != nil && phase.Kind == kind {
			return phase, nil
		}
	}
	phase := &hproj.BuildPhase{Kind: kind}
	if _, err := s.project.AddObject(phase); err != nil {
		return nil, fmt.Errorf("%w: registering %s phase for target %q: %v", ErrOperationFailed, kind, t.Name, err)
	}
	t.Phases = append(t.Phases, phase.ID())
	return phase, nil
}

// addMembership links a file into the phase its type routes to, creating
// the phase if the target lacks one. Idempotent by file identity; the
// second return reports whether a membership was created. File types with
// no phase return (nil, false, nil).
func (s *Service) addMembership(t *hproj.Target, f *hproj.FileReference) (*hproj.BuildFile, bool, error) {
	kind, ok := phaseKindForFileType(f.FileType)
	if !ok {
		return nil, false, nil
	}
	phase, err := s.ensurePhase(t, kind)
	if err != nil {
		return nil, false, err
	}
	for _, bfID := range phase.Files {
		if bf := s.project.GetBuildFile(bfID); bf != nil && bf.FileID == f.ID() {
			return bf, false, nil
		}
	}

	bf := &hproj.BuildFile{FileID: f.ID()}
	if kind == hproj.PhaseFrameworks && f.FileType == "wrapper.framework" {
		bf.Settings = map[string]any{"code_sign_on_copy": true}
	}
	if _, err := s.project.AddObject(bf); err != nil {
		return nil, false, fmt.Errorf("%w: registering membership for %q in target %q: %v",
			ErrOperationFailed, f.DisplayName(), t.Name, err)
	}
	phase.Files = append(phase.Files, bf.ID())
	return bf, true, nil
}

// removeMembershipsFromTarget removes every build file in the target's
// phases whose FileID is in victims, deleting the membership objects.
// Matching is by identity only, never by structure, so duplicate
// memberships for the same file are all removed.
func (s *Service) removeMembershipsFromTarget(t *hproj.Target, victims map[hproj.NodeID]struct{}) int {
	removed := 0
	for _, pid := range t.Phases {
		phase := s.project.GetBuildPhase(pid)
		if phase == nil {
			continue
		}
		kept := make([]hproj.NodeID, 0, len(phase.Files))
		for _, bfID := range phase.Files {
			if bf := s.project.GetBuildFile(bfID); bf != nil {
				if _, hit := victims[bf.FileID]; hit {
					s.project.DeleteObject(bfID)
					removed++
					continue
				}
			}
			kept = append(kept, bfID)
		}
		phase.Files = kept
	}
	return removed
}

// removeMembershipsOf removes memberships for the victim files from every
// target.
func (s *Service) removeMembershipsOf(victims map[hproj.NodeID]struct{}) int {
	removed := 0
	for _, t := range s.project.Targets() {
		removed += s.removeMembershipsFromTarget(t, victims)
	}
	return removed
}

// unlinkChild removes id from the container's child list.
func unlinkChild(container hproj.Object, id hproj.NodeID) {
	switch c := container.(type) {
	case *hproj.Group:
		c.RemoveChild(id)
	case *hproj.VariantGroup:
		c.RemoveChild(id)
	}
}

// groupLabel names a resolved group for log fields.
func groupLabel(rg *resolvedGroup) string {
	if rg.path == "" {
		return "<root>"
	}
	return rg.path
}

// AddFile adds one on-disk file to a group and wires it into targets.
//
// # Description
//
// The disk path must exist. The stored path is computed relative to the
// resolved group's directory, so same-named files in different groups get
// distinct paths and distinct cache keys. Re-adding a path already present
// in the group is an idempotent no-op that returns the existing reference.
// Target names are resolved before anything is mutated; an unknown target
// creates nothing. For each target, a membership is appended to the build
// phase selected by file type (headers join no phase).
//
// # Inputs
//
//   - ctx: Context for logging and audit.
//   - diskPath: File location, absolute or relative to the root directory.
//   - groupPath: Destination group; "" means the root group.
//   - targetNames: Targets whose build phases should list the file.
//
// # Outputs
//
//   - *hproj.FileReference: The created or pre-existing reference.
//   - error: ErrInvalidArguments, ErrGroupNotFound, ErrTargetNotFound,
//     ErrOperationFailed (missing on disk, name collision).
func (s *Service) AddFile(ctx context.Context, diskPath, groupPath string, targetNames []string) (f *hproj.FileReference, err error) {
	start := time.Now()
	defer func() {
		s.recordAudit(ctx, "add-file", append([]string{diskPath, groupPath}, targetNames...), "", start, err)
	}()

	if diskPath == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrInvalidArguments)
	}
	rg, err := s.resolveGroup(groupPath)
	if err != nil {
		return nil, err
	}

	abs := s.absOnDisk(diskPath)
	if _, statErr := os.Stat(abs); statErr != nil {
		return nil, fmt.Errorf("%w: %s is not on disk: %v", ErrOperationFailed, diskPath, statErr)
	}

	rel := relpath.Between(rg.absDir(s.rootDir), abs)
	key := cache.FileKey(rg.path, rel)

	if id, ok := s.cache.Get(cache.ScopeFile, key); ok {
		if existing := s.project.GetFileReference(id); existing != nil {
			s.logger.WarnContext(ctx, "file already in group, skipping",
				slog.String("path", rel),
				slog.String("group", groupLabel(rg)),
			)
			return existing, nil
		}
		s.cache.Invalidate(cache.ScopeFile, key)
	}
	if existing := s.childFileByPath(rg.group, rel); existing != nil {
		s.cache.Put(cache.ScopeFile, key, existing.ID())
		s.logger.WarnContext(ctx, "file already in group, skipping",
			slog.String("path", rel),
			slog.String("group", groupLabel(rg)),
		)
		return existing, nil
	}

	if colErr := s.checkFileCollision(rg, path.Base(rel)); colErr != nil {
		return nil, colErr
	}
	targets, err := s.resolveTargets(targetNames)
	if err != nil {
		return nil, err
	}

	f = &hproj.FileReference{Path: rel, FileType: hproj.FileTypeForPath(rel)}
	if _, addErr := s.project.AddObject(f); addErr != nil {
		return nil, fmt.Errorf("%w: registering file %q: %v", ErrOperationFailed, rel, addErr)
	}
	rg.group.Children = append(rg.group.Children, f.ID())

	pending := &cache.Pending{}
	pending.Put(cache.ScopeFile, key, f.ID())

	for _, t := range targets {
		if _, _, mErr := s.addMembership(t, f); mErr != nil {
			return nil, mErr
		}
	}

	pending.Apply(s.cache)
	s.logger.InfoContext(ctx, "file added",
		slog.String("path", rel),
		slog.String("group", groupLabel(rg)),
		slog.Int("targets", len(targets)),
	)
	return f, nil
}

// AddFiles adds a batch of on-disk files to one group.
//
// # Description
//
// Every disk path is checked for existence up front, in parallel, before
// the graph is touched; a missing file fails the whole batch with nothing
// mutated. The adds themselves run sequentially and stop at the first
// error, returning the references added so far; an enclosing transaction
// decides whether those survive.
func (s *Service) AddFiles(ctx context.Context, diskPaths []string, groupPath string, targetNames []string) ([]*hproj.FileReference, error) {
	if len(diskPaths) == 0 {
		return nil, fmt.Errorf("%w: no files given", ErrInvalidArguments)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, p := range diskPaths {
		g.Go(func() error {
			if _, err := os.Stat(s.absOnDisk(p)); err != nil {
				return fmt.Errorf("%w: %s is not on disk: %v", ErrOperationFailed, p, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	added := make([]*hproj.FileReference, 0, len(diskPaths))
	for _, p := range diskPaths {
		f, err := s.AddFile(ctx, p, groupPath, targetNames)
		if err != nil {
			return added, err
		}
		added = append(added, f)
	}
	return added, nil
}

// MoveFile repoints a file reference at a new disk location, keeping it
// in its current group.
//
// # Description
//
// The stored path is recomputed relative to the owning group's directory
// and the file type is re-derived from the new name. The new location is
// not required to exist on disk: the project-side rename may precede the
// filesystem one. Build phase memberships are left as they are.
func (s *Service) MoveFile(ctx context.Context, query, newDiskPath string) (err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "move-file", []string{query, newDiskPath}, "", start, err) }()

	if newDiskPath == "" {
		return fmt.Errorf("%w: empty destination path", ErrInvalidArguments)
	}
	hit, err := s.locateFile(query)
	if err != nil {
		return err
	}

	newRel := relpath.Between(hit.owner.absDir(s.rootDir), s.absOnDisk(newDiskPath))
	oldRel := hit.file.Path
	if newRel == oldRel {
		s.logger.WarnContext(ctx, "file already at path, skipping",
			slog.String("path", oldRel),
		)
		return nil
	}
	if existing := s.childFileByPath(hit.owner.group, newRel); existing != nil && existing != hit.file {
		return fmt.Errorf("%w: %q already exists in group %q", ErrOperationFailed, newRel, groupLabel(hit.owner))
	}

	hit.file.Path = newRel
	hit.file.FileType = hproj.FileTypeForPath(newRel)

	pending := &cache.Pending{}
	pending.Drop(cache.ScopeFile, cache.FileKey(hit.owner.path, oldRel))
	pending.Put(cache.ScopeFile, cache.FileKey(hit.owner.path, newRel), hit.file.ID())
	pending.Apply(s.cache)

	s.logger.InfoContext(ctx, "file moved",
		slog.String("from", oldRel),
		slog.String("to", newRel),
		slog.String("group", groupLabel(hit.owner)),
	)
	return nil
}

// MoveFileToGroup relocates a file reference under another group.
//
// # Description
//
// The file's absolute disk location stays fixed; its stored path is
// recomputed relative to the destination group's directory. The move is
// refused when the destination already lists the same relative path or
// when the name would shadow a sibling group. Memberships are untouched.
func (s *Service) MoveFileToGroup(ctx context.Context, query, destPath string) (err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "move-file-to-group", []string{query, destPath}, "", start, err) }()

	hit, err := s.locateFile(query)
	if err != nil {
		return err
	}
	dest, err := s.resolveGroup(destPath)
	if err != nil {
		return err
	}
	if dest.group.ID() == hit.container.ID() {
		s.logger.WarnContext(ctx, "file already in group, skipping",
			slog.String("path", hit.file.Path),
			slog.String("group", groupLabel(dest)),
		)
		return nil
	}

	oldRel := hit.file.Path
	oldAbs := s.fileAbsPath(hit)
	newRel := relpath.Between(dest.absDir(s.rootDir), oldAbs)

	if existing := s.childFileByPath(dest.group, newRel); existing != nil {
		return fmt.Errorf("%w: %q already exists in group %q", ErrOperationFailed, newRel, groupLabel(dest))
	}
	if colErr := s.checkFileCollision(dest, path.Base(newRel)); colErr != nil {
		return colErr
	}

	unlinkChild(hit.container, hit.file.ID())
	dest.group.Children = append(dest.group.Children, hit.file.ID())
	hit.file.Path = newRel

	pending := &cache.Pending{}
	pending.Drop(cache.ScopeFile, cache.FileKey(hit.owner.path, oldRel))
	pending.Put(cache.ScopeFile, cache.FileKey(dest.path, newRel), hit.file.ID())
	pending.Apply(s.cache)

	s.logger.InfoContext(ctx, "file moved to group",
		slog.String("path", newRel),
		slog.String("from", groupLabel(hit.owner)),
		slog.String("to", groupLabel(dest)),
	)
	return nil
}

// RemoveFile deletes a file reference, all of its memberships, and its
// child link.
//
// # Description
//
// Memberships are collected by identity across every phase of every
// target before the node is deleted, so no dangling membership survives.
// The composite cache key is invalidated after the removal succeeds.
func (s *Service) RemoveFile(ctx context.Context, query string) (err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "remove-file", []string{query}, "", start, err) }()

	hit, err := s.locateFile(query)
	if err != nil {
		return err
	}

	id := hit.file.ID()
	memberships := s.removeMembershipsOf(map[hproj.NodeID]struct{}{id: {}})
	unlinkChild(hit.container, id)
	s.project.DeleteObject(id)
	s.cache.Invalidate(cache.ScopeFile, cache.FileKey(hit.owner.path, hit.file.Path))

	s.logger.InfoContext(ctx, "file removed",
		slog.String("path", hit.file.Path),
		slog.String("group", groupLabel(hit.owner)),
		slog.Int("memberships", memberships),
	)
	return nil
}

// AddFileToTarget adds a membership for an existing file reference to one
// target's type-appropriate build phase. Idempotent by file identity.
func (s *Service) AddFileToTarget(ctx context.Context, query, targetName string) (err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "add-file-to-target", []string{query, targetName}, "", start, err) }()

	hit, err := s.locateFile(query)
	if err != nil {
		return err
	}
	t, err := s.resolveTarget(targetName)
	if err != nil {
		return err
	}
	if _, ok := phaseKindForFileType(hit.file.FileType); !ok {
		return fmt.Errorf("%w: file type %q is not a member of any build phase", ErrOperationFailed, hit.file.FileType)
	}

	_, created, err := s.addMembership(t, hit.file)
	if err != nil {
		return err
	}
	if !created {
		s.logger.WarnContext(ctx, "file already in target, skipping",
			slog.String("path", hit.file.Path),
			slog.String("target", t.Name),
		)
		return nil
	}
	s.logger.InfoContext(ctx, "file added to target",
		slog.String("path", hit.file.Path),
		slog.String("target", t.Name),
	)
	return nil
}

// RemoveFileFromTarget removes every membership for the file from one
// target's phases, by identity. Removing a file that is not in the target
// is a no-op.
func (s *Service) RemoveFileFromTarget(ctx context.Context, query, targetName string) (removed int, err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "remove-file-from-target", []string{query, targetName}, "", start, err) }()

	hit, err := s.locateFile(query)
	if err != nil {
		return 0, err
	}
	t, err := s.resolveTarget(targetName)
	if err != nil {
		return 0, err
	}

	removed = s.removeMembershipsFromTarget(t, map[hproj.NodeID]struct{}{hit.file.ID(): {}})
	if removed == 0 {
		s.logger.WarnContext(ctx, "file not in target, nothing to remove",
			slog.String("path", hit.file.Path),
			slog.String("target", t.Name),
		)
		return 0, nil
	}
	s.logger.InfoContext(ctx, "file removed from target",
		slog.String("path", hit.file.Path),
		slog.String("target", t.Name),
		slog.Int("memberships", removed),
	)
	return removed, nil
}

// fileAbsPath returns the file's absolute on-disk location: its stored
// path anchored at the owning group's directory, or the stored path
// itself when absolute.
func (s *Service) fileAbsPath(hit *fileHit) string {
	p := hit.file.Path
	if path.IsAbs(p) {
		return p
	}
	return filepath.Join(hit.owner.absDir(s.rootDir), filepath.FromSlash(p))
}

// FileInfo describes one reachable file reference for listings.
type FileInfo struct {
	ID        hproj.NodeID
	GroupPath string
	Path      string
	Name      string
	FileType  string
}

// ListFiles returns every file reference reachable from the root, in
// document order.
func (s *Service) ListFiles() []FileInfo {
	var infos []FileInfo
	s.walkFiles(func(f *hproj.FileReference, _ hproj.Object, _ *hproj.Group, ownerPath string, _ []*hproj.Group) bool {
		infos = append(infos, FileInfo{
			ID:        f.ID(),
			GroupPath: ownerPath,
			Path:      f.Path,
			Name:      f.DisplayName(),
			FileType:  f.FileType,
		})
		return true
	})
	return infos
}
