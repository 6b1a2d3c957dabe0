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
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/halyardhq/halyard/services/project/cache"
	"github.com/halyardhq/halyard/services/project/hproj"
)

// HierarchySeparator splits hierarchical group paths into components.
const HierarchySeparator = "/"

// resolvedGroup couples a group with its hierarchical location.
type resolvedGroup struct {
	group *hproj.Group

	// path is the hierarchical path, "" for the root group.
	path string

	// chain runs from the root group to the resolved group, inclusive.
	chain []*hproj.Group
}

// absDir returns the on-disk directory the group maps to: the root
// directory extended by every path-bearing group along the chain.
func (r *resolvedGroup) absDir(rootDir string) string {
	dir := rootDir
	for _, g := range r.chain {
		if g.Path != "" {
			dir = filepath.Join(dir, g.Path)
		}
	}
	return dir
}

// splitHierPath splits a hierarchical path into components, rejecting
// empty paths and empty components.
func splitHierPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty group path", ErrInvalidArguments)
	}
	comps := strings.Split(path, HierarchySeparator)
	for _, c := range comps {
		if c == "" {
			return nil, fmt.Errorf("%w: empty component in group path %q", ErrInvalidArguments, path)
		}
	}
	return comps, nil
}

// joinHier extends a hierarchical path by one component.
func joinHier(path, comp string) string {
	if path == "" {
		return comp
	}
	return path + HierarchySeparator + comp
}

// stemOf returns a file-like name without its final extension. Names with
// no extension, or whose only dot leads (".gitignore"), have no distinct
// stem and are returned unchanged.
func stemOf(name string) string {
	if dot := strings.LastIndex(name, "."); dot > 0 {
		return name[:dot]
	}
	return name
}

// matchesComponent reports whether a group answers to a hierarchical path
// component, by display name or by on-disk path segment.
func matchesComponent(g *hproj.Group, comp string) bool {
	return g.Name == comp || g.Path == comp
}

// childGroup finds a direct child group answering to comp, or nil.
func (s *Service) childGroup(parent *hproj.Group, comp string) *hproj.Group {
	for _, cid := range parent.Children {
		if g := s.project.GetGroup(cid); g != nil && matchesComponent(g, comp) {
			return g
		}
	}
	return nil
}

// walkGroups visits every group reachable from the root in pre-order. The
// callback receives the group, its hierarchical path ("" for the root),
// and the chain from the root inclusive; the chain slice is reused across
// calls, so callers that retain it must copy it. Returning false stops
// the walk.
func (s *Service) walkGroups(visit func(g *hproj.Group, path string, chain []*hproj.Group) bool) {
	root := s.project.RootGroup()
	if root == nil {
		return
	}
	// Malformed graphs may contain child cycles.
	seen := make(map[hproj.NodeID]bool)

	var walk func(g *hproj.Group, path string, chain []*hproj.Group) bool
	walk = func(g *hproj.Group, path string, chain []*hproj.Group) bool {
		if seen[g.ID()] {
			return true
		}
		seen[g.ID()] = true
		if !visit(g, path, chain) {
			return false
		}
		for _, cid := range g.Children {
			child := s.project.GetGroup(cid)
			if child == nil {
				continue
			}
			if !walk(child, joinHier(path, child.DisplayName()), append(chain, child)) {
				return false
			}
		}
		return true
	}
	walk(root, "", []*hproj.Group{root})
}

// resolveGroup resolves a group query: by exact hierarchical walk when the
// query contains a separator, by first-match pre-order name search
// otherwise. The empty query resolves to the root group.
//
// Simple-name search deliberately returns the first match in walk order
// when several groups share a name at different depths; hierarchical
// queries are exact or fail.
func (s *Service) resolveGroup(query string) (*resolvedGroup, error) {
	root := s.project.RootGroup()
	if query == "" {
		return &resolvedGroup{group: root, path: "", chain: []*hproj.Group{root}}, nil
	}

	if !strings.Contains(query, HierarchySeparator) {
		var found *resolvedGroup
		s.walkGroups(func(g *hproj.Group, path string, chain []*hproj.Group) bool {
			if g != root && matchesComponent(g, query) {
				found = &resolvedGroup{group: g, path: path, chain: slices.Clone(chain)}
				return false
			}
			return true
		})
		if found == nil {
			return nil, &NotFoundError{Kind: "group", Name: query, Hint: "halyard groups list"}
		}
		s.cache.Put(cache.ScopeGroup, cache.GroupKey(found.path), found.group.ID())
		return found, nil
	}

	comps, err := splitHierPath(query)
	if err != nil {
		return nil, err
	}

	if id, ok := s.cache.Get(cache.ScopeGroup, cache.GroupKey(query)); ok {
		if g := s.project.GetGroup(id); g != nil {
			if chain := s.chainTo(id); chain != nil {
				return &resolvedGroup{group: g, path: query, chain: chain}, nil
			}
		}
		s.cache.Invalidate(cache.ScopeGroup, cache.GroupKey(query))
	}

	cur := root
	curPath := ""
	chain := []*hproj.Group{root}
	for _, comp := range comps {
		next := s.childGroup(cur, comp)
		if next == nil {
			return nil, &NotFoundError{Kind: "group", Name: query, Hint: "halyard groups list"}
		}
		cur = next
		curPath = joinHier(curPath, comp)
		chain = append(chain, next)
		s.cache.Put(cache.ScopeGroup, cache.GroupKey(curPath), next.ID())
	}
	return &resolvedGroup{group: cur, path: curPath, chain: chain}, nil
}

// chainTo returns the group chain from the root to id inclusive, or nil
// when id is not reachable through group links.
func (s *Service) chainTo(id hproj.NodeID) []*hproj.Group {
	var found []*hproj.Group
	s.walkGroups(func(g *hproj.Group, path string, chain []*hproj.Group) bool {
		if g.ID() == id {
			found = slices.Clone(chain)
			return false
		}
		return true
	})
	return found
}

// EnsureHierarchy resolves a hierarchical group path, creating every
// missing level.
//
// # Description
//
// Walks the path component by component. Each level is resolved through
// the cache first, then by scanning the current group's children; a
// missing level is checked against every sibling name per the collision
// rules before a new group is created, registered, and linked. Cache
// entries for created levels are buffered and applied only after the
// whole walk succeeds, so a collision at level N leaves levels 1..N-1
// exactly as cached and creates nothing at or below N.
//
// # Inputs
//
//   - ctx: Context for logging and audit.
//   - path: Hierarchical path, for example "Sources/Models".
//
// # Outputs
//
//   - *hproj.Group: The group at the full path, created or pre-existing.
//   - error: ErrInvalidArguments for a malformed path, or a
//     NameCollisionError wrapping ErrOperationFailed.
func (s *Service) EnsureHierarchy(ctx context.Context, path string) (g *hproj.Group, err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "ensure-hierarchy", []string{path}, "", start, err) }()

	comps, err := splitHierPath(path)
	if err != nil {
		return nil, err
	}

	pending := &cache.Pending{}
	cur := s.project.RootGroup()
	curPath := ""
	created := 0

	for _, comp := range comps {
		levelPath := joinHier(curPath, comp)

		if id, ok := s.cache.Get(cache.ScopeGroup, cache.GroupKey(levelPath)); ok {
			if cached := s.project.GetGroup(id); cached != nil {
				cur, curPath = cached, levelPath
				continue
			}
			s.cache.Invalidate(cache.ScopeGroup, cache.GroupKey(levelPath))
		}

		if existing := s.childGroup(cur, comp); existing != nil {
			// Pre-existing levels are cached immediately: they stay valid
			// even if a deeper level fails.
			s.cache.Put(cache.ScopeGroup, cache.GroupKey(levelPath), existing.ID())
			cur, curPath = existing, levelPath
			continue
		}

		if colErr := s.checkGroupCollision(cur, curPath, comp); colErr != nil {
			return nil, colErr
		}

		next := &hproj.Group{Name: comp}
		if _, addErr := s.project.AddObject(next); addErr != nil {
			return nil, fmt.Errorf("%w: registering group %q: %v", ErrOperationFailed, comp, addErr)
		}
		cur.Children = append(cur.Children, next.ID())
		pending.Put(cache.ScopeGroup, cache.GroupKey(levelPath), next.ID())
		created++

		cur, curPath = next, levelPath
	}

	pending.Apply(s.cache)
	if created > 0 {
		s.logger.InfoContext(ctx, "group hierarchy ensured",
			slog.String("path", path),
			slog.Int("created", created),
		)
	}
	return cur, nil
}

// checkGroupCollision rejects a new group component whose name is already
// taken by a file-like sibling. Files compare by full name and by stem;
// variant groups compare the same way. Sibling groups cannot conflict
// here: a group answering to comp is a resolution target, not a
// collision.
func (s *Service) checkGroupCollision(parent *hproj.Group, parentPath, comp string) error {
	for _, cid := range parent.Children {
		obj, ok := s.project.Object(cid)
		if !ok {
			continue
		}
		switch node := obj.(type) {
		case *hproj.FileReference:
			full := node.DisplayName()
			if comp == full || comp == stemOf(full) {
				return &NameCollisionError{
					Parent:       parentPath,
					Name:         comp,
					Existing:     full,
					ExistingKind: hproj.KindFileReference,
				}
			}
		case *hproj.VariantGroup:
			if comp == node.Name || comp == stemOf(node.Name) {
				return &NameCollisionError{
					Parent:       parentPath,
					Name:         comp,
					Existing:     node.Name,
					ExistingKind: hproj.KindVariantGroup,
				}
			}
		}
	}
	return nil
}

// CreateGroups ensures every given hierarchical path, stopping at the
// first failure. Groups created by earlier paths remain.
func (s *Service) CreateGroups(ctx context.Context, paths ...string) ([]*hproj.Group, error) {
	groups := make([]*hproj.Group, 0, len(paths))
	for _, p := range paths {
		g, err := s.EnsureHierarchy(ctx, p)
		if err != nil {
			return groups, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// RemoveGroup removes a group and everything beneath it.
//
// # Description
//
// Resolves the group by exact path or simple name, refuses the root and
// products groups by identity, then collects every descendant group,
// variant group, and file reference. Build file memberships pointing at
// any collected file are removed from every target's phases by identity
// before the nodes are deleted from the registry and the group is
// unlinked from its parent. All cache entries at or below the removed
// path are invalidated after the removal succeeds.
//
// # Inputs
//
//   - ctx: Context for logging and audit.
//   - path: Hierarchical path or simple group name.
//
// # Outputs
//
//   - error: ErrInvalidArguments, ErrGroupNotFound, or ErrOperationFailed
//     for protected groups.
func (s *Service) RemoveGroup(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "remove-group", []string{path}, "", start, err) }()

	if path == "" {
		return fmt.Errorf("%w: empty group path", ErrInvalidArguments)
	}
	rg, err := s.resolveGroup(path)
	if err != nil {
		return err
	}

	id := rg.group.ID()
	if id == s.project.RootID() {
		return fmt.Errorf("%w: cannot remove the root group", ErrOperationFailed)
	}
	if id == s.project.ProductsID() {
		return fmt.Errorf("%w: cannot remove the products group %q", ErrOperationFailed, rg.group.DisplayName())
	}

	var nodes []hproj.NodeID
	files := make(map[hproj.NodeID]struct{})
	s.collectSubtree(id, make(map[hproj.NodeID]bool), &nodes, files)

	memberships := s.removeMembershipsOf(files)

	if parentID, ok := s.project.ParentOf(id); ok {
		if parent := s.project.GetGroup(parentID); parent != nil {
			parent.RemoveChild(id)
		}
	}
	for _, nid := range nodes {
		s.project.DeleteObject(nid)
	}

	s.cache.InvalidateGroupPrefix(rg.path)

	s.logger.InfoContext(ctx, "group removed",
		slog.String("path", rg.path),
		slog.Int("nodes", len(nodes)),
		slog.Int("memberships", memberships),
	)
	return nil
}

// collectSubtree gathers the ids of a group and everything beneath it in
// pre-order. File reference ids are additionally recorded in files for
// membership cleanup; variant group children count as files. The seen map
// guards against child cycles in malformed graphs.
func (s *Service) collectSubtree(id hproj.NodeID, seen map[hproj.NodeID]bool, nodes *[]hproj.NodeID, files map[hproj.NodeID]struct{}) {
	if seen[id] {
		return
	}
	seen[id] = true

	obj, ok := s.project.Object(id)
	if !ok {
		return
	}
	*nodes = append(*nodes, id)

	switch node := obj.(type) {
	case *hproj.Group:
		for _, cid := range node.Children {
			s.collectSubtree(cid, seen, nodes, files)
		}
	case *hproj.VariantGroup:
		for _, cid := range node.Children {
			s.collectSubtree(cid, seen, nodes, files)
		}
	case *hproj.FileReference:
		files[id] = struct{}{}
	}
}

// GroupPaths returns the hierarchical path of every group reachable from
// the root, in pre-order. The root itself is omitted.
func (s *Service) GroupPaths() []string {
	var paths []string
	s.walkGroups(func(g *hproj.Group, path string, _ []*hproj.Group) bool {
		if path != "" {
			paths = append(paths, path)
		}
		return true
	})
	return paths
}
