// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/halyardhq/halyard/services/project/hproj"
)

// DanglingMembership is a build phase entry whose file no longer exists.
type DanglingMembership struct {
	// MembershipID is the build file node listing the missing file.
	MembershipID hproj.NodeID

	// FileID is the missing file the membership points at.
	FileID hproj.NodeID

	TargetName string
	PhaseKind  hproj.PhaseKind
}

// BrokenPhaseRef is a target or phase entry that resolves to no object:
// a phase ID with no build phase behind it (PhaseKind is PhaseUnknown
// then), or a membership ID with no build file behind it.
type BrokenPhaseRef struct {
	TargetName string
	PhaseKind  hproj.PhaseKind
	RefID      hproj.NodeID
}

// Report is the outcome of a consistency sweep over the whole graph.
type Report struct {
	// OrphanedFiles are registered file references no group or variant
	// group reachable from the root contains.
	OrphanedFiles []*hproj.FileReference

	// DanglingMemberships are phase entries pointing at deleted files.
	DanglingMemberships []DanglingMembership

	// BrokenPhaseRefs are target or phase entries with no backing object.
	BrokenPhaseRefs []BrokenPhaseRef

	// MissingProducts names targets that should have a product reference
	// but point at nothing, or at a deleted node.
	MissingProducts []string
}

// Clean reports whether the sweep found nothing wrong.
func (r *Report) Clean() bool {
	return len(r.OrphanedFiles) == 0 &&
		len(r.DanglingMemberships) == 0 &&
		len(r.BrokenPhaseRefs) == 0 &&
		len(r.MissingProducts) == 0
}

// CleanupResult tallies what RemoveInvalidReferences deleted.
type CleanupResult struct {
	// FilesRemoved counts deleted orphaned file references.
	FilesRemoved int

	// MembershipsRemoved counts deleted build file objects, both those
	// belonging to orphaned files and those pointing at missing files.
	MembershipsRemoved int

	// PhaseRefsPruned counts stale IDs dropped from target phase lists
	// and phase file lists where no object backed the entry.
	PhaseRefsPruned int
}

// reachableFiles returns the IDs of every file reference contained,
// directly or through variant groups, in the hierarchy under the root.
func (s *Service) reachableFiles() map[hproj.NodeID]struct{} {
	files := make(map[hproj.NodeID]struct{})
	root := s.project.RootGroup()
	if root == nil {
		return files
	}
	var nodes []hproj.NodeID
	s.collectSubtree(root.ID(), make(map[hproj.NodeID]bool), &nodes, files)
	return files
}

// Validate sweeps the graph for inconsistencies without mutating it.
//
// # Description
//
// Four checks run in one pass: file references nothing contains,
// memberships whose file is gone, phase or membership IDs with no object
// behind them, and targets missing a product reference their product
// type calls for. Reachability is containment only; a product link alone
// does not keep a file reference alive.
func (s *Service) Validate(ctx context.Context) *Report {
	report := &Report{}
	reachable := s.reachableFiles()

	for _, f := range s.project.FileReferences() {
		if _, ok := reachable[f.ID()]; !ok {
			report.OrphanedFiles = append(report.OrphanedFiles, f)
		}
	}

	for _, t := range s.project.Targets() {
		for _, pid := range t.Phases {
			phase := s.project.GetBuildPhase(pid)
			if phase == nil {
				report.BrokenPhaseRefs = append(report.BrokenPhaseRefs, BrokenPhaseRef{
					TargetName: t.Name,
					PhaseKind:  hproj.PhaseUnknown,
					RefID:      pid,
				})
				continue
			}
			for _, bfID := range phase.Files {
				bf := s.project.GetBuildFile(bfID)
				if bf == nil {
					report.BrokenPhaseRefs = append(report.BrokenPhaseRefs, BrokenPhaseRef{
						TargetName: t.Name,
						PhaseKind:  phase.Kind,
						RefID:      bfID,
					})
					continue
				}
				if !s.project.Contains(bf.FileID) {
					report.DanglingMemberships = append(report.DanglingMemberships, DanglingMembership{
						MembershipID: bfID,
						FileID:       bf.FileID,
						TargetName:   t.Name,
						PhaseKind:    phase.Kind,
					})
				}
			}
		}
		if _, builds := t.ProductType.ProductFileName(t.Name); builds {
			if t.ProductID == "" || s.project.GetFileReference(t.ProductID) == nil {
				report.MissingProducts = append(report.MissingProducts, t.Name)
			}
		}
	}

	s.logger.DebugContext(ctx, "validation complete",
		slog.Int("orphaned_files", len(report.OrphanedFiles)),
		slog.Int("dangling_memberships", len(report.DanglingMemberships)),
		slog.Int("broken_phase_refs", len(report.BrokenPhaseRefs)),
		slog.Int("missing_products", len(report.MissingProducts)),
	)
	return report
}

// ListInvalidReferences returns the file references a sweep would remove:
// every registered reference nothing reachable contains.
func (s *Service) ListInvalidReferences(ctx context.Context) []*hproj.FileReference {
	return s.Validate(ctx).OrphanedFiles
}

// RemoveInvalidReferences deletes everything Validate flags as removable.
//
// # Description
//
// Orphaned file references are deleted along with their memberships, by
// identity across all targets. Dangling memberships are deleted and
// unlinked from their phases. Stale phase and membership IDs with no
// object behind them are dropped from the lists that held them. Missing
// products are not repaired here; RepairProductReferences does that.
func (s *Service) RemoveInvalidReferences(ctx context.Context) (result CleanupResult, err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "remove-invalid", nil, "", start, err) }()

	report := s.Validate(ctx)

	if len(report.OrphanedFiles) > 0 {
		victims := make(map[hproj.NodeID]struct{}, len(report.OrphanedFiles))
		for _, f := range report.OrphanedFiles {
			victims[f.ID()] = struct{}{}
		}
		result.MembershipsRemoved += s.removeMembershipsOf(victims)
		for _, f := range report.OrphanedFiles {
			s.project.DeleteObject(f.ID())
			result.FilesRemoved++
		}
	}

	for _, t := range s.project.Targets() {
		keptPhases := make([]hproj.NodeID, 0, len(t.Phases))
		for _, pid := range t.Phases {
			phase := s.project.GetBuildPhase(pid)
			if phase == nil {
				result.PhaseRefsPruned++
				continue
			}
			keptPhases = append(keptPhases, pid)

			keptFiles := make([]hproj.NodeID, 0, len(phase.Files))
			for _, bfID := range phase.Files {
				bf := s.project.GetBuildFile(bfID)
				if bf == nil {
					result.PhaseRefsPruned++
					continue
				}
				if !s.project.Contains(bf.FileID) {
					s.project.DeleteObject(bfID)
					result.MembershipsRemoved++
					continue
				}
				keptFiles = append(keptFiles, bfID)
			}
			phase.Files = keptFiles
		}
		t.Phases = keptPhases
	}

	s.logger.InfoContext(ctx, "invalid references removed",
		slog.Int("files", result.FilesRemoved),
		slog.Int("memberships", result.MembershipsRemoved),
		slog.Int("pruned_refs", result.PhaseRefsPruned),
	)
	return result, nil
}
