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
	"fmt"
	"log/slog"
	"time"

	"github.com/halyardhq/halyard/services/project/hproj"
)

// ProductsGroupName is the display name of the synthesized products
// group.
const ProductsGroupName = "Products"

// EnsureProductsGroup returns the project's products group, creating and
// linking one under the root when the project has none. Creation is
// subject to the same sibling collision rules as any other group.
func (s *Service) EnsureProductsGroup(ctx context.Context) (*hproj.Group, error) {
	if g := s.project.ProductsGroup(); g != nil {
		return g, nil
	}
	root := s.project.RootGroup()
	if root == nil {
		return nil, fmt.Errorf("%w: project has no root group", ErrOperationFailed)
	}
	if err := s.checkGroupCollision(root, "", ProductsGroupName); err != nil {
		return nil, err
	}

	g := &hproj.Group{Name: ProductsGroupName}
	if _, err := s.project.AddObject(g); err != nil {
		return nil, fmt.Errorf("%w: registering products group: %v", ErrOperationFailed, err)
	}
	root.Children = append(root.Children, g.ID())
	if err := s.project.SetProductsID(g.ID()); err != nil {
		return nil, fmt.Errorf("%w: linking products group: %v", ErrOperationFailed, err)
	}
	s.logger.InfoContext(ctx, "products group created")
	return g, nil
}

// AddProductReference links a target to its built product's file
// reference.
//
// # Description
//
// The product file name is derived from the target's name and product
// type. A target whose type builds no product file is refused. When the
// products group already lists a reference with the derived name, that
// reference is adopted instead of duplicated; when the target already
// points at a live reference, the call is an idempotent no-op.
//
// # Outputs
//
//   - *hproj.FileReference: The linked product reference.
//   - error: ErrTargetNotFound, ErrOperationFailed.
func (s *Service) AddProductReference(ctx context.Context, targetName string) (f *hproj.FileReference, err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "add-product", []string{targetName}, "", start, err) }()

	t, err := s.resolveTarget(targetName)
	if err != nil {
		return nil, err
	}
	if t.ProductID != "" {
		if existing := s.project.GetFileReference(t.ProductID); existing != nil {
			s.logger.WarnContext(ctx, "target already has a product reference, skipping",
				slog.String("target", t.Name),
				slog.String("product", existing.DisplayName()),
			)
			return existing, nil
		}
		// Dangling product link; fall through and relink.
	}

	name, ok := t.ProductType.ProductFileName(t.Name)
	if !ok {
		return nil, fmt.Errorf("%w: target %q (%s) builds no product file", ErrOperationFailed, t.Name, t.ProductType)
	}
	products, err := s.EnsureProductsGroup(ctx)
	if err != nil {
		return nil, err
	}

	if existing := s.childFileByPath(products, name); existing != nil {
		t.ProductID = existing.ID()
		s.logger.InfoContext(ctx, "product reference adopted",
			slog.String("target", t.Name),
			slog.String("product", name),
		)
		return existing, nil
	}

	f = &hproj.FileReference{Path: name, FileType: t.ProductType.ReferenceType()}
	if _, addErr := s.project.AddObject(f); addErr != nil {
		return nil, fmt.Errorf("%w: registering product reference %q: %v", ErrOperationFailed, name, addErr)
	}
	products.Children = append(products.Children, f.ID())
	t.ProductID = f.ID()

	s.logger.InfoContext(ctx, "product reference added",
		slog.String("target", t.Name),
		slog.String("product", name),
	)
	return f, nil
}

// RepairProductReferences links a product reference for every target that
// lacks a live one. Targets whose product type builds no file are
// skipped. Returns how many targets were repaired; individual failures
// are joined and do not stop the sweep.
func (s *Service) RepairProductReferences(ctx context.Context) (repaired int, err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "repair-products", nil, "", start, err) }()

	var errs []error
	for _, t := range s.project.Targets() {
		if _, builds := t.ProductType.ProductFileName(t.Name); !builds {
			continue
		}
		if t.ProductID != "" && s.project.GetFileReference(t.ProductID) != nil {
			continue
		}
		if _, addErr := s.AddProductReference(ctx, t.Name); addErr != nil {
			errs = append(errs, fmt.Errorf("target %q: %w", t.Name, addErr))
			continue
		}
		repaired++
	}
	if len(errs) > 0 {
		return repaired, errors.Join(errs...)
	}
	if repaired > 0 {
		s.logger.InfoContext(ctx, "product references repaired", slog.Int("count", repaired))
	}
	return repaired, nil
}

// FindOrphanedProducts returns every file reference in the products group
// that no target's product link points at. Matching is by identity, so a
// same-named reference created by hand still counts as orphaned once the
// target points elsewhere.
func (s *Service) FindOrphanedProducts() []*hproj.FileReference {
	products := s.project.ProductsGroup()
	if products == nil {
		return nil
	}

	linked := make(map[hproj.NodeID]struct{})
	for _, t := range s.project.Targets() {
		if t.ProductID != "" {
			linked[t.ProductID] = struct{}{}
		}
	}

	var orphans []*hproj.FileReference
	for _, cid := range products.Children {
		f := s.project.GetFileReference(cid)
		if f == nil {
			continue
		}
		if _, ok := linked[f.ID()]; !ok {
			orphans = append(orphans, f)
		}
	}
	return orphans
}

// RemoveOrphanedProducts deletes every orphaned product reference, along
// with any build phase memberships a malformed graph gave them. Returns
// how many references were removed.
func (s *Service) RemoveOrphanedProducts(ctx context.Context) (removed int, err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "remove-orphaned-products", nil, "", start, err) }()

	orphans := s.FindOrphanedProducts()
	if len(orphans) == 0 {
		return 0, nil
	}

	victims := make(map[hproj.NodeID]struct{}, len(orphans))
	for _, f := range orphans {
		victims[f.ID()] = struct{}{}
	}
	memberships := s.removeMembershipsOf(victims)

	products := s.project.ProductsGroup()
	for _, f := range orphans {
		products.RemoveChild(f.ID())
		s.project.DeleteObject(f.ID())
		removed++
	}

	s.logger.InfoContext(ctx, "orphaned product references removed",
		slog.Int("count", removed),
		slog.Int("memberships", memberships),
	)
	return removed, nil
}
