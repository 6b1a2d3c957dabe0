// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
	"github.com/halyardhq/halyard/services/project/engine"
	"github.com/halyardhq/halyard/services/project/hproj"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var productsOrphansRemove bool

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// productsCmd groups product reference maintenance.
var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Maintain the Products group",
	Long: `Maintain the Products group: the container for the artifacts
targets build. Targets normally gain their product reference when they
are created; these commands handle projects where that bookkeeping went
missing.`,
}

// productsRepairCmd synthesizes missing product references.
var productsRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Synthesize missing product references",
	Long: `Ensure the Products group exists, then give every target that
builds an artifact a product reference, adopting an existing loose
reference when one matches the expected artifact name.

Examples:
  halyard products repair`,
	Args: cobra.NoArgs,
	Run:  runProductsRepairCommand,
}

// productsOrphansCmd lists, and optionally removes, orphaned products.
var productsOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List product references no target points at",
	Long: `List product references sitting in the Products group that no
target claims. With --remove they are deleted.

Examples:
  halyard products orphans
  halyard products orphans --remove`,
	Args: cobra.NoArgs,
	Run:  runProductsOrphansCommand,
}

// productsAddCmd adds a product reference for one target.
var productsAddCmd = &cobra.Command{
	Use:   "add TARGET",
	Short: "Add a product reference for a target",
	Long: `Add a product reference for the named target, creating the
Products group first when necessary. The reference is named after the
target and its product type, so an application App becomes App.app and
a command line tool gets the bare executable name.

Examples:
  halyard products add App`,
	Args: cobra.ExactArgs(1),
	Run:  runProductsAddCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	productsOrphansCmd.Flags().BoolVar(&productsOrphansRemove, "remove", false,
		"Delete the orphaned references")

	productsCmd.AddCommand(productsRepairCmd)
	productsCmd.AddCommand(productsOrphansCmd)
	productsCmd.AddCommand(productsAddCmd)
	rootCmd.AddCommand(productsCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runProductsRepairCommand rebuilds product references for all targets.
func runProductsRepairCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("products-repair", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	var repaired int
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		if _, repairErr := svc.EnsureProductsGroup(ctx); repairErr != nil {
			return repairErr
		}
		n, repairErr := svc.RepairProductReferences(ctx)
		if repairErr != nil {
			return repairErr
		}
		repaired = n
		return nil
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()

	if repaired == 0 {
		ux.Info("every target already has its product reference")
		return
	}
	ux.Success(fmt.Sprintf("%d product reference(s) repaired", repaired))
}

// runProductsOrphansCommand lists orphaned products, removing them on request.
func runProductsOrphansCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("products-orphans", productsOrphansRemove)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	orphans := pc.svc.FindOrphanedProducts()
	if len(orphans) == 0 {
		pc.close()
		ux.Info("no orphaned product references")
		return
	}

	ux.Title("Orphaned products")
	for _, f := range orphans {
		ux.Status(ux.IconWarning, f.DisplayName(), "no target points at it")
	}

	if !productsOrphansRemove {
		pc.close()
		ux.Muted(fmt.Sprintf("%d orphaned product reference(s); pass --remove to delete them", len(orphans)))
		return
	}

	var removed int
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		n, removeErr := svc.RemoveOrphanedProducts(ctx)
		if removeErr != nil {
			return removeErr
		}
		removed = n
		return nil
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()
	ux.Success(fmt.Sprintf("%d orphaned product reference(s) removed", removed))
}

// runProductsAddCommand adds the product reference for one target.
func runProductsAddCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	targetName := args[0]
	pc, err := openProject("products-add", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	var ref *hproj.FileReference
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		if _, addErr := svc.EnsureProductsGroup(ctx); addErr != nil {
			return addErr
		}
		r, addErr := svc.AddProductReference(ctx, targetName)
		if addErr != nil {
			return addErr
		}
		ref = r
		return nil
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()
	ux.Success(fmt.Sprintf("product %s added for target %s", ref.DisplayName(), targetName))
}
