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
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// targetsCmd groups target subcommands.
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage targets and their build phase memberships",
}

// targetsListCmd prints every target.
var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every target",
	Args:  cobra.NoArgs,
	Run:   runTargetsListCommand,
}

// targetsAddFileCmd puts an existing file into a target's build phase.
var targetsAddFileCmd = &cobra.Command{
	Use:   "add-file FILE TARGET",
	Short: "Add an existing file reference to a target",
	Long: `Add an existing file reference to TARGET's build, picking the
phase by file type: sources for compilable files, frameworks for
libraries, resources for everything else. Adding a file that is already
in the phase is a no-op.

Examples:
  halyard targets add-file User.swift App
  halyard targets add-file Analytics.framework AppTests`,
	Args: cobra.ExactArgs(2),
	Run:  runTargetsAddFileCommand,
}

// targetsRemoveFileCmd drops a file's memberships from one target.
var targetsRemoveFileCmd = &cobra.Command{
	Use:   "remove-file FILE TARGET",
	Short: "Remove a file reference from a target's build",
	Long: `Remove every membership of FILE from TARGET's build phases. The
file reference itself stays in its group.

Examples:
  halyard targets remove-file User.swift App`,
	Args: cobra.ExactArgs(2),
	Run:  runTargetsRemoveFileCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsAddFileCmd)
	targetsCmd.AddCommand(targetsRemoveFileCmd)
	rootCmd.AddCommand(targetsCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runTargetsListCommand prints name, product type, product reference,
// and membership count per target.
func runTargetsListCommand(cmd *cobra.Command, args []string) {
	pc, err := openProject("targets-list", false)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	project := pc.svc.Project()
	targets := project.Targets()

	type row struct {
		name    string
		ptype   string
		product string
		files   int
	}
	rows := make([]row, 0, len(targets))
	for _, t := range targets {
		files := 0
		for _, pid := range t.Phases {
			if phase := project.GetBuildPhase(pid); phase != nil {
				files += len(phase.Files)
			}
		}
		product := "-"
		if t.ProductID != "" {
			if ref := project.GetFileReference(t.ProductID); ref != nil {
				product = ref.DisplayName()
			} else {
				product = "(missing)"
			}
		}
		rows = append(rows, row{t.Name, string(t.ProductType), product, files})
	}
	pc.close()

	if len(rows) == 0 {
		ux.Info("no targets")
		return
	}

	ux.Title("Targets")
	for _, r := range rows {
		if ux.CurrentMode() == ux.ModeMachine {
			fmt.Printf("%s\t%s\t%s\t%d\n", r.name, r.ptype, r.product, r.files)
			continue
		}
		fmt.Printf("  %-24s  %-16s  %-28s  %d file(s)\n", r.name, r.ptype, r.product, r.files)
	}
	ux.Muted(fmt.Sprintf("%d target(s)", len(rows)))
}

// runTargetsAddFileCommand wires one file into one target.
func runTargetsAddFileCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	query, target := args[0], args[1]

	pc, err := openProject("targets-add-file", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		return svc.AddFileToTarget(ctx, query, target)
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()

	ux.Success(fmt.Sprintf("added %s to target %s", query, target))
}

// runTargetsRemoveFileCommand drops one file's memberships from a target.
func runTargetsRemoveFileCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	query, target := args[0], args[1]

	pc, err := openProject("targets-remove-file", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	removed := 0
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		n, rmErr := svc.RemoveFileFromTarget(ctx, query, target)
		if rmErr != nil {
			return rmErr
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

	if removed == 0 {
		ux.Info(fmt.Sprintf("%s had no memberships in target %s", query, target))
		return
	}
	ux.Success(fmt.Sprintf("removed %d membership(s) of %s from target %s", removed, query, target))
}
