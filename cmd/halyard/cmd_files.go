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
	"strings"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
	"github.com/halyardhq/halyard/services/project/engine"
	"github.com/halyardhq/halyard/services/project/hproj"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	addGroup   string
	addTargets []string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// addCmd adds file references, optionally into target build phases.
var addCmd = &cobra.Command{
	Use:   "add FILE...",
	Short: "Add file references to the project",
	Long: `Add one or more file references.

Paths are stored relative to the destination group's on-disk directory
when possible. Each file is classified by extension and, when --targets
is given, wired into the matching build phase: sources for compilable
files, frameworks for libraries, resources for everything else.

Re-adding a path that already exists in the group returns the existing
reference instead of duplicating it.

Examples:
  halyard add Sources/App/main.swift
  halyard add User.swift Session.swift --group App/Models --targets App
  halyard add Vendored/Analytics.framework --targets App`,
	Args: cobra.MinimumNArgs(1),
	Run:  runAddCommand,
}

// moveCmd updates the on-disk path behind a file reference.
var moveCmd = &cobra.Command{
	Use:   "move FILE NEW_PATH",
	Short: "Point a file reference at a new on-disk path",
	Long: `Point an existing file reference at a new on-disk location.

FILE can be a group-qualified path ("App/Models/User.swift"), a display
name, or a bare file name. Group membership and build phase memberships
are unchanged; only the stored path moves.

Examples:
  halyard move User.swift Sources/Models/User.swift
  halyard move "App/Legacy/Parser.m" Compat/Parser.m`,
	Args: cobra.ExactArgs(2),
	Run:  runMoveCommand,
}

// moveToGroupCmd relocates a file reference to another group.
var moveToGroupCmd = &cobra.Command{
	Use:   "move-to-group FILE GROUP",
	Short: "Move a file reference into another group",
	Long: `Move a file reference from its current group into GROUP,
recomputing the stored path against the destination's directory. Build
phase memberships follow the file.

Examples:
  halyard move-to-group User.swift App/Models
  halyard move-to-group "App/Legacy/Parser.m" Compat`,
	Args: cobra.ExactArgs(2),
	Run:  runMoveToGroupCommand,
}

// removeFileCmd deletes a file reference and its memberships.
var removeFileCmd = &cobra.Command{
	Use:   "remove FILE",
	Short: "Remove a file reference from the project",
	Long: `Remove a file reference, its group membership, and every build
phase membership that points at it. The file on disk is not touched.

Examples:
  halyard remove User.swift
  halyard remove "App/Models/User.swift"`,
	Args: cobra.ExactArgs(1),
	Run:  runRemoveFileCommand,
}

// filesCmd groups file inspection subcommands.
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect file references",
}

// filesListCmd lists every file reference reachable from the root.
var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every file reference",
	Args:  cobra.NoArgs,
	Run:   runFilesListCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	addCmd.Flags().StringVarP(&addGroup, "group", "g", "",
		"Destination group path (default: the root group)")
	addCmd.Flags().StringSliceVarP(&addTargets, "targets", "t", nil,
		"Targets whose build phases receive the files")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(moveToGroupCmd)
	rootCmd.AddCommand(removeFileCmd)

	filesCmd.AddCommand(filesListCmd)
	rootCmd.AddCommand(filesCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runAddCommand adds one or many files in a single transaction.
func runAddCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("add", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	var added []*hproj.FileReference
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		if len(args) == 1 {
			f, addErr := svc.AddFile(ctx, args[0], addGroup, addTargets)
			if addErr != nil {
				return addErr
			}
			added = []*hproj.FileReference{f}
			return nil
		}
		refs, addErr := svc.AddFiles(ctx, args, addGroup, addTargets)
		if addErr != nil {
			return addErr
		}
		added = refs
		return nil
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()

	for _, f := range added {
		ux.Status(ux.IconSuccess, f.DisplayName(), f.FileType)
	}
	if len(addTargets) > 0 {
		ux.Info(fmt.Sprintf("wired into targets: %s", strings.Join(addTargets, ", ")))
	}
	ux.Success(fmt.Sprintf("%d file reference(s) added", len(added)))
}

// runMoveCommand repoints one file reference.
func runMoveCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	query, newPath := args[0], args[1]

	pc, err := openProject("move", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		return svc.MoveFile(ctx, query, newPath)
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()

	ux.Success(fmt.Sprintf("moved %s to %s", query, newPath))
}

// runMoveToGroupCommand relocates one file reference between groups.
func runMoveToGroupCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	query, destGroup := args[0], args[1]

	pc, err := openProject("move-to-group", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		return svc.MoveFileToGroup(ctx, query, destGroup)
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()

	ux.Success(fmt.Sprintf("moved %s into group %s", query, destGroup))
}

// runRemoveFileCommand deletes one file reference.
func runRemoveFileCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	query := args[0]

	pc, err := openProject("remove", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		return svc.RemoveFile(ctx, query)
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()

	ux.Success(fmt.Sprintf("removed %s", query))
}

// runFilesListCommand prints every reachable file reference.
func runFilesListCommand(cmd *cobra.Command, args []string) {
	pc, err := openProject("files-list", false)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	infos := pc.svc.ListFiles()
	pc.close()

	if len(infos) == 0 {
		ux.Info("no file references")
		return
	}

	ux.Title("Files")
	for _, fi := range infos {
		where := fi.GroupPath
		if where == "" {
			where = "."
		}
		if ux.CurrentMode() == ux.ModeMachine {
			fmt.Printf("%s\t%s\t%s\n", where, fi.Name, fi.FileType)
		} else {
			fmt.Printf("  %-28s  %-32s  %s\n", where, fi.Name, fi.FileType)
		}
	}
	ux.Muted(fmt.Sprintf("%d file reference(s)", len(infos)))
}
