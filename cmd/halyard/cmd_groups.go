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

var groupsRemoveForce bool

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// groupsCmd groups the hierarchy subcommands.
var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Manage the group hierarchy",
}

// groupsListCmd prints the hierarchy.
var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every group path",
	Args:  cobra.NoArgs,
	Run:   runGroupsListCommand,
}

// groupsAddCmd creates group paths, including missing intermediate levels.
var groupsAddCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Create group paths",
	Long: `Create one or more hierarchical group paths, adding every level
that does not exist yet. Existing levels are reused; a level whose name
would collide with a sibling group or file is refused and nothing at or
below it is created.

Examples:
  halyard groups add App/Models
  halyard groups add App/Views App/ViewModels`,
	Args: cobra.MinimumNArgs(1),
	Run:  runGroupsAddCommand,
}

// groupsRemoveCmd deletes a group and its whole subtree.
var groupsRemoveCmd = &cobra.Command{
	Use:   "remove PATH",
	Short: "Remove a group and everything under it",
	Long: `Remove a group, its subgroups, its files, and every build phase
membership that pointed into the subtree. The root group and the
Products group are refused.

Examples:
  halyard groups remove App/Legacy
  halyard groups remove Scratch --force`,
	Args: cobra.ExactArgs(1),
	Run:  runGroupsRemoveCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	groupsRemoveCmd.Flags().BoolVar(&groupsRemoveForce, "force", false,
		"Remove without asking")

	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsAddCmd)
	groupsCmd.AddCommand(groupsRemoveCmd)
	rootCmd.AddCommand(groupsCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runGroupsListCommand prints the hierarchy as an indented tree, or as
// one full path per line in machine mode.
func runGroupsListCommand(cmd *cobra.Command, args []string) {
	pc, err := openProject("groups-list", false)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	paths := pc.svc.GroupPaths()
	pc.close()

	if len(paths) == 0 {
		ux.Info("no groups")
		return
	}

	ux.Title("Groups")
	for _, p := range paths {
		if ux.CurrentMode() == ux.ModeMachine {
			fmt.Println(p)
			continue
		}
		depth := strings.Count(p, "/")
		name := p
		if idx := strings.LastIndex(p, "/"); idx >= 0 {
			name = p[idx+1:]
		}
		ux.Item(depth, name)
	}
	ux.Muted(fmt.Sprintf("%d group(s)", len(paths)))
}

// runGroupsAddCommand ensures each requested path exists.
func runGroupsAddCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("groups-add", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	var ensured []*hproj.Group
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		groups, createErr := svc.CreateGroups(ctx, args...)
		if createErr != nil {
			return createErr
		}
		ensured = groups
		return nil
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()

	for i, g := range ensured {
		ux.Status(ux.IconSuccess, args[i], g.DisplayName())
	}
	ux.Success(fmt.Sprintf("%d group path(s) ensured", len(ensured)))
}

// runGroupsRemoveCommand removes one subtree after confirmation.
func runGroupsRemoveCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	path := args[0]

	if !groupsRemoveForce {
		if !ux.IsInteractive() {
			ux.Error("refusing to remove a group non-interactively (pass --force)")
			os.Exit(exitBadArgs)
		}
		if !confirmAction(fmt.Sprintf("Remove group %q and everything under it?", path)) {
			ux.Info("aborted, nothing removed")
			return
		}
	}

	pc, err := openProject("groups-remove", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		return svc.RemoveGroup(ctx, path)
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}
	noteOpenTransaction(pc)
	pc.close()

	ux.Success(fmt.Sprintf("removed group %s", path))
}
