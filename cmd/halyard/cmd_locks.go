// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
	"github.com/halyardhq/halyard/services/project/lock"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// locksCmd groups advisory lock inspection.
var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect advisory locks on the project",
	Long: `Mutating commands take an advisory lock on the project file for
their lifetime. These commands inspect the lock directory and clear
entries whose holders are gone.`,
}

// locksListCmd shows lock directory entries.
var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lock entries and their holders",
	Long: `List every entry in the lock directory with its holding process,
session and reason. Entries whose holder has exited or whose lease has
expired are marked stale.

Examples:
  halyard locks list`,
	Args: cobra.NoArgs,
	Run:  runLocksListCommand,
}

// locksCleanupCmd removes stale lock entries.
var locksCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale lock entries",
	Long: `Remove lock entries whose holding process has exited or whose
lease has expired. Live locks are left alone.

Examples:
  halyard locks cleanup`,
	Args: cobra.NoArgs,
	Run:  runLocksCleanupCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksCleanupCmd)
	rootCmd.AddCommand(locksCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runLocksListCommand reads the lock directory without taking any lock
// itself, so it can inspect a project another process is editing.
func runLocksListCommand(cmd *cobra.Command, args []string) {
	projectPath, err := resolveProjectPath(".")
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	lockDir := cliConfig.LockDir(projectPath)

	entries, err := os.ReadDir(lockDir)
	if err != nil {
		if os.IsNotExist(err) {
			ux.Info("no locks held")
			return
		}
		ux.Error(fmt.Sprintf("reading %s: %v", lockDir, err))
		os.Exit(exitFailure)
	}

	var held, stale int
	ux.Title("Locks")
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		path := filepath.Join(lockDir, entry.Name())
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			ux.Warning(fmt.Sprintf("unreadable lock file %s: %v", entry.Name(), readErr))
			continue
		}
		var info lock.Info
		if jsonErr := json.Unmarshal(data, &info); jsonErr != nil {
			ux.Warning(fmt.Sprintf("malformed lock file %s: %v", entry.Name(), jsonErr))
			continue
		}

		note := fmt.Sprintf("pid %d, session %s, since %s",
			info.PID, info.SessionID, info.LockedAt.Format(time.RFC3339))
		if info.Reason != "" {
			note += ", reason " + info.Reason
		}
		if info.IsExpired() || !lock.IsProcessAlive(info.PID) {
			stale++
			ux.Status(ux.IconWarning, filepath.Base(info.FilePath), note+" (stale)")
			continue
		}
		held++
		ux.Status(ux.IconPending, filepath.Base(info.FilePath), note)
	}

	if held == 0 && stale == 0 {
		ux.Info("no locks held")
		return
	}
	ux.Tally(
		ux.Stat{Label: "held", N: held},
		ux.Stat{Label: "stale", N: stale},
	)
	if stale > 0 {
		ux.Info("run 'halyard locks cleanup' to clear the stale entries")
	}
}

// runLocksCleanupCommand clears lock entries whose holders are gone.
func runLocksCleanupCommand(cmd *cobra.Command, args []string) {
	projectPath, err := resolveProjectPath(".")
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	manager, err := lock.NewManager(lock.Config{
		LockDir: cliConfig.LockDir(projectPath),
		TTL:     cliConfig.LockTTL(),
	})
	if err != nil {
		ux.Error(fmt.Sprintf("opening lock directory: %v", err))
		os.Exit(exitFailure)
	}
	defer manager.Close()

	removed, err := manager.CleanupStale()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	if removed == 0 {
		ux.Info("no stale locks found")
		return
	}
	ux.Success(fmt.Sprintf("%d stale lock(s) removed", removed))
}
