// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
	"github.com/halyardhq/halyard/services/project/journal"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	historyLimit int
	historyPrune int
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// historyCmd shows the audit journal.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded mutations",
	Long: `Show the audit journal: every mutating operation recorded against
the project, newest first. The journal lives next to the project file
and survives rollbacks, so it also shows what a rolled-back transaction
attempted.

Examples:
  halyard history
  halyard history -n 50
  halyard history -n 0          # everything
  halyard history --prune 100   # keep only the newest 100 records`,
	Args: cobra.NoArgs,
	Run:  runHistoryCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"Number of records to show (0 for all)")
	historyCmd.Flags().IntVar(&historyPrune, "prune", -1,
		"Delete all but the newest N records")

	rootCmd.AddCommand(historyCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runHistoryCommand lists or prunes journal records. It opens only the
// journal, never the project file, so it works while an edit holds the
// project lock.
func runHistoryCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	if cliConfig.Journal.Disabled {
		ux.Error(fmt.Sprintf("the journal is disabled in %s", ConfigFileName))
		os.Exit(exitFailure)
	}

	projectPath, err := resolveProjectPath(".")
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	store, err := journal.Open(journal.Config{
		Path: cliConfig.JournalDir(projectPath),
	})
	if err != nil {
		ux.Error(fmt.Sprintf("opening journal: %v", err))
		os.Exit(exitFailure)
	}
	defer store.Close()

	if historyPrune >= 0 {
		removed, pruneErr := store.Prune(ctx, historyPrune)
		if pruneErr != nil {
			ux.Error(pruneErr.Error())
			os.Exit(exitFailure)
		}
		ux.Success(fmt.Sprintf("%d record(s) pruned, newest %d kept", removed, historyPrune))
		return
	}

	records, err := store.Recent(ctx, historyLimit)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	if len(records) == 0 {
		ux.Info("no history recorded")
		return
	}

	ux.Title("History")
	for _, r := range records {
		icon := ux.IconSuccess
		if r.Outcome != "ok" {
			icon = ux.IconError
		}
		ux.Status(icon, fmt.Sprintf("#%d %s", r.Seq, r.Op), describeRecord(r))
	}
	ux.Muted(fmt.Sprintf("%d record(s)", len(records)))
	if stats := store.Stats(); stats.Corrupted > 0 {
		ux.Warning(fmt.Sprintf("%d corrupted record(s) skipped", stats.Corrupted))
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// describeRecord builds the one-line summary shown per journal record.
func describeRecord(r journal.Record) string {
	parts := []string{r.Time.Format("2006-01-02 15:04:05")}
	if len(r.Args) > 0 {
		parts = append(parts, strings.Join(r.Args, " "))
	}
	if r.TxID != "" {
		id := r.TxID
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "tx "+id)
	}
	if r.Error != "" {
		parts = append(parts, "failed: "+r.Error)
	}
	return strings.Join(parts, "  ")
}
