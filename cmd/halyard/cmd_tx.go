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
	"time"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// txCmd groups explicit transaction control.
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Control multi-command transactions",
	Long: `Every mutating command runs inside its own transaction by default:
a backup of the project file is taken first, the change is saved, and
the backup is released.

'tx begin' opens a transaction that outlives the command instead. Later
commands save into it without releasing the backup, so a whole batch of
edits can be undone at once with 'tx rollback' or finalized with
'tx commit'. The open transaction is carried by the backup file next to
the project, which is also how an edit interrupted by a crash is picked
up again.`,
}

// txBeginCmd opens a transaction that spans commands.
var txBeginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Open a transaction spanning several commands",
	Long: `Back up the project file and leave the transaction open. Until it
is committed or rolled back, every mutating command saves into it and
'tx rollback' can restore the state from before this command.

Examples:
  halyard tx begin
  halyard add Sources/A.swift Sources/B.swift
  halyard move Sources/A.swift Sources/Core/A.swift
  halyard tx commit`,
	Args: cobra.NoArgs,
	Run:  runTxBeginCommand,
}

// txCommitCmd finalizes the open transaction.
var txCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Finalize the open transaction",
	Long: `Save the project file and release the transaction's backup.

Examples:
  halyard tx commit`,
	Args: cobra.NoArgs,
	Run:  runTxCommitCommand,
}

// txRollbackCmd undoes the open transaction.
var txRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the project from the transaction's backup",
	Long: `Copy the backup taken at 'tx begin' back over the project file,
undoing every change saved since, and release the backup.

Examples:
  halyard tx rollback`,
	Args: cobra.NoArgs,
	Run:  runTxRollbackCommand,
}

// txStatusCmd reports the open transaction, if any.
var txStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the open transaction",
	Long: `Report whether a transaction is open for the project and where its
backup lives.

Examples:
  halyard tx status`,
	Args: cobra.NoArgs,
	Run:  runTxStatusCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	txCmd.AddCommand(txBeginCmd)
	txCmd.AddCommand(txCommitCmd)
	txCmd.AddCommand(txRollbackCmd)
	txCmd.AddCommand(txStatusCmd)
	rootCmd.AddCommand(txCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runTxBeginCommand opens a transaction and leaves it open on exit.
func runTxBeginCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("tx-begin", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	if open := pc.svc.ActiveTransaction(); open != nil {
		pc.close()
		ux.Error(fmt.Sprintf("transaction %s is already open (since %s)",
			open.ID, open.StartedAt.Format(time.RFC3339)))
		ux.Info("finish it with 'halyard tx commit' or 'halyard tx rollback' first")
		os.Exit(exitFailure)
	}

	tx, err := pc.svc.BeginTransaction(ctx)
	if err != nil {
		pc.close()
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	// Closing leaves the backup in place, which is what keeps the
	// transaction open for the next command.
	pc.close()

	ux.Success(fmt.Sprintf("transaction %s opened", tx.ID))
	ux.Item(1, "backup "+tx.BackupPath)
	ux.Info("mutating commands now save into it; finish with 'halyard tx commit' or 'halyard tx rollback'")
}

// runTxCommitCommand saves and releases the open transaction.
func runTxCommitCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("tx-commit", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	if pc.svc.ActiveTransaction() == nil {
		pc.close()
		ux.Error("no open transaction")
		os.Exit(exitFailure)
	}

	res, err := pc.svc.CommitTransaction(ctx)
	if err != nil {
		pc.close()
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	pc.close()

	ux.Success(fmt.Sprintf("transaction %s committed", res.TxID))
	if !res.BackupReleased {
		ux.Warning("backup file could not be removed; 'halyard doctor --fix' will clean it up")
	}
}

// runTxRollbackCommand restores the backup over the project file.
func runTxRollbackCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("tx-rollback", true)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	open := pc.svc.ActiveTransaction()
	if open == nil {
		pc.close()
		ux.Error("no open transaction")
		os.Exit(exitFailure)
	}

	res, err := pc.svc.RollbackTransaction(ctx)
	if err != nil {
		pc.close()
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	pc.close()

	ux.Success(fmt.Sprintf("transaction %s rolled back", res.TxID))
	ux.Item(1, fmt.Sprintf("project restored to its state from %s",
		open.StartedAt.Format(time.RFC3339)))
}

// runTxStatusCommand reports the open transaction without touching it.
func runTxStatusCommand(cmd *cobra.Command, args []string) {
	pc, err := openProject("tx-status", false)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	open := pc.svc.ActiveTransaction()
	pc.close()

	if open == nil {
		ux.Info("no open transaction")
		return
	}

	ux.Title("Open transaction")
	ux.Status(ux.IconPending, open.ID, "since "+open.StartedAt.Format(time.RFC3339))
	ux.Item(1, "backup "+open.BackupPath)
	if open.Resumed {
		ux.Item(1, "picked up from a backup left by an earlier run")
	}
	ux.Info("finish with 'halyard tx commit' or 'halyard tx rollback'")
}
