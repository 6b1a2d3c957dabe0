// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
	"github.com/halyardhq/halyard/services/project/engine"
	"github.com/halyardhq/halyard/services/project/hproj"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	validateJSON bool
	doctorFix    bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// validateCmd sweeps the graph for inconsistencies.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the project graph for inconsistencies",
	Long: `Sweep the graph without changing it: file references no group
contains, build phase memberships pointing at deleted files, phase
entries with no object behind them, and targets whose product reference
is missing.

Exits non-zero when anything is found, so the command works as a CI
gate.

Examples:
  halyard validate
  halyard validate --json`,
	Args: cobra.NoArgs,
	Run:  runValidateCommand,
}

// doctorCmd reports everything wrong in one pass, optionally fixing it.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the project, optionally repairing it",
	Long: `Run the consistency sweep, look for orphaned product references
and an interrupted transaction, and report everything in one pass.

With --fix: invalid references are removed, missing product references
are synthesized, orphaned products are deleted, and leftover backup
files from resolved transactions are cleaned up. An interrupted
transaction is reported but never resolved automatically; that decision
stays with 'halyard tx commit' or 'halyard tx rollback'.

Examples:
  halyard doctor
  halyard doctor --fix`,
	Args: cobra.NoArgs,
	Run:  runDoctorCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false,
		"Output as JSON for scripting")
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false,
		"Apply every safe repair")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(doctorCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runValidateCommand prints the consistency report and exits non-zero
// when the graph has problems.
func runValidateCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("validate", false)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	report := pc.svc.Validate(ctx)
	pc.close()

	if validateJSON {
		outputReportJSON(report)
	} else {
		printReport(report)
	}
	if !report.Clean() {
		os.Exit(exitFailure)
	}
}

// runDoctorCommand reports, and with --fix repairs, everything found.
func runDoctorCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	pc, err := openProject("doctor", doctorFix)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	report := pc.svc.Validate(ctx)
	orphanProducts := pc.svc.FindOrphanedProducts()
	tx := pc.svc.ActiveTransaction()
	interrupted := tx != nil && tx.Resumed

	ux.Title("Doctor")
	printReport(report)
	if interrupted {
		ux.Warning(fmt.Sprintf("interrupted transaction found (backup from %s)",
			tx.StartedAt.Format(time.RFC3339)))
		ux.Info("run 'halyard tx commit' to keep the project file, or 'halyard tx rollback' to restore the backup")
	}
	if len(orphanProducts) > 0 {
		ux.Warning(fmt.Sprintf("%d orphaned product reference(s) in the Products group", len(orphanProducts)))
		for _, f := range orphanProducts {
			ux.Status(ux.IconWarning, f.DisplayName(), "no target points at it")
		}
	}

	if !doctorFix {
		pc.close()
		if report.Clean() && len(orphanProducts) == 0 && !interrupted {
			ux.Success("no problems found")
			return
		}
		ux.Info("run 'halyard doctor --fix' to repair what can be repaired")
		os.Exit(exitFailure)
	}

	var cleanup engine.CleanupResult
	var repaired, productsRemoved int
	mErr := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		res, fixErr := svc.RemoveInvalidReferences(ctx)
		if fixErr != nil {
			return fixErr
		}
		cleanup = res

		if _, fixErr = svc.EnsureProductsGroup(ctx); fixErr != nil {
			return fixErr
		}
		n, fixErr := svc.RepairProductReferences(ctx)
		if fixErr != nil {
			return fixErr
		}
		repaired = n

		m, fixErr := svc.RemoveOrphanedProducts(ctx)
		if fixErr != nil {
			return fixErr
		}
		productsRemoved = m
		return nil
	})
	if mErr != nil {
		pc.close()
		ux.Error(mErr.Error())
		os.Exit(exitFailure)
	}

	backupsRemoved, cleanupErr := pc.svc.CleanupOrphanedBackups(ctx)
	if cleanupErr != nil {
		ux.Warning(fmt.Sprintf("backup cleanup failed: %v", cleanupErr))
	}
	noteOpenTransaction(pc)
	pc.close()

	ux.Tally(
		ux.Stat{Label: "invalid files removed", N: cleanup.FilesRemoved},
		ux.Stat{Label: "memberships removed", N: cleanup.MembershipsRemoved},
		ux.Stat{Label: "phase refs pruned", N: cleanup.PhaseRefsPruned},
		ux.Stat{Label: "products repaired", N: repaired},
		ux.Stat{Label: "orphaned products removed", N: productsRemoved},
		ux.Stat{Label: "stray backups removed", N: backupsRemoved},
	)
	ux.Success("repairs applied")
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// printReport renders a consistency report for humans.
func printReport(r *engine.Report) {
	if r.Clean() {
		ux.Success("project graph is consistent")
		return
	}

	if len(r.OrphanedFiles) > 0 {
		ux.Warning(fmt.Sprintf("%d orphaned file reference(s)", len(r.OrphanedFiles)))
		for _, f := range r.OrphanedFiles {
			ux.Status(ux.IconError, f.DisplayName(), "contained in no group")
		}
	}
	for _, d := range r.DanglingMemberships {
		ux.Status(ux.IconError,
			fmt.Sprintf("target %s, %s phase", d.TargetName, d.PhaseKind),
			fmt.Sprintf("membership %s points at missing file %s", d.MembershipID, d.FileID))
	}
	for _, b := range r.BrokenPhaseRefs {
		note := fmt.Sprintf("phase entry %s resolves to nothing", b.RefID)
		if b.PhaseKind == hproj.PhaseUnknown {
			note = fmt.Sprintf("phase reference %s resolves to nothing", b.RefID)
		}
		ux.Status(ux.IconError, "target "+b.TargetName, note)
	}
	for _, name := range r.MissingProducts {
		ux.Status(ux.IconWarning, "target "+name, "product reference missing")
	}

	ux.Tally(
		ux.Stat{Label: "orphaned files", N: len(r.OrphanedFiles)},
		ux.Stat{Label: "dangling memberships", N: len(r.DanglingMemberships)},
		ux.Stat{Label: "broken phase refs", N: len(r.BrokenPhaseRefs)},
		ux.Stat{Label: "missing products", N: len(r.MissingProducts)},
	)
}

// outputReportJSON renders a consistency report for scripts.
func outputReportJSON(r *engine.Report) {
	orphaned := make([]string, 0, len(r.OrphanedFiles))
	for _, f := range r.OrphanedFiles {
		orphaned = append(orphaned, f.DisplayName())
	}
	dangling := make([]map[string]any, 0, len(r.DanglingMemberships))
	for _, d := range r.DanglingMemberships {
		dangling = append(dangling, map[string]any{
			"membership_id": string(d.MembershipID),
			"file_id":       string(d.FileID),
			"target":        d.TargetName,
			"phase":         d.PhaseKind.String(),
		})
	}
	broken := make([]map[string]any, 0, len(r.BrokenPhaseRefs))
	for _, b := range r.BrokenPhaseRefs {
		broken = append(broken, map[string]any{
			"target": b.TargetName,
			"phase":  b.PhaseKind.String(),
			"ref_id": string(b.RefID),
		})
	}

	payload := map[string]any{
		"clean":                r.Clean(),
		"orphaned_files":       orphaned,
		"dangling_memberships": dangling,
		"broken_phase_refs":    broken,
		"missing_products":     append([]string{}, r.MissingProducts...),
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(exitFailure)
	}
}
