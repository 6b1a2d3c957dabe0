// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
	"github.com/halyardhq/halyard/services/project/engine"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var watchDebounce time.Duration

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// watchCmd follows external changes to the project file.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow external changes to the project file",
	Long: `Reload the project whenever another process writes it and print a
fresh consistency report for each reload. Bursts of writes are batched
behind a debounce window. Runs until interrupted.

The command takes no lock on the project; it exists to observe the
processes that do.

Examples:
  halyard watch
  halyard watch --debounce 1s`,
	Args: cobra.NoArgs,
	Run:  runWatchCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0,
		"Batch window for change events (default 250ms)")

	rootCmd.AddCommand(watchCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runWatchCommand blocks on the watcher until SIGINT or SIGTERM.
func runWatchCommand(cmd *cobra.Command, args []string) {
	pc, err := openProject("watch", false)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}

	var opts *engine.WatcherOptions
	debounce := cliConfig.WatchDebounce()
	if watchDebounce > 0 {
		debounce = watchDebounce
	}
	if debounce > 0 {
		o := engine.DefaultWatcherOptions()
		o.DebounceWindow = debounce
		opts = &o
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ux.Title("Watching " + filepath.Base(pc.path))
	ux.Muted("press Ctrl-C to stop")

	err = pc.svc.Watch(ctx, opts, func(r *engine.Report) {
		stamp := time.Now().Format("15:04:05")
		if r.Clean() {
			ux.Status(ux.IconSuccess, stamp, "reloaded, graph consistent")
			return
		}
		ux.Status(ux.IconWarning, stamp, "reloaded with findings: "+summarizeReport(r))
	})
	pc.close()

	if err != nil && !errors.Is(err, context.Canceled) {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	ux.Info("watch stopped")
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// summarizeReport condenses a consistency report to one line.
func summarizeReport(r *engine.Report) string {
	var parts []string
	if n := len(r.OrphanedFiles); n > 0 {
		parts = append(parts, fmt.Sprintf("%d orphaned file(s)", n))
	}
	if n := len(r.DanglingMemberships); n > 0 {
		parts = append(parts, fmt.Sprintf("%d dangling membership(s)", n))
	}
	if n := len(r.BrokenPhaseRefs); n > 0 {
		parts = append(parts, fmt.Sprintf("%d broken phase ref(s)", n))
	}
	if n := len(r.MissingProducts); n > 0 {
		parts = append(parts, fmt.Sprintf("%d missing product(s)", n))
	}
	return strings.Join(parts, ", ")
}
