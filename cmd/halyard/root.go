// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
	"github.com/halyardhq/halyard/services/project/engine"
	"github.com/halyardhq/halyard/services/project/journal"
	"github.com/halyardhq/halyard/services/project/lock"
)

// Exit codes shared by every command.
const (
	exitSuccess = 0
	exitFailure = 1
	exitBadArgs = 2
)

// defaultTimeout bounds a single command invocation. Watch mode runs
// unbounded under signal control instead.
const defaultTimeout = 30 * time.Second

var (
	flagProject   string
	flagLogLevel  string
	flagOutput    string
	flagNoJournal bool

	rootCmd = &cobra.Command{
		Use:   "halyard",
		Short: "Safely rewrite Xcode-style project files",
		Long: `Halyard edits the group hierarchy, file references, targets, and
build phase memberships of an Xcode-style project file.

Every mutation runs under a backup-protected transaction and is recorded
in a local journal. Lookups of groups, targets, and files are cached, and
name collisions are refused before anything changes.

Project selection:
  --project FILE          explicit path
  .halyard.yaml project:  per-directory default
  otherwise               the single *.hproj file in the current directory`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "",
		"Project file to operate on")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "",
		"Output mode: rich, plain, machine")
	rootCmd.PersistentFlags().BoolVar(&flagNoJournal, "no-journal", false,
		"Skip journal recording for this invocation")
}

// commandContext returns the context every one-shot command runs under.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultTimeout)
}

// resolveProjectPath picks the project file: the --project flag, then the
// config file, then a lone *.hproj in dir.
func resolveProjectPath(dir string) (string, error) {
	candidate := flagProject
	if candidate == "" {
		candidate = cliConfig.Project
	}
	if candidate != "" {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("project file %s: %w", candidate, err)
		}
		return abs, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.hproj"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no *.hproj file in %s (pass --project or set project in %s)",
			dir, ConfigFileName)
	case 1:
		return filepath.Abs(matches[0])
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = filepath.Base(m)
		}
		return "", fmt.Errorf("multiple project files in %s (%s); pass --project",
			dir, strings.Join(names, ", "))
	}
}

// projectContext bundles what one invocation holds open: the engine, the
// journal recording its operations, and the cross-process lock.
type projectContext struct {
	path  string
	svc   *engine.Service
	store *journal.Store // nil when journaling is off
	locks *lock.Manager  // nil for read-only commands
}

// openProject loads the resolved project file and wires the engine up.
//
// Mutating commands additionally take the advisory file lock (reason
// names the command in the lock info) and open the journal so every
// operation lands in the audit trail. A journal that cannot be opened
// degrades to a warning; a held lock is a hard error.
func openProject(reason string, mutating bool) (*projectContext, error) {
	path, err := resolveProjectPath(".")
	if err != nil {
		return nil, err
	}

	pc := &projectContext{path: path}

	if mutating && !cliConfig.Lock.Disabled {
		mgr, err := lock.NewManager(lock.Config{
			LockDir:       cliConfig.LockDir(path),
			TTL:           cliConfig.LockTTL(),
			CleanupOnInit: true,
		})
		if err != nil {
			return nil, fmt.Errorf("lock manager: %w", err)
		}
		if err := mgr.Acquire(path, reason); err != nil {
			mgr.Close()
			var held *lock.HeldError
			if errors.As(err, &held) && held.Holder != nil {
				return nil, fmt.Errorf("%s is locked by pid %d (session %s, since %s)",
					filepath.Base(path), held.Holder.PID, held.Holder.SessionID,
					held.Holder.LockedAt.Format(time.RFC3339))
			}
			return nil, err
		}
		pc.locks = mgr
	}

	var opts []engine.Option
	if mutating && !cliConfig.Journal.Disabled && !flagNoJournal {
		store, jErr := journal.Open(journal.Config{
			Path:       cliConfig.JournalDir(path),
			SyncWrites: true,
		})
		if jErr != nil {
			// Journal trouble never blocks the edit itself.
			ux.Warning(fmt.Sprintf("journal unavailable: %v", jErr))
		} else {
			pc.store = store
			opts = append(opts, engine.WithAuditHook(store.Hook()))
		}
	}

	svc, err := engine.Open(engine.Config{
		ProjectPath:    path,
		MetricsEnabled: cliConfig.Metrics,
		TracingEnabled: cliConfig.Tracing,
	}, opts...)
	if err != nil {
		pc.close()
		return nil, err
	}
	pc.svc = svc
	return pc, nil
}

// close releases everything in reverse acquisition order.
func (pc *projectContext) close() {
	if pc.svc != nil {
		pc.svc.Close()
	}
	if pc.store != nil {
		pc.store.Close()
	}
	if pc.locks != nil {
		pc.locks.Close()
	}
}

// mutate runs fn under transaction protection.
//
// With a transaction already open (begun by an earlier invocation and
// resumed from its backup file), the change is saved into it and left
// uncommitted for 'halyard tx commit'. Otherwise the mutation gets its
// own transaction: committed on success, rolled back on error so a
// refused operation leaves no trace.
func (pc *projectContext) mutate(ctx context.Context, fn func(context.Context, *engine.Service) error) error {
	if pc.svc.ActiveTransaction() != nil {
		if err := fn(ctx, pc.svc); err != nil {
			return err
		}
		return pc.svc.Save(ctx)
	}

	if _, err := pc.svc.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := fn(ctx, pc.svc); err != nil {
		if _, rbErr := pc.svc.RollbackTransaction(ctx); rbErr != nil {
			ux.Warning(fmt.Sprintf("rollback failed: %v", rbErr))
		}
		return err
	}
	_, err := pc.svc.CommitTransaction(ctx)
	return err
}

// noteOpenTransaction reminds the user when their change is parked in an
// uncommitted transaction.
func noteOpenTransaction(pc *projectContext) {
	if tx := pc.svc.ActiveTransaction(); tx != nil {
		ux.Info(fmt.Sprintf("change saved into open transaction %s; run 'halyard tx commit' to finalize it", tx.ID))
	}
}

// confirmAction asks a yes/no question on stdin. Non-interactive runs
// always refuse, so scripts must pass --force.
func confirmAction(question string) bool {
	if !ux.IsInteractive() {
		return false
	}
	fmt.Printf("%s (yes/no): ", question)
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "yes" || input == "y"
}
