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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/halyardhq/halyard/services/project/engine"
	"github.com/halyardhq/halyard/services/project/hproj"
	"github.com/halyardhq/halyard/services/project/journal"
	"github.com/halyardhq/halyard/services/project/transaction"
)

// writeTestProject writes a minimal project file and returns its path.
func writeTestProject(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := hproj.Write(hproj.NewProject("Demo"), path); err != nil {
		t.Fatalf("writing project: %v", err)
	}
	return path
}

// resetProjectSelection clears the globals resolveProjectPath reads and
// restores them when the test ends.
func resetProjectSelection(t *testing.T) {
	t.Helper()
	prevFlag, prevCfg := flagProject, cliConfig
	t.Cleanup(func() {
		flagProject = prevFlag
		cliConfig = prevCfg
	})
	flagProject = ""
	cliConfig = DefaultConfig()
}

func TestResolveProjectPath_FlagWins(t *testing.T) {
	resetProjectSelection(t)
	path := writeTestProject(t, t.TempDir(), "Flagged.hproj")
	flagProject = path

	// The search directory is ignored when the flag is set.
	got, err := resolveProjectPath(t.TempDir())
	if err != nil {
		t.Fatalf("resolveProjectPath failed: %v", err)
	}
	if got != path {
		t.Errorf("Expected %s, got %s", path, got)
	}
}

func TestResolveProjectPath_FlagMissingFile(t *testing.T) {
	resetProjectSelection(t)
	flagProject = filepath.Join(t.TempDir(), "Nope.hproj")

	if _, err := resolveProjectPath(t.TempDir()); err == nil {
		t.Error("Expected an error for a missing project file")
	}
}

func TestResolveProjectPath_ConfigFallback(t *testing.T) {
	resetProjectSelection(t)
	path := writeTestProject(t, t.TempDir(), "FromConfig.hproj")
	cliConfig.Project = path

	got, err := resolveProjectPath(t.TempDir())
	if err != nil {
		t.Fatalf("resolveProjectPath failed: %v", err)
	}
	if got != path {
		t.Errorf("Expected %s, got %s", path, got)
	}
}

func TestResolveProjectPath_SingleMatch(t *testing.T) {
	resetProjectSelection(t)
	dir := t.TempDir()
	path := writeTestProject(t, dir, "Only.hproj")

	got, err := resolveProjectPath(dir)
	if err != nil {
		t.Fatalf("resolveProjectPath failed: %v", err)
	}
	if got != path {
		t.Errorf("Expected %s, got %s", path, got)
	}
}

func TestResolveProjectPath_NoMatch(t *testing.T) {
	resetProjectSelection(t)

	_, err := resolveProjectPath(t.TempDir())
	if err == nil {
		t.Fatal("Expected an error for an empty directory")
	}
	if !strings.Contains(err.Error(), "--project") {
		t.Errorf("Error should point at --project, got: %v", err)
	}
}

func TestResolveProjectPath_MultipleMatches(t *testing.T) {
	resetProjectSelection(t)
	dir := t.TempDir()
	writeTestProject(t, dir, "Alpha.hproj")
	writeTestProject(t, dir, "Beta.hproj")

	_, err := resolveProjectPath(dir)
	if err == nil {
		t.Fatal("Expected an error for an ambiguous directory")
	}
	for _, name := range []string{"Alpha.hproj", "Beta.hproj"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Error should name %s, got: %v", name, err)
		}
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ConfigFileName))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected default log level warn, got %s", cfg.LogLevel)
	}
	if !cfg.Metrics {
		t.Error("Metrics should default to enabled")
	}
	if cfg.Journal.Disabled {
		t.Error("Journal should default to enabled")
	}
}

func TestLoadConfig_ReadsValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `project: Demo.hproj
log_level: debug
output: machine
metrics: false
journal:
  disabled: true
  dir: /var/halyard/journal
lock:
  ttl: 5m
watch:
  debounce: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Project != "Demo.hproj" {
		t.Errorf("Expected project Demo.hproj, got %s", cfg.Project)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Output != "machine" {
		t.Errorf("Expected output machine, got %s", cfg.Output)
	}
	if cfg.Metrics {
		t.Error("Metrics should be disabled by the file")
	}
	if !cfg.Journal.Disabled {
		t.Error("Journal should be disabled by the file")
	}
	if got := cfg.LockTTL(); got != 5*time.Minute {
		t.Errorf("Expected lock TTL 5m, got %v", got)
	}
	if got := cfg.WatchDebounce(); got != 500*time.Millisecond {
		t.Errorf("Expected debounce 500ms, got %v", got)
	}
	// Absolute directories are taken as-is.
	if got := cfg.JournalDir("/work/app/Demo.hproj"); got != "/var/halyard/journal" {
		t.Errorf("Expected absolute journal dir kept, got %s", got)
	}
}

func TestLoadConfig_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("journal: [broken"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestLoadConfig_RejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("lock:\n  ttl: sometime\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected a validation error for lock.ttl")
	}
}

func TestConfigDirs_RelativeToProject(t *testing.T) {
	cfg := DefaultConfig()
	projectPath := filepath.Join("/work", "app", "Demo.hproj")

	wantJournal := filepath.Join("/work", "app", journal.DefaultDir)
	if got := cfg.JournalDir(projectPath); got != wantJournal {
		t.Errorf("Expected %s, got %s", wantJournal, got)
	}
	if got := cfg.LockDir(projectPath); !strings.HasPrefix(got, filepath.Join("/work", "app")) {
		t.Errorf("Lock dir should live next to the project, got %s", got)
	}
}

// openTestContext opens a real engine over a fresh temp project.
func openTestContext(t *testing.T) *projectContext {
	t.Helper()
	path := writeTestProject(t, t.TempDir(), "Demo.hproj")
	svc, err := engine.Open(engine.Config{ProjectPath: path})
	if err != nil {
		t.Fatalf("opening engine: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return &projectContext{path: path, svc: svc}
}

// hasChildGroup reports whether the root group has a direct child group
// with the given name.
func hasChildGroup(p *hproj.Project, name string) bool {
	for _, id := range p.RootGroup().Children {
		if g := p.GetGroup(id); g != nil && g.Name == name {
			return true
		}
	}
	return false
}

func TestMutate_CommitsOnSuccess(t *testing.T) {
	pc := openTestContext(t)
	ctx := context.Background()

	err := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		_, gErr := svc.CreateGroups(ctx, "Sources")
		return gErr
	})
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	if pc.svc.ActiveTransaction() != nil {
		t.Error("Transaction should be committed")
	}
	if _, err := os.Stat(pc.path + transaction.DefaultBackupSuffix); !os.IsNotExist(err) {
		t.Error("Backup should be released after commit")
	}
	loaded, err := hproj.Load(pc.path)
	if err != nil {
		t.Fatalf("reloading project: %v", err)
	}
	if !hasChildGroup(loaded, "Sources") {
		t.Error("Committed group missing from disk")
	}
}

func TestMutate_RollsBackOnError(t *testing.T) {
	pc := openTestContext(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		if _, gErr := svc.CreateGroups(ctx, "Doomed"); gErr != nil {
			return gErr
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the handler error back, got: %v", err)
	}

	if pc.svc.ActiveTransaction() != nil {
		t.Error("Transaction should be closed after rollback")
	}
	if _, err := os.Stat(pc.path + transaction.DefaultBackupSuffix); !os.IsNotExist(err) {
		t.Error("Backup should be released after rollback")
	}
	// Rollback reloads from disk, discarding the in-memory group.
	for _, p := range pc.svc.GroupPaths() {
		if p == "Doomed" {
			t.Error("Rolled-back group still present in memory")
		}
	}
}

func TestMutate_SavesIntoOpenTransaction(t *testing.T) {
	pc := openTestContext(t)
	ctx := context.Background()

	if _, err := pc.svc.BeginTransaction(ctx); err != nil {
		t.Fatalf("beginning transaction: %v", err)
	}

	err := pc.mutate(ctx, func(ctx context.Context, svc *engine.Service) error {
		_, gErr := svc.CreateGroups(ctx, "Batched")
		return gErr
	})
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	tx := pc.svc.ActiveTransaction()
	if tx == nil {
		t.Fatal("Transaction should stay open for 'tx commit'")
	}
	if _, err := os.Stat(tx.BackupPath); err != nil {
		t.Errorf("Backup should still exist: %v", err)
	}

	// The change is saved to disk even though the transaction is open.
	loaded, err := hproj.Load(pc.path)
	if err != nil {
		t.Fatalf("reloading project: %v", err)
	}
	if !hasChildGroup(loaded, "Batched") {
		t.Error("Saved group missing from disk")
	}

	// Rolling back undoes the saved change.
	if _, err := pc.svc.RollbackTransaction(ctx); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	loaded, err = hproj.Load(pc.path)
	if err != nil {
		t.Fatalf("reloading project: %v", err)
	}
	if hasChildGroup(loaded, "Batched") {
		t.Error("Rollback should have removed the group from disk")
	}
}
