// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transaction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const originalContent = "halyard: 1\nname: Demo\n"

// newProjectFile writes a project file into a fresh temp dir and returns
// its path.
func newProjectFile(t *testing.T) string {
	t.Helper()
	projectPath := filepath.Join(t.TempDir(), "project.halyard")
	if err := os.WriteFile(projectPath, []byte(originalContent), 0o644); err != nil {
		t.Fatalf("writing project file: %v", err)
	}
	return projectPath
}

// newTestManager builds a manager over a fresh project file. A nil save
// callback is replaced with a no-op.
func newTestManager(t *testing.T, save SaveFunc) (*Manager, string) {
	t.Helper()
	projectPath := newProjectFile(t)
	if save == nil {
		save = func() error { return nil }
	}
	cfg := DefaultConfig(projectPath)
	cfg.MetricsEnabled = false
	m, err := NewManager(cfg, save)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, projectPath
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestNewManagerValidation(t *testing.T) {
	save := func() error { return nil }

	tests := []struct {
		name string
		cfg  Config
		save SaveFunc
	}{
		{"empty project path", Config{}, save},
		{"nil save func", DefaultConfig("/tmp/p.halyard"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.cfg, tt.save); err == nil {
				t.Error("NewManager() error = nil, want non-nil")
			}
		})
	}
}

func TestConfigBackupPath(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"default suffix", Config{ProjectPath: "/w/p.halyard"}, "/w/p.halyard.backup"},
		{"explicit suffix", Config{ProjectPath: "/w/p.halyard", BackupSuffix: ".bak"}, "/w/p.halyard.bak"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BackupPath(); got != tt.want {
				t.Errorf("BackupPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBeginCreatesBackup(t *testing.T) {
	m, projectPath := newTestManager(t, nil)

	tx, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if tx.Status != StatusActive {
		t.Errorf("Status = %q, want %q", tx.Status, StatusActive)
	}
	if tx.Resumed {
		t.Error("Resumed = true for a fresh transaction")
	}
	if want := projectPath + DefaultBackupSuffix; tx.BackupPath != want {
		t.Errorf("BackupPath = %q, want %q", tx.BackupPath, want)
	}
	if got := readFile(t, tx.BackupPath); got != originalContent {
		t.Errorf("backup content = %q, want %q", got, originalContent)
	}
	if !m.IsActive() {
		t.Error("IsActive() = false after Begin")
	}
}

func TestBeginAlreadyActive(t *testing.T) {
	m, _ := newTestManager(t, nil)

	first, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("first Begin() error = %v", err)
	}
	if _, err := m.Begin(context.Background()); !errors.Is(err, ErrTransactionActive) {
		t.Errorf("second Begin() error = %v, want ErrTransactionActive", err)
	}
	if got := m.Active(); got == nil || got.ID != first.ID {
		t.Error("active transaction changed after refused Begin")
	}
}

func TestBeginMissingProject(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "missing.halyard"))
	cfg.MetricsEnabled = false
	m, err := NewManager(cfg, func() error { return nil })
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if _, err := m.Begin(context.Background()); !errors.Is(err, ErrBackupFailed) {
		t.Errorf("Begin() error = %v, want ErrBackupFailed", err)
	}
	if m.IsActive() {
		t.Error("IsActive() = true after failed Begin")
	}
}

func TestCommitSavesAndRemovesBackup(t *testing.T) {
	const savedContent = "halyard: 1\nname: Demo\nedited: true\n"

	projectPath := newProjectFile(t)
	cfg := DefaultConfig(projectPath)
	cfg.MetricsEnabled = false
	m, err := NewManager(cfg, func() error {
		return os.WriteFile(projectPath, []byte(savedContent), 0o644)
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	tx, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	res, err := m.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if !res.BackupReleased {
		t.Error("BackupReleased = false, want true")
	}
	if res.TxID != tx.ID {
		t.Errorf("Result.TxID = %q, want %q", res.TxID, tx.ID)
	}
	if got := readFile(t, projectPath); got != savedContent {
		t.Errorf("project content = %q, want %q", got, savedContent)
	}
	if _, err := os.Stat(tx.BackupPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backup still present after commit: stat err = %v", err)
	}
	if m.IsActive() {
		t.Error("IsActive() = true after Commit")
	}
}

func TestIdleOperations(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		if _, err := m.Commit(context.Background()); !errors.Is(err, ErrTransactionNotActive) {
			t.Errorf("Commit() error = %v, want ErrTransactionNotActive", err)
		}
	})
	t.Run("rollback", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		if _, err := m.Rollback(context.Background()); !errors.Is(err, ErrTransactionNotActive) {
			t.Errorf("Rollback() error = %v, want ErrTransactionNotActive", err)
		}
	})
}

func TestRollbackRestores(t *testing.T) {
	m, projectPath := newTestManager(t, nil)

	tx, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := os.WriteFile(projectPath, []byte("scrambled"), 0o644); err != nil {
		t.Fatalf("scrambling project file: %v", err)
	}

	res, err := m.Rollback(context.Background())
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if !res.BackupReleased {
		t.Error("BackupReleased = false after rollback")
	}
	if got := readFile(t, projectPath); got != originalContent {
		t.Errorf("project content = %q, want original", got)
	}
	if _, err := os.Stat(tx.BackupPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backup still present after rollback: stat err = %v", err)
	}
	if m.IsActive() {
		t.Error("IsActive() = true after Rollback")
	}
}

func TestCommitSaveFailureThenRollback(t *testing.T) {
	saveErr := errors.New("disk full")

	projectPath := newProjectFile(t)
	cfg := DefaultConfig(projectPath)
	cfg.MetricsEnabled = false
	m, err := NewManager(cfg, func() error { return saveErr })
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if _, err := m.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := os.WriteFile(projectPath, []byte("half written"), 0o644); err != nil {
		t.Fatalf("corrupting project file: %v", err)
	}

	if _, err := m.Commit(context.Background()); !errors.Is(err, saveErr) {
		t.Fatalf("Commit() error = %v, want wrapped save error", err)
	}
	if !m.IsActive() {
		t.Fatal("IsActive() = false after failed Commit, want transaction kept open")
	}

	if _, err := m.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback() after failed commit error = %v", err)
	}
	if got := readFile(t, projectPath); got != originalContent {
		t.Errorf("project content = %q, want original restored", got)
	}
}

func TestResumeFromExistingBackup(t *testing.T) {
	projectPath := newProjectFile(t)
	backupPath := projectPath + DefaultBackupSuffix
	if err := os.WriteFile(backupPath, []byte("pre-crash state"), 0o644); err != nil {
		t.Fatalf("writing stale backup: %v", err)
	}

	cfg := DefaultConfig(projectPath)
	cfg.MetricsEnabled = false
	m, err := NewManager(cfg, func() error { return nil })
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	tx := m.Active()
	if tx == nil {
		t.Fatal("Active() = nil, want resumed transaction")
	}
	if !tx.Resumed {
		t.Error("Resumed = false for adopted backup")
	}
	if tx.Status != StatusActive {
		t.Errorf("Status = %q, want %q", tx.Status, StatusActive)
	}

	if _, err := m.Begin(context.Background()); !errors.Is(err, ErrTransactionActive) {
		t.Errorf("Begin() with resumed transaction error = %v, want ErrTransactionActive", err)
	}

	if _, err := m.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback() of resumed transaction error = %v", err)
	}
	if got := readFile(t, projectPath); got != "pre-crash state" {
		t.Errorf("project content = %q, want backup content restored", got)
	}
}

func TestOrphanedBackupTracking(t *testing.T) {
	m, _ := newTestManager(t, nil)

	tx, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// Swap the backup for a non-empty directory so os.Remove fails on every
	// platform.
	pin := filepath.Join(tx.BackupPath, "pin")
	if err := os.Remove(tx.BackupPath); err != nil {
		t.Fatalf("removing backup file: %v", err)
	}
	if err := os.MkdirAll(pin, 0o755); err != nil {
		t.Fatalf("pinning backup path: %v", err)
	}

	res, err := m.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if res.BackupReleased {
		t.Error("BackupReleased = true, want false for undeletable backup")
	}
	if got := m.OrphanedBackups(); len(got) != 1 || got[0] != tx.BackupPath {
		t.Fatalf("OrphanedBackups() = %v, want [%s]", got, tx.BackupPath)
	}
	if m.IsActive() {
		t.Error("IsActive() = true after commit with orphaned backup")
	}

	removed, err := m.CleanupOrphanedBackups(context.Background())
	if removed != 0 || err == nil {
		t.Fatalf("CleanupOrphanedBackups() = (%d, %v), want failure while pinned", removed, err)
	}
	if got := m.OrphanedBackups(); len(got) != 1 {
		t.Fatalf("OrphanedBackups() after failed cleanup = %v, want still tracked", got)
	}

	if err := os.Remove(pin); err != nil {
		t.Fatalf("unpinning backup path: %v", err)
	}
	removed, err = m.CleanupOrphanedBackups(context.Background())
	if removed != 1 || err != nil {
		t.Fatalf("CleanupOrphanedBackups() = (%d, %v), want (1, nil)", removed, err)
	}
	if got := m.OrphanedBackups(); len(got) != 0 {
		t.Errorf("OrphanedBackups() after cleanup = %v, want empty", got)
	}
}

func TestCloseLeavesBackup(t *testing.T) {
	m, projectPath := newTestManager(t, nil)

	tx, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(tx.BackupPath); err != nil {
		t.Fatalf("backup missing after Close: %v", err)
	}

	// A second manager over the same project adopts the backup.
	cfg := DefaultConfig(projectPath)
	cfg.MetricsEnabled = false
	next, err := NewManager(cfg, func() error { return nil })
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	resumed := next.Active()
	if resumed == nil || !resumed.Resumed {
		t.Fatalf("Active() = %+v, want resumed transaction", resumed)
	}
}
