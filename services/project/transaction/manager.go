// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transaction guards whole-file project saves with a sibling backup.
//
// # Description
//
// Begin copies the project file to <path>.backup before any bytes are
// rewritten. Commit runs the save and deletes the backup; Rollback moves the
// backup back over the project file. The backup file is the only transaction
// state, so an interruption between Begin and Commit leaves a backup on disk
// that the next Manager adopts as an active transaction, ready to be
// committed or rolled back by a later process.
//
// # Thread Safety
//
// Manager is safe for concurrent use. At most one transaction is active per
// Manager at any time.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the backup lifecycle for a single project file.
type Manager struct {
	config Config
	save   SaveFunc

	mu       sync.Mutex
	active   *Transaction
	orphaned []string

	logger *slog.Logger
	tracer *Tracer
}

// NewManager creates a transaction manager for the configured project file.
//
// # Description
//
// If a backup file already exists at the configured backup path, it is
// adopted as an active transaction with Resumed set. Begin will refuse to
// start another transaction until the resumed one is committed or rolled
// back.
//
// # Inputs
//
//   - cfg: Manager configuration. ProjectPath is required.
//   - save: Callback that persists the in-memory project to ProjectPath.
//
// # Outputs
//
//   - *Manager: Ready-to-use manager.
//   - error: Non-nil if the configuration is invalid.
func NewManager(cfg Config, save SaveFunc) (*Manager, error) {
	if cfg.ProjectPath == "" {
		return nil, fmt.Errorf("transaction: project path is required")
	}
	if save == nil {
		return nil, fmt.Errorf("transaction: save function is required")
	}
	if cfg.BackupSuffix == "" {
		cfg.BackupSuffix = DefaultBackupSuffix
	}

	logger := slog.Default().With("component", "transaction")
	SetMetricsEnabled(cfg.MetricsEnabled)

	m := &Manager{
		config: cfg,
		save:   save,
		logger: logger,
		tracer: NewTracer(logger, cfg.TracingEnabled),
	}

	if tx := m.resumeFromBackup(); tx != nil {
		m.active = tx
		logger.Warn("resuming interrupted transaction from backup",
			slog.String("tx_id", tx.ID),
			slog.String("backup", tx.BackupPath),
			slog.Time("started_at", tx.StartedAt),
		)
	}

	return m, nil
}

// resumeFromBackup adopts a backup file left behind by an earlier process.
// Returns nil when no backup exists.
func (m *Manager) resumeFromBackup() *Transaction {
	backupPath := m.config.BackupPath()
	info, err := os.Stat(backupPath)
	if err != nil || info.IsDir() {
		return nil
	}
	return &Transaction{
		ID:          uuid.New().String(),
		ProjectPath: m.config.ProjectPath,
		BackupPath:  backupPath,
		StartedAt:   info.ModTime(),
		Status:      StatusActive,
		Resumed:     true,
	}
}

// Begin opens a transaction by copying the project file to the backup path.
//
// # Inputs
//
//   - ctx: Context for tracing and metric recording.
//
// # Outputs
//
//   - *Transaction: Snapshot of the opened transaction.
//   - error: ErrTransactionActive if a transaction is already open,
//     ErrBackupFailed if the project file could not be copied.
func (m *Manager) Begin(ctx context.Context) (tx *Transaction, err error) {
	ctx, span := m.tracer.StartBegin(ctx, m.config.ProjectPath)
	defer func() { m.tracer.EndBegin(span, tx, err) }()
	defer func() { recordBegin(ctx, err == nil) }()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during begin: %v", r)
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, fmt.Errorf("%w: started at %s",
			ErrTransactionActive, m.active.StartedAt.Format(time.RFC3339))
	}

	backupPath := m.config.BackupPath()
	bytes, copyErr := copyFile(m.config.ProjectPath, backupPath)
	if copyErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, copyErr)
	}

	m.active = &Transaction{
		ID:          uuid.New().String(),
		ProjectPath: m.config.ProjectPath,
		BackupPath:  backupPath,
		StartedAt:   time.Now(),
		Status:      StatusActive,
	}
	incActive(ctx)
	recordBackupBytes(ctx, bytes)

	m.logger.InfoContext(ctx, "transaction started",
		slog.String("tx_id", m.active.ID),
		slog.String("backup", backupPath),
		slog.Int64("bytes", bytes),
	)

	out := *m.active
	return &out, nil
}

// Commit saves the project and releases the backup.
//
// # Description
//
// The save runs first. If it fails the transaction stays active so the
// caller can retry or roll back, and the save error is returned without any
// transaction sentinel. After a successful save the backup file is deleted.
// A backup that cannot be deleted does not fail the commit: the path is
// recorded for CleanupOrphanedBackups and the Result reports
// BackupReleased false.
//
// # Inputs
//
//   - ctx: Context for tracing and metric recording.
//
// # Outputs
//
//   - *Result: Commit outcome.
//   - error: ErrTransactionNotActive when no transaction is open, or the
//     save error.
func (m *Manager) Commit(ctx context.Context) (res *Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrTransactionNotActive
	}
	tx := *m.active

	ctx, span := m.tracer.StartCommit(ctx, &tx)
	defer func() { m.tracer.EndCommit(span, res, err) }()
	defer func() { recordCommit(ctx, time.Since(tx.StartedAt), err == nil) }()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during commit: %v", r)
		}
	}()

	if saveErr := m.save(); saveErr != nil {
		m.logger.ErrorContext(ctx, "save failed, transaction stays active",
			slog.String("tx_id", tx.ID),
			slog.Any("error", saveErr),
		)
		return nil, fmt.Errorf("saving project: %w", saveErr)
	}

	released := true
	if removeErr := os.Remove(tx.BackupPath); removeErr != nil {
		released = false
		m.orphaned = append(m.orphaned, tx.BackupPath)
		recordOrphaned(ctx)
		m.logger.WarnContext(ctx, "backup could not be removed after commit",
			slog.String("backup", tx.BackupPath),
			slog.Any("error", removeErr),
		)
	}

	m.active = nil
	decActive(ctx)

	res = &Result{
		TxID:           tx.ID,
		Duration:       time.Since(tx.StartedAt),
		BackupReleased: released,
	}
	m.logger.InfoContext(ctx, "transaction committed",
		slog.String("tx_id", tx.ID),
		slog.Duration("duration", res.Duration),
		slog.Bool("backup_released", released),
	)
	return res, nil
}

// Rollback restores the backup over the project file.
//
// # Description
//
// Restoration removes the current project file and renames the backup into
// its place, recovering the pre-Begin bytes. On failure the transaction
// stays active so the rollback can be retried; the project file is never
// left missing unless the backup is still on disk.
//
// # Inputs
//
//   - ctx: Context for tracing and metric recording.
//
// # Outputs
//
//   - *Result: Rollback outcome.
//   - error: ErrTransactionNotActive when no transaction is open,
//     ErrRestoreFailed when the backup could not be moved into place.
func (m *Manager) Rollback(ctx context.Context) (res *Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrTransactionNotActive
	}
	tx := *m.active

	ctx, span := m.tracer.StartRollback(ctx, &tx)
	defer func() { m.tracer.EndRollback(span, res, err) }()
	defer func() { recordRollback(ctx, time.Since(tx.StartedAt), err == nil) }()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during rollback: %v", r)
		}
	}()

	if removeErr := os.Remove(tx.ProjectPath); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: removing %s: %w", ErrRestoreFailed, tx.ProjectPath, removeErr)
	}
	if renameErr := os.Rename(tx.BackupPath, tx.ProjectPath); renameErr != nil {
		return nil, fmt.Errorf("%w: restoring %s: %w", ErrRestoreFailed, tx.BackupPath, renameErr)
	}

	m.active = nil
	decActive(ctx)

	res = &Result{
		TxID:           tx.ID,
		Duration:       time.Since(tx.StartedAt),
		BackupReleased: true,
	}
	m.logger.InfoContext(ctx, "transaction rolled back",
		slog.String("tx_id", tx.ID),
		slog.Duration("duration", res.Duration),
		slog.Bool("resumed", tx.Resumed),
	)
	return res, nil
}

// Active returns a snapshot of the open transaction, or nil when idle.
func (m *Manager) Active() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	out := *m.active
	return &out
}

// IsActive reports whether a transaction is open.
func (m *Manager) IsActive() bool {
	return m.Active() != nil
}

// OrphanedBackups returns backup files that survived their commit.
func (m *Manager) OrphanedBackups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.orphaned)
}

// CleanupOrphanedBackups deletes backup files left behind by commits.
//
// # Outputs
//
//   - int: Number of backups removed. Already-missing files count as removed.
//   - error: Joined errors for paths that still cannot be deleted; those
//     paths stay tracked for the next cleanup.
func (m *Manager) CleanupOrphanedBackups(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		kept    []string
		errs    []error
		removed int
	)
	for _, path := range m.orphaned {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			kept = append(kept, path)
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
			continue
		}
		removed++
	}
	m.orphaned = kept

	if removed > 0 {
		m.logger.InfoContext(ctx, "orphaned backups removed", slog.Int("count", removed))
	}
	return removed, errors.Join(errs...)
}

// Close releases the manager. Close does not resolve an active transaction:
// its backup file stays on disk so a later process can resume it and decide
// between commit and rollback.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.logger.Info("closing with active transaction, backup left for next invocation",
			slog.String("tx_id", m.active.ID),
			slog.String("backup", m.active.BackupPath),
		)
	}
	return nil
}

// copyFile copies src to dst, truncating dst, and syncs dst to disk before
// returning. The destination keeps the source's permission bits.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}
