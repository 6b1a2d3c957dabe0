// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine mutates a project graph on behalf of CLI commands.
//
// # Description
//
// The engine layers domain policy over the hproj data model: group
// hierarchy management with name-collision protection, file references
// wired into build phases by file type, product reference synthesis and
// repair, and orphan detection. Lookups go through a verified cache whose
// invalidations are buffered per operation and applied only on success, so
// a failed mutation never poisons entries that were valid before it.
// Whole-graph saves run under the transaction manager's backup discipline.
//
// # Thread Safety
//
// Service is NOT safe for concurrent use. All mutation happens from a
// single goroutine; the CLI guarantees this by construction.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/halyardhq/halyard/services/project/cache"
	"github.com/halyardhq/halyard/services/project/hproj"
	"github.com/halyardhq/halyard/services/project/transaction"
)

// AuditEntry describes one resolved operation for the mutation journal.
type AuditEntry struct {
	// Time is when the operation started.
	Time time.Time

	// Op is the operation name, for example "add-file".
	Op string

	// Args are the user-facing arguments, in call order.
	Args []string

	// TxID is the enclosing transaction's ID, or "" when none was open.
	TxID string

	// Outcome is "ok" or "error".
	Outcome string

	// Error is the error text when Outcome is "error".
	Error string

	// Duration is how long the operation took.
	Duration time.Duration
}

// AuditHook receives one entry per operation, after it resolves. Hooks must
// not mutate the project.
type AuditHook func(ctx context.Context, entry AuditEntry)

// Config holds the settings for a Service.
type Config struct {
	// ProjectPath is the project file all saves and backups target.
	// Required.
	ProjectPath string

	// RootDir anchors relative disk paths. Defaults to the directory of
	// ProjectPath.
	RootDir string

	// MetricsEnabled and TracingEnabled flow into the transaction manager.
	MetricsEnabled bool
	TracingEnabled bool
}

type options struct {
	cacheOpts []cache.Option
	audit     AuditHook
}

// Option customizes a Service.
type Option func(*options)

// WithCacheOptions forwards capacity options to the lookup cache.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) { o.cacheOpts = append(o.cacheOpts, opts...) }
}

// WithAuditHook installs a hook that records every operation.
func WithAuditHook(hook AuditHook) Option {
	return func(o *options) { o.audit = hook }
}

// Service is the mutation engine for one loaded project.
type Service struct {
	project *hproj.Project
	config  Config
	rootDir string

	cache  *cache.Lookup
	tx     *transaction.Manager
	audit  AuditHook
	logger *slog.Logger
}

// New builds a Service over an already loaded project.
//
// # Inputs
//
//   - project: The loaded graph. Required.
//   - cfg: Service configuration. ProjectPath is required.
//   - opts: Optional cache and audit settings.
//
// # Outputs
//
//   - *Service: Ready-to-use engine.
//   - error: ErrInvalidArguments for missing inputs, or a cache or
//     transaction construction error.
func New(project *hproj.Project, cfg Config, opts ...Option) (*Service, error) {
	if project == nil {
		return nil, fmt.Errorf("%w: project is nil", ErrInvalidArguments)
	}
	if cfg.ProjectPath == "" {
		return nil, fmt.Errorf("%w: project path is empty", ErrInvalidArguments)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rootDir := cfg.RootDir
	if rootDir == "" {
		rootDir = filepath.Dir(cfg.ProjectPath)
	}

	lookup, err := cache.New(o.cacheOpts...)
	if err != nil {
		return nil, err
	}

	s := &Service{
		project: project,
		config:  cfg,
		rootDir: rootDir,
		cache:   lookup,
		audit:   o.audit,
		logger:  slog.Default().With("component", "engine"),
	}
	lookup.SetAlive(func(id hproj.NodeID) bool { return s.project.Contains(id) })

	mgr, err := transaction.NewManager(transaction.Config{
		ProjectPath:    cfg.ProjectPath,
		MetricsEnabled: cfg.MetricsEnabled,
		TracingEnabled: cfg.TracingEnabled,
	}, s.saveToDisk)
	if err != nil {
		return nil, err
	}
	s.tx = mgr

	return s, nil
}

// Open loads the project file named by cfg.ProjectPath and builds a Service
// over it.
func Open(cfg Config, opts ...Option) (*Service, error) {
	project, err := hproj.Load(cfg.ProjectPath)
	if err != nil {
		return nil, err
	}
	return New(project, cfg, opts...)
}

// Project returns the underlying graph. Callers must respect the
// single-writer discipline.
func (s *Service) Project() *hproj.Project {
	return s.project
}

// RootDir returns the directory that anchors relative disk paths.
func (s *Service) RootDir() string {
	return s.rootDir
}

// CacheStats returns lookup cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Save persists the graph to the project file without a transaction.
func (s *Service) Save(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "save", nil, "", start, err) }()

	if wErr := s.saveToDisk(); wErr != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, wErr)
	}
	s.logger.InfoContext(ctx, "project saved",
		slog.String("path", s.config.ProjectPath),
		slog.Int("objects", s.project.ObjectCount()),
	)
	return nil
}

// BeginTransaction opens a backup-protected transaction.
func (s *Service) BeginTransaction(ctx context.Context) (tx *transaction.Transaction, err error) {
	start := time.Now()
	defer func() { s.recordAudit(ctx, "tx-begin", nil, "", start, err) }()
	return s.tx.Begin(ctx)
}

// CommitTransaction saves the graph and releases the backup.
func (s *Service) CommitTransaction(ctx context.Context) (res *transaction.Result, err error) {
	start := time.Now()
	txID := ""
	if active := s.tx.Active(); active != nil {
		txID = active.ID
	}
	defer func() { s.recordAudit(ctx, "tx-commit", nil, txID, start, err) }()
	return s.tx.Commit(ctx)
}

// RollbackTransaction restores the backup and reloads the graph from disk,
// discarding all in-memory mutations made since BeginTransaction.
func (s *Service) RollbackTransaction(ctx context.Context) (res *transaction.Result, err error) {
	start := time.Now()
	txID := ""
	if active := s.tx.Active(); active != nil {
		txID = active.ID
	}
	defer func() { s.recordAudit(ctx, "tx-rollback", nil, txID, start, err) }()

	res, err = s.tx.Rollback(ctx)
	if err != nil {
		return nil, err
	}
	if rErr := s.reload(); rErr != nil {
		return res, fmt.Errorf("%w: reloading after rollback: %v", ErrOperationFailed, rErr)
	}
	return res, nil
}

// ActiveTransaction returns a snapshot of the open transaction, or nil.
func (s *Service) ActiveTransaction() *transaction.Transaction {
	return s.tx.Active()
}

// OrphanedBackups returns backup files that survived their commit.
func (s *Service) OrphanedBackups() []string {
	return s.tx.OrphanedBackups()
}

// CleanupOrphanedBackups deletes backup files left behind by commits.
func (s *Service) CleanupOrphanedBackups(ctx context.Context) (int, error) {
	return s.tx.CleanupOrphanedBackups(ctx)
}

// Close releases the transaction manager. An open transaction's backup
// stays on disk for the next invocation.
func (s *Service) Close() error {
	return s.tx.Close()
}

// saveToDisk is the transaction manager's save callback.
func (s *Service) saveToDisk() error {
	return hproj.Write(s.project, s.config.ProjectPath)
}

// reload replaces the in-memory graph with the on-disk state and purges
// the cache. Used after a rollback restores pre-transaction bytes.
func (s *Service) reload() error {
	project, err := hproj.Load(s.config.ProjectPath)
	if err != nil {
		return err
	}
	s.project = project
	s.cache.Purge()
	return nil
}

// recordAudit emits one audit entry if a hook is installed. When txID is
// empty the currently active transaction, if any, is recorded instead.
func (s *Service) recordAudit(ctx context.Context, op string, args []string, txID string, start time.Time, err error) {
	if s.audit == nil {
		return
	}
	if txID == "" {
		if active := s.tx.Active(); active != nil {
			txID = active.ID
		}
	}
	entry := AuditEntry{
		Time:     start,
		Op:       op,
		Args:     args,
		TxID:     txID,
		Outcome:  "ok",
		Duration: time.Since(start),
	}
	if err != nil {
		entry.Outcome = "error"
		entry.Error = err.Error()
	}
	s.audit(ctx, entry)
}

// absOnDisk resolves a user-supplied disk path against the root directory.
func (s *Service) absOnDisk(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.rootDir, p)
}
