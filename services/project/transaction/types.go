// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transaction

import (
	"time"
)

// Status represents the lifecycle state of a transaction.
type Status string

const (
	// StatusActive means the backup exists and the project file may be
	// freely rewritten; commit or rollback will resolve it.
	StatusActive Status = "active"

	// StatusCommitted means the save succeeded and the backup was released.
	StatusCommitted Status = "committed"

	// StatusRolledBack means the backup was restored over the project file.
	StatusRolledBack Status = "rolled_back"
)

// DefaultBackupSuffix is appended to the project path to form the backup path.
const DefaultBackupSuffix = ".backup"

// SaveFunc persists the in-memory project document to its path on disk.
// The manager calls it exactly once per Commit, while holding the
// transaction open, so a failed save can still be rolled back.
type SaveFunc func() error

// Transaction is a snapshot of one backup/commit/rollback cycle.
//
// # Description
//
// A transaction is durable: its only state is the backup file sitting next
// to the project file, so it survives process exits and can be resumed by a
// later Manager (see Config and Manager.Active). IDs are not stable across
// process boundaries; a resumed transaction gets a fresh ID.
type Transaction struct {
	// ID uniquely identifies the transaction within this process.
	ID string

	// ProjectPath is the file the transaction protects.
	ProjectPath string

	// BackupPath is ProjectPath plus the configured backup suffix.
	BackupPath string

	// StartedAt is when the backup was taken. For a resumed transaction
	// it is the modification time of the backup file that was found.
	StartedAt time.Time

	// Status is the lifecycle state at snapshot time.
	Status Status

	// Resumed is true when the transaction was adopted from a backup file
	// left behind by an earlier process rather than started by Begin.
	Resumed bool
}

// Result describes a completed commit or rollback.
type Result struct {
	// TxID is the ID of the resolved transaction.
	TxID string

	// Duration is how long the transaction was active. For resumed
	// transactions this spans process invocations.
	Duration time.Duration

	// BackupReleased reports whether the backup file is gone. It is false
	// after a commit whose backup could not be deleted; the leftover path
	// is then available from Manager.OrphanedBackups.
	BackupReleased bool
}

// Config holds the settings for a transaction Manager.
type Config struct {
	// ProjectPath is the project file the manager protects. Required.
	ProjectPath string

	// BackupSuffix is appended to ProjectPath to form the backup path.
	// Defaults to DefaultBackupSuffix when empty.
	BackupSuffix string

	// MetricsEnabled controls OpenTelemetry metric recording.
	MetricsEnabled bool

	// TracingEnabled controls OpenTelemetry span creation.
	TracingEnabled bool
}

// DefaultConfig returns a Config with standard settings for projectPath.
func DefaultConfig(projectPath string) Config {
	return Config{
		ProjectPath:    projectPath,
		BackupSuffix:   DefaultBackupSuffix,
		MetricsEnabled: true,
		TracingEnabled: false,
	}
}

// BackupPath returns the backup sibling path for the configured project file.
func (c Config) BackupPath() string {
	suffix := c.BackupSuffix
	if suffix == "" {
		suffix = DefaultBackupSuffix
	}
	return c.ProjectPath + suffix
}
