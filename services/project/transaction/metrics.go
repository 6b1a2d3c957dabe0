// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transaction

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for transaction metrics.
var meter = otel.Meter("halyard.transaction")

// Metric instruments for transaction operations.
var (
	beginTotal          metric.Int64Counter
	commitTotal         metric.Int64Counter
	rollbackTotal       metric.Int64Counter
	orphanedTotal       metric.Int64Counter
	transactionDuration metric.Float64Histogram
	backupBytes         metric.Int64Histogram
	activeGauge         metric.Int64UpDownCounter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
// Set by the Manager on initialization.
//
// Thread Safety: Uses atomic operations for safe concurrent access.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		beginTotal, err = meter.Int64Counter(
			"transaction_begin_total",
			metric.WithDescription("Total number of transaction begin operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commitTotal, err = meter.Int64Counter(
			"transaction_commit_total",
			metric.WithDescription("Total number of transaction commit operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbackTotal, err = meter.Int64Counter(
			"transaction_rollback_total",
			metric.WithDescription("Total number of transaction rollback operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		orphanedTotal, err = meter.Int64Counter(
			"transaction_orphaned_backups_total",
			metric.WithDescription("Total number of backups that could not be removed after commit"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		transactionDuration, err = meter.Float64Histogram(
			"transaction_duration_seconds",
			metric.WithDescription("Duration of transactions in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		backupBytes, err = meter.Int64Histogram(
			"transaction_backup_bytes",
			metric.WithDescription("Size of the backup file written per transaction"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		activeGauge, err = meter.Int64UpDownCounter(
			"transaction_active",
			metric.WithDescription("Number of currently active transactions"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// statusAttr converts an operation outcome to the shared status attribute.
func statusAttr(success bool) attribute.KeyValue {
	if success {
		return attribute.String("status", "success")
	}
	return attribute.String("status", "error")
}

// recordBegin records a transaction begin operation.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - success: Whether the begin operation succeeded.
func recordBegin(ctx context.Context, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	beginTotal.Add(ctx, 1, metric.WithAttributes(statusAttr(success)))
}

// recordCommit records a transaction commit operation.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - duration: How long the transaction was active.
//   - success: Whether the commit operation succeeded.
func recordCommit(ctx context.Context, duration time.Duration, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(statusAttr(success))

	commitTotal.Add(ctx, 1, attrs)
	transactionDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordRollback records a transaction rollback operation.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - duration: How long the transaction was active.
//   - success: Whether the rollback operation succeeded.
func recordRollback(ctx context.Context, duration time.Duration, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(statusAttr(success))

	rollbackTotal.Add(ctx, 1, attrs)
	transactionDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordBackupBytes records the size of a freshly written backup file.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - n: Backup size in bytes.
func recordBackupBytes(ctx context.Context, n int64) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	backupBytes.Record(ctx, n)
}

// recordOrphaned records a backup that could not be removed after commit.
//
// # Inputs
//
//   - ctx: Context for metric recording.
func recordOrphaned(ctx context.Context) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	orphanedTotal.Add(ctx, 1)
}

// incActive increments the active transaction gauge.
//
// # Inputs
//
//   - ctx: Context for metric recording.
func incActive(ctx context.Context) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	activeGauge.Add(ctx, 1)
}

// decActive decrements the active transaction gauge.
//
// # Inputs
//
//   - ctx: Context for metric recording.
func decActive(ctx context.Context) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	activeGauge.Add(ctx, -1)
}
