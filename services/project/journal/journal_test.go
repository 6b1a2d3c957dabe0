// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package journal

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyardhq/halyard/services/project/engine"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func auditEntry(op, outcome string, args ...string) engine.AuditEntry {
	e := engine.AuditEntry{
		Time:     time.Now(),
		Op:       op,
		Args:     args,
		Outcome:  outcome,
		Duration: 3 * time.Millisecond,
	}
	if outcome == "error" {
		e.Error = "boom"
	}
	return e
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestAppendAndRecent(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, auditEntry("ensure-hierarchy", "ok", "App/Views")))
	require.NoError(t, s.Append(ctx, auditEntry("add-file", "ok", "main.swift", "App", "App")))
	require.NoError(t, s.Append(ctx, auditEntry("remove-file", "error", "ghost.swift")))

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first.
	assert.Equal(t, uint64(3), recent[0].Seq)
	assert.Equal(t, "remove-file", recent[0].Op)
	assert.Equal(t, "error", recent[0].Outcome)
	assert.Equal(t, "boom", recent[0].Error)
	assert.Equal(t, uint64(2), recent[1].Seq)
	assert.Equal(t, []string{"main.swift", "App", "App"}, recent[1].Args)
	assert.Equal(t, 3*time.Millisecond, recent[1].Duration)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir

	s, err := Open(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, auditEntry("save", "ok")))
	require.NoError(t, s.Append(ctx, auditEntry("tx-begin", "ok")))
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, uint64(2), s2.Stats().LastSeq)

	require.NoError(t, s2.Append(ctx, auditEntry("tx-commit", "ok")))

	recent, err := s2.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, uint64(3), recent[0].Seq)
	assert.Equal(t, "tx-commit", recent[0].Op)
}

func TestHookRecordsEntries(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	hook := s.Hook()
	hook(ctx, auditEntry("add-product", "ok", "App"))

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "add-product", recent[0].Op)

	// A hook on a closed store drops the entry instead of panicking.
	require.NoError(t, s.Close())
	hook(ctx, auditEntry("add-file", "ok", "late.swift"))
}

func TestRecentSkipsCorruptedRecords(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, auditEntry("save", "ok")))
	require.NoError(t, s.Append(ctx, auditEntry("remove-group", "ok", "App/Old")))

	// Clobber the first record under its own key.
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(1), []byte("not a record"))
	})
	require.NoError(t, err)

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, uint64(2), recent[0].Seq)
	assert.Equal(t, int64(1), s.Stats().Corrupted)
}

func TestPrune(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, auditEntry("save", "ok")))
	}

	deleted, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(5), recent[0].Seq)
	assert.Equal(t, uint64(4), recent[1].Seq)

	// Already at the target size.
	deleted, err = s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	_, err = s.Prune(ctx, -1)
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	s := newMemStore(t)
	require.NoError(t, s.Close())

	err := s.Append(context.Background(), auditEntry("save", "ok"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Recent(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Prune(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)

	// Second close is a no-op.
	assert.NoError(t, s.Close())
}
