// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package journal persists the engine's audit trail in an embedded
// BadgerDB store.
//
// Every resolved operation becomes one append-only record keyed by a
// monotonic sequence number, so "halyard history" can show what touched
// a project and when, across invocations. Records carry a CRC32
// checksum; entries that fail the check are skipped on read and
// counted, never replayed into results.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/halyardhq/halyard/services/project/engine"
)

// DefaultDir is the store location relative to the project root.
const DefaultDir = ".halyard/journal"

const keyPrefix = "entry:"

var (
	// ErrClosed is returned when operations are called on a closed store.
	ErrClosed = errors.New("journal is closed")

	// ErrCorrupted is returned when a record fails its integrity check.
	ErrCorrupted = errors.New("journal record corrupted (CRC mismatch)")
)

// Config holds settings for a journal store.
type Config struct {
	// Path is the directory for the BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory keeps the store in memory only. Useful for testing.
	InMemory bool

	// SyncWrites makes every append durable before returning.
	SyncWrites bool

	// Logger for store operations. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests. Data is lost on
// close.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Record is one persisted audit entry.
type Record struct {
	// Seq is the record's position in the journal, starting at 1.
	Seq uint64 `json:"seq"`

	// Time is when the operation started.
	Time time.Time `json:"time"`

	// Op is the operation name, for example "add-file".
	Op string `json:"op"`

	// Args are the user-facing arguments, in call order.
	Args []string `json:"args,omitempty"`

	// TxID is the enclosing transaction's ID, if any.
	TxID string `json:"tx_id,omitempty"`

	// Outcome is "ok" or "error".
	Outcome string `json:"outcome"`

	// Error is the error text when Outcome is "error".
	Error string `json:"error,omitempty"`

	// Duration is how long the operation took.
	Duration time.Duration `json:"duration_ns"`
}

// Stats summarizes store activity.
type Stats struct {
	// LastSeq is the highest sequence number in the store.
	LastSeq uint64

	// Appended counts records written since Open.
	Appended int64

	// Corrupted counts records that failed their CRC check on read.
	Corrupted int64
}

// Store is an append-only audit history backed by BadgerDB.
//
// Thread Safety: safe for concurrent use from multiple goroutines.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	inMemory bool

	seq       atomic.Uint64
	appended  atomic.Int64
	corrupted atomic.Int64
	closed    atomic.Bool
}

// badgerLogger adapts slog to BadgerDB's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates a journal store.
//
// Description:
//
//	Opens a BadgerDB at cfg.Path, creating the directory if needed, or
//	in memory when cfg.InMemory is set. The next sequence number is
//	recovered from the highest existing key.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must Close() it.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent journal")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With(slog.String("component", "journal"))

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	// Badger's own logging is chatty at Info; route it through slog at
	// debug level instead.
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   logger,
		inMemory: cfg.InMemory,
	}

	if err := s.initSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("recover sequence number: %w", err)
	}

	logger.Debug("journal opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Uint64("last_seq", s.seq.Load()))

	return s, nil
}

// initSeq recovers the highest sequence number from existing keys.
func (s *Store) initSeq() error {
	prefix := []byte(keyPrefix)

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(keyPrefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seek)

		if it.ValidForPrefix(prefix) {
			if seq, ok := parseKey(it.Item().Key()); ok {
				s.seq.Store(seq)
			}
		}
		return nil
	})
}

// recordKey builds the fixed-width key for a sequence number. The
// zero-padded decimal keeps lexicographic and numeric order identical.
func recordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", keyPrefix, seq))
}

func parseKey(key []byte) (uint64, bool) {
	var seq uint64
	if _, err := fmt.Sscanf(string(key[len(keyPrefix):]), "%016d", &seq); err != nil {
		return 0, false
	}
	return seq, true
}

// encodeRecord serializes a record as [4-byte CRC32][JSON].
func encodeRecord(rec Record) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(body))
	copy(out[4:], body)
	return out, nil
}

// decodeRecord verifies the checksum and unmarshals the record.
func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if len(data) < 5 {
		return rec, fmt.Errorf("%w: record too short", ErrCorrupted)
	}

	stored := binary.BigEndian.Uint32(data[:4])
	body := data[4:]
	if computed := crc32.ChecksumIEEE(body); stored != computed {
		return rec, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorrupted, stored, computed)
	}

	if err := json.Unmarshal(body, &rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Append writes one audit entry to the store.
//
// Description:
//
//	Assigns the next sequence number and persists the entry. With
//	SyncWrites enabled the write is durable when Append returns.
//
// Inputs:
//
//	ctx - Checked for cancellation before the write.
//	entry - The resolved operation to record.
//
// Outputs:
//
//	error - Non-nil if the store is closed or the write fails.
func (s *Store) Append(ctx context.Context, entry engine.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	seq := s.seq.Add(1)
	rec := Record{
		Seq:      seq,
		Time:     entry.Time,
		Op:       entry.Op,
		Args:     entry.Args,
		TxID:     entry.TxID,
		Outcome:  entry.Outcome,
		Error:    entry.Error,
		Duration: entry.Duration,
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(seq), data)
	})
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	s.appended.Add(1)
	s.logger.Debug("audit record appended",
		slog.Uint64("seq", seq),
		slog.String("op", rec.Op),
		slog.String("outcome", rec.Outcome))

	return nil
}

// Hook adapts the store into an engine audit hook.
//
// Description:
//
//	Returns a hook that appends every entry it receives. Append
//	failures are logged and swallowed so a broken journal never fails
//	the operation it records.
func (s *Store) Hook() engine.AuditHook {
	return func(ctx context.Context, entry engine.AuditEntry) {
		if err := s.Append(ctx, entry); err != nil {
			s.logger.Warn("audit record dropped",
				slog.String("op", entry.Op),
				slog.String("error", err.Error()))
		}
	}
}

// Recent returns the newest records, most recent first.
//
// Description:
//
//	Walks the store backwards from the highest sequence number.
//	Corrupted records are skipped and counted, not returned.
//
// Inputs:
//
//	ctx - Checked for cancellation between records.
//	n - Maximum records to return. Zero or negative means all.
//
// Outputs:
//
//	[]Record - Newest first. Empty if the store is empty.
//	error - Non-nil if the store is closed or the read fails.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	prefix := []byte(keyPrefix)
	var records []Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(keyPrefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if n > 0 && len(records) >= n {
				return nil
			}

			item := it.Item()
			err := item.Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					if errors.Is(err, ErrCorrupted) {
						s.corrupted.Add(1)
						s.logger.Warn("skipping corrupted journal record",
							slog.String("key", string(item.Key())),
							slog.String("error", err.Error()))
						return nil
					}
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	return records, nil
}

// Prune drops the oldest records, keeping the newest n.
//
// Description:
//
//	Deletes records from the front of the journal until at most keep
//	remain. Sequence numbers are not reused after pruning.
//
// Inputs:
//
//	ctx - Checked for cancellation before the delete.
//	keep - Number of newest records to retain. Must be non-negative.
//
// Outputs:
//
//	int - Number of records deleted.
//	error - Non-nil if the store is closed or the delete fails.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, errors.New("keep must be non-negative")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.closed.Load() {
		return 0, ErrClosed
	}

	prefix := []byte(keyPrefix)
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan journal: %w", err)
	}

	if len(keys) <= keep {
		return 0, nil
	}
	doomed := keys[:len(keys)-keep]

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}

	s.logger.Info("journal pruned",
		slog.Int("deleted", len(doomed)),
		slog.Int("kept", keep))

	return len(doomed), nil
}

// Stats returns store counters.
func (s *Store) Stats() Stats {
	return Stats{
		LastSeq:   s.seq.Load(),
		Appended:  s.appended.Load(),
		Corrupted: s.corrupted.Load(),
	}
}

// Sync flushes pending writes to disk. No-op for in-memory stores.
func (s *Store) Sync() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

// Close syncs and releases the store. Safe to call twice.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	if !s.inMemory {
		if err := s.db.Sync(); err != nil {
			s.logger.Warn("sync before close failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}
