package luxdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync/atomic"
)

// DB is an embedded, single-file document store: an in-memory table of
// records durably mirrored to disk, with atomic multi-operation
// transactions via [DB.Begin].
//
// DB owns the canonical in-memory table and the table lock, and wires
// the transaction manager, durable log, and persistent store together.
// Every mutation and every persistence write runs under the lock;
// waiters are served FIFO and time out after [Config.LockTimeout].
//
// Reads ([DB.GetOne], [DB.GetAll]) take no lock: they favor
// availability over strict snapshot isolation relative to writers.
// Writers never mutate a published table in place; each mutation builds
// a fresh slice and publishes it atomically, so a concurrent read
// observes either the previous or the new table, never a torn one.
// Because transactions never publish before commit, reads during an
// open transaction still observe the consistent pre-transaction state.
type DB[T any] struct {
	cfg    Config[T]
	mutex  *Mutex
	wal    *WAL // nil when the durable log is disabled
	store  Storage[T]
	table  atomic.Pointer[[]T]
	closed atomic.Bool
}

// Open initializes a store for the configured data file, creating it
// (with an empty table) if absent, and loads the table into memory.
//
// The durable log is NOT replayed automatically on open; crash recovery
// is an explicit opt-in via [DB.Recover].
func Open[T any](cfg Config[T]) (*DB[T], error) {
	if cfg.Path == "" && cfg.Storage == nil {
		return nil, errors.New("luxdb: Config.Path is required")
	}

	cfg = cfg.withDefaults()

	err := cfg.Storage.Initialize()
	if err != nil {
		return nil, err
	}

	table, err := cfg.Storage.Read()
	if err != nil {
		return nil, err
	}

	db := &DB[T]{
		cfg:   cfg,
		mutex: NewMutex(cfg.LockTimeout),
		store: cfg.Storage,
	}
	db.publish(table)

	if !cfg.DisableWAL {
		db.wal, err = OpenWAL(cfg.Path+".wal", cfg.CheckpointThreshold)
		if err != nil {
			return nil, err
		}
	}

	return db, nil
}

// snapshot returns the currently published table. The returned slice is
// immutable; mutation paths must copy before changing it.
func (db *DB[T]) snapshot() []T {
	return *db.table.Load()
}

// publish atomically swaps in table as the new published state.
// The caller must never mutate table afterwards.
func (db *DB[T]) publish(table []T) {
	if table == nil {
		table = []T{}
	}

	db.table.Store(&table)
}

// Close waits for the in-flight operation (if any) to release the table
// lock, then releases the durable log handle. Safe on nil; idempotent.
//
// Closing while a transaction is open blocks until the transaction
// finishes or the lock wait times out.
func (db *DB[T]) Close() error {
	if db == nil || db.closed.Load() {
		return nil
	}

	err := db.mutex.Acquire(context.Background())
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	defer db.mutex.Release()

	if db.closed.Load() {
		return nil
	}

	db.closed.Store(true)

	if db.wal != nil {
		return db.wal.Close()
	}

	return nil
}

// Insert appends items to the table and persists the full snapshot.
func (db *DB[T]) Insert(ctx context.Context, items ...T) error {
	return db.withLock(ctx, func() error {
		for _, item := range items {
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}

			err = db.logEntry(Entry{Type: OpInsert, Data: data})
			if err != nil {
				return err
			}
		}

		cur := db.snapshot()
		next := make([]T, 0, len(cur)+len(items))
		next = append(next, cur...)
		next = append(next, items...)

		db.publish(next)

		return db.persistLocked()
	})
}

// UpdateOne shallow-merges patch onto the first record matching pred
// and persists. Reports whether a record matched.
//
// The durable log records the post-merge record before the new table is
// published, so a replayed entry can locate its target by "id".
func (db *DB[T]) UpdateOne(ctx context.Context, pred func(T) bool, patch map[string]any) (bool, error) {
	updated := false

	err := db.withLock(ctx, func() error {
		cur := db.snapshot()

		idx := indexOf(cur, pred)
		if idx < 0 {
			return nil
		}

		merged, err := mergeRecord(cur[idx], patch)
		if err != nil {
			return err
		}

		err = db.logMutated(OpUpdate, merged)
		if err != nil {
			return err
		}

		next := slices.Clone(cur)
		next[idx] = merged

		db.publish(next)

		updated = true

		return db.persistLocked()
	})

	return updated, err
}

// UpdateAll shallow-merges patch onto every record matching pred and
// persists. Returns the number of records updated.
func (db *DB[T]) UpdateAll(ctx context.Context, pred func(T) bool, patch map[string]any) (int, error) {
	updated := 0

	err := db.withLock(ctx, func() error {
		cur := db.snapshot()
		merged := make(map[int]T)

		for i, rec := range cur {
			if !pred(rec) {
				continue
			}

			m, err := mergeRecord(rec, patch)
			if err != nil {
				return err
			}

			merged[i] = m
		}

		if len(merged) == 0 {
			return nil
		}

		for _, m := range merged {
			err := db.logMutated(OpUpdate, m)
			if err != nil {
				return err
			}
		}

		next := slices.Clone(cur)
		for i, m := range merged {
			next[i] = m
		}

		db.publish(next)

		updated = len(merged)

		return db.persistLocked()
	})

	return updated, err
}

// DeleteOne removes the first record matching pred and persists.
// Reports whether a record was removed.
func (db *DB[T]) DeleteOne(ctx context.Context, pred func(T) bool) (bool, error) {
	deleted := false

	err := db.withLock(ctx, func() error {
		cur := db.snapshot()

		idx := indexOf(cur, pred)
		if idx < 0 {
			return nil
		}

		err := db.logMutated(OpDelete, cur[idx])
		if err != nil {
			return err
		}

		next := make([]T, 0, len(cur)-1)
		next = append(next, cur[:idx]...)
		next = append(next, cur[idx+1:]...)

		db.publish(next)

		deleted = true

		return db.persistLocked()
	})

	return deleted, err
}

// DeleteAll removes every record matching pred and persists.
// Returns the number of records removed.
func (db *DB[T]) DeleteAll(ctx context.Context, pred func(T) bool) (int, error) {
	deleted := 0

	err := db.withLock(ctx, func() error {
		cur := db.snapshot()

		removed := make([]T, 0)

		for _, rec := range cur {
			if pred(rec) {
				removed = append(removed, rec)
			}
		}

		if len(removed) == 0 {
			return nil
		}

		for _, rec := range removed {
			err := db.logMutated(OpDelete, rec)
			if err != nil {
				return err
			}
		}

		db.publish(deleteMatching(cur, pred))

		deleted = len(removed)

		return db.persistLocked()
	})

	return deleted, err
}

// indexOf returns the index of the first record matching pred, or -1.
func indexOf[T any](table []T, pred func(T) bool) int {
	for i, rec := range table {
		if pred(rec) {
			return i
		}
	}

	return -1
}

// Clear empties the table and persists the empty snapshot. The durable
// log is checkpointed afterwards: the empty snapshot supersedes every
// logged operation.
func (db *DB[T]) Clear(ctx context.Context) error {
	return db.withLock(ctx, func() error {
		db.publish([]T{})

		err := db.store.Write(db.snapshot())
		if err != nil {
			return err
		}

		if db.wal != nil {
			return db.wal.Checkpoint()
		}

		return nil
	})
}

// GetAll returns a copy of the table. Lock-free: never blocks on
// writers.
func (db *DB[T]) GetAll() []T {
	return slices.Clone(db.snapshot())
}

// GetOne returns the first record matching pred. Lock-free.
func (db *DB[T]) GetOne(pred func(T) bool) (T, bool) {
	for _, rec := range db.snapshot() {
		if pred(rec) {
			return rec, true
		}
	}

	var zero T

	return zero, false
}

// Count returns the number of records in the table. Lock-free.
func (db *DB[T]) Count() int {
	return len(db.snapshot())
}

// Recover replays the durable log: every operation not known to be
// durably committed into the data file is reapplied to the table, the
// table is persisted, and the log is checkpointed.
//
// Insert entries are re-appended. Update entries are re-merged into the
// record whose "id" field matches the payload's; delete entries remove
// the record matching the logged payload. Entries whose target cannot
// be identified are skipped (their effect is unrecoverable from the
// log alone).
func (db *DB[T]) Recover(ctx context.Context) error {
	if db.wal == nil {
		return errors.New("luxdb: recovery requires the durable log, which is disabled")
	}

	return db.withLock(ctx, func() error {
		entries, err := db.wal.Replay()
		if err != nil {
			return err
		}

		table := slices.Clone(db.snapshot())

		for _, entry := range entries {
			table, err = applyReplayEntry(table, entry)
			if err != nil {
				return err
			}
		}

		db.publish(table)

		err = db.store.Write(db.snapshot())
		if err != nil {
			return err
		}

		return db.wal.Checkpoint()
	})
}

// applyReplayEntry reapplies one replayed log entry to table and
// returns the resulting table.
func applyReplayEntry[T any](table []T, entry Entry) ([]T, error) {
	switch entry.Type {
	case OpInsert:
		var rec T

		err := json.Unmarshal(entry.Data, &rec)
		if err != nil {
			return table, fmt.Errorf("%w: decode insert payload: %w", ErrLogRead, err)
		}

		return append(table, rec), nil

	case OpUpdate:
		id, ok := recordID(entry.Data)
		if !ok {
			return table, nil
		}

		var patch map[string]any

		err := json.Unmarshal(entry.Data, &patch)
		if err != nil {
			return table, fmt.Errorf("%w: decode update payload: %w", ErrLogRead, err)
		}

		_, err = updateFirst(table, matchID[T](id), patch)

		return table, err

	case OpDelete:
		if len(entry.Data) == 0 {
			return table, nil
		}

		if id, ok := recordID(entry.Data); ok {
			table, _ = deleteFirst(table, matchID[T](id))

			return table, nil
		}

		table, _ = deleteFirst(table, func(rec T) bool {
			return jsonEqual(rec, entry.Data)
		})
	}

	return table, nil
}

// matchID builds a predicate matching records whose "id" field equals id.
func matchID[T any](id any) func(T) bool {
	return func(rec T) bool {
		recID, ok := idOf(rec)

		return ok && reflect.DeepEqual(recID, id)
	}
}

// Checkpoint persists the current table and truncates the durable log.
// No-op when the log is disabled.
func (db *DB[T]) Checkpoint(ctx context.Context) error {
	if db.wal == nil {
		return nil
	}

	return db.withLock(ctx, func() error {
		err := db.store.Write(db.snapshot())
		if err != nil {
			return err
		}

		return db.wal.Checkpoint()
	})
}

// Stats is an observability snapshot of a [DB].
type Stats struct {
	Records    int  // records in the in-memory table
	WALEntries int  // log entries since last checkpoint (0 if disabled)
	WALEnabled bool // durable log enabled
	Locked     bool // table lock currently held
	QueueDepth int  // pending lock acquirers
}

// Stats returns current counters. Never blocks.
func (db *DB[T]) Stats() Stats {
	s := Stats{
		Records:    len(db.snapshot()),
		Locked:     db.mutex.IsLocked(),
		QueueDepth: db.mutex.QueueDepth(),
	}

	if db.wal != nil {
		s.WALEnabled = true
		s.WALEntries = db.wal.Count()
	}

	return s
}

// Lock exposes the table lock for observability and for recovering a
// stuck lock via [Mutex.ForceRelease].
func (db *DB[T]) Lock() *Mutex {
	return db.mutex
}

// withLock runs fn with the table lock held, releasing it on every exit
// path.
func (db *DB[T]) withLock(ctx context.Context, fn func() error) error {
	if db == nil || db.closed.Load() {
		return ErrClosed
	}

	err := db.mutex.Acquire(ctx)
	if err != nil {
		return err
	}

	defer db.mutex.Release()

	return fn()
}

// logEntry appends one entry to the durable log, if enabled.
func (db *DB[T]) logEntry(entry Entry) error {
	if db.wal == nil {
		return nil
	}

	return db.wal.Append(entry)
}

// logMutated appends a data entry whose payload is the affected record.
func (db *DB[T]) logMutated(op EntryType, rec T) error {
	if db.wal == nil {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return db.wal.Append(Entry{Type: op, Data: data})
}

// persistLocked writes the full table snapshot to the persistent store
// and checkpoints the log once it has grown past the threshold.
// Must be called with the table lock held.
func (db *DB[T]) persistLocked() error {
	err := db.store.Write(db.snapshot())
	if err != nil {
		return err
	}

	db.checkpointIfDue()

	return nil
}

// checkpointIfDue truncates the log after a confirmed persist once the
// entry count reached the threshold. Truncation failure is ignored; the
// persist already succeeded and the next persist retries the truncate.
func (db *DB[T]) checkpointIfDue() {
	if db.wal != nil && db.wal.NeedsCheckpoint() {
		_ = db.wal.Checkpoint()
	}
}
