package luxdb

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// Tx stages insert/update/delete operations against a snapshot of the
// table and commits them atomically: all applied and persisted, or none.
//
// Create via [DB.Begin], which acquires the table lock on the caller's
// behalf. The lock is held for the transaction's entire open lifetime -
// no other mutation can interleave - and is released exactly once when
// the transaction reaches a terminal state via [Tx.Commit] or
// [Tx.Rollback].
//
// Staged operations are deferred: Commit applies them to the snapshot
// captured at Begin and publishes the result only after it has been
// persisted. The live table is never touched before that point, so
// concurrent lock-free reads during an open transaction always observe
// the consistent pre-transaction state, and a failed or rolled-back
// transaction leaves the table untouched by construction.
type Tx[T any] struct {
	db       *DB[T]
	id       string
	snapshot []byte
	ops      []stagedOp[T]
	done     bool
	release  sync.Once
}

// stagedOp is one deferred mutation. Exactly one of the payload field
// groups is set, selected by kind.
type stagedOp[T any] struct {
	kind  EntryType
	items []T
	pred  func(T) bool
	patch map[string]any
}

// Begin starts a transaction: acquires the table lock, captures an
// immutable serialized snapshot of the current table, and logs a BEGIN
// marker when the durable log is enabled.
//
// The caller must finish with [Tx.Commit] or [Tx.Rollback]; until then
// every other mutation blocks on the lock.
func (db *DB[T]) Begin(ctx context.Context) (*Tx[T], error) {
	if db == nil || db.closed.Load() {
		return nil, ErrClosed
	}

	err := db.mutex.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	snapshot, err := encodeTable(db.snapshot())
	if err != nil {
		db.mutex.Release()

		return nil, err
	}

	tx := &Tx[T]{db: db, id: newTxID(), snapshot: snapshot}

	err = db.logEntry(Entry{Type: OpBegin, TxID: tx.id})
	if err != nil {
		db.mutex.Release()

		return nil, err
	}

	return tx, nil
}

// newTxID returns a random transaction identifier.
func newTxID() string {
	var buf [8]byte

	_, _ = rand.Read(buf[:])

	return hex.EncodeToString(buf[:])
}

// Insert stages items for appending to the table on [Tx.Commit].
// Returns [ErrTxFinalized] after Commit or Rollback.
func (tx *Tx[T]) Insert(items ...T) error {
	if tx.done {
		return ErrTxFinalized
	}

	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}

		err = tx.db.logEntry(Entry{Type: OpInsert, Data: data, TxID: tx.id})
		if err != nil {
			return err
		}
	}

	tx.ops = append(tx.ops, stagedOp[T]{kind: OpInsert, items: items})

	return nil
}

// Update stages a shallow merge of patch onto the first record matching
// pred. Only keys explicitly present in patch overwrite existing
// fields. Returns [ErrTxFinalized] after Commit or Rollback.
//
// Staged operations observe earlier staged operations' effects, because
// they run in order during Commit.
func (tx *Tx[T]) Update(pred func(T) bool, patch map[string]any) error {
	if tx.done {
		return ErrTxFinalized
	}

	if pred == nil {
		return fmt.Errorf("predicate is nil")
	}

	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	err = tx.db.logEntry(Entry{Type: OpUpdate, Data: data, TxID: tx.id})
	if err != nil {
		return err
	}

	tx.ops = append(tx.ops, stagedOp[T]{kind: OpUpdate, pred: pred, patch: patch})

	return nil
}

// Delete stages removal of every record matching pred.
// Returns [ErrTxFinalized] after Commit or Rollback.
func (tx *Tx[T]) Delete(pred func(T) bool) error {
	if tx.done {
		return ErrTxFinalized
	}

	if pred == nil {
		return fmt.Errorf("predicate is nil")
	}

	err := tx.db.logEntry(Entry{Type: OpDelete, TxID: tx.id})
	if err != nil {
		return err
	}

	tx.ops = append(tx.ops, stagedOp[T]{kind: OpDelete, pred: pred})

	return nil
}

// ID returns the transaction identifier used to tag log entries.
func (tx *Tx[T]) ID() string {
	return tx.id
}

// Commit applies every staged operation to the Begin-time snapshot in
// staging order, persists the resulting table, publishes it as the live
// table, and logs a COMMIT marker.
//
// If applying or persisting fails, the error wraps [ErrCommitFailed]
// and the live table is left exactly as it was at Begin; retrying the
// whole transaction is then safe. The table lock is released exactly
// once regardless of outcome.
func (tx *Tx[T]) Commit(ctx context.Context) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}

	if tx.done {
		return ErrTxFinalized
	}

	tx.done = true

	defer tx.releaseLock()

	next, err := tx.applyOps()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	err = ctx.Err()
	if err == nil {
		err = tx.db.store.Write(next)
	}

	if err != nil {
		return fmt.Errorf("%w: persisting table: %w", ErrCommitFailed, err)
	}

	tx.db.publish(next)

	// Commit is durable in the data file; marker and checkpoint failures
	// only cost a redundant replay later.
	_ = tx.db.logEntry(Entry{Type: OpCommit, TxID: tx.id})

	tx.db.checkpointIfDue()

	return nil
}

// applyOps decodes the Begin-time snapshot and runs the staged
// operations against it in order, returning the resulting table.
func (tx *Tx[T]) applyOps() ([]T, error) {
	table, err := decodeTable[T](tx.snapshot)
	if err != nil {
		return nil, err
	}

	for _, op := range tx.ops {
		switch op.kind {
		case OpInsert:
			table = append(table, op.items...)
		case OpUpdate:
			_, err := updateFirst(table, op.pred, op.patch)
			if err != nil {
				return nil, err
			}
		case OpDelete:
			table = deleteMatching(table, op.pred)
		}
	}

	return table, nil
}

// Rollback discards the staged operations, logs a ROLLBACK marker, and
// releases the table lock. The live table was never modified, so there
// is nothing to undo.
//
// Idempotent: calling it again after the first call (or after Commit)
// is a no-op that neither errors nor double-releases the lock.
func (tx *Tx[T]) Rollback() error {
	if tx == nil || tx.done {
		return nil
	}

	tx.done = true
	tx.ops = nil

	defer tx.releaseLock()

	_ = tx.db.logEntry(Entry{Type: OpRollback, TxID: tx.id})

	return nil
}

func (tx *Tx[T]) releaseLock() {
	tx.release.Do(func() {
		tx.db.mutex.Release()
	})
}
