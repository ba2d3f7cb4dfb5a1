package luxdb

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"
)

// EntryType identifies a durable-log entry kind.
type EntryType string

// Log entry kinds. Insert/update/delete carry a payload; begin/commit/
// rollback are transaction lifecycle markers.
const (
	OpInsert   EntryType = "INSERT"
	OpUpdate   EntryType = "UPDATE"
	OpDelete   EntryType = "DELETE"
	OpBegin    EntryType = "BEGIN"
	OpCommit   EntryType = "COMMIT"
	OpRollback EntryType = "ROLLBACK"
)

// valid reports whether t is a known entry kind.
func (t EntryType) valid() bool {
	switch t {
	case OpInsert, OpUpdate, OpDelete, OpBegin, OpCommit, OpRollback:
		return true
	default:
		return false
	}
}

// lifecycle reports whether t is a transaction boundary marker.
func (t EntryType) lifecycle() bool {
	return t == OpBegin || t == OpCommit || t == OpRollback
}

// Entry is one immutable record of the durable log.
//
// Serialized as a single JSON object per line:
//
//	{"timestamp":1712345678901,"type":"INSERT","data":{...},"transactionId":"..."}
type Entry struct {
	// Timestamp is unix milliseconds. Filled by [WAL.Append] when zero.
	Timestamp int64 `json:"timestamp"`

	// Type is the operation kind.
	Type EntryType `json:"type"`

	// Data is the record or partial-record payload. Empty for
	// lifecycle markers.
	Data json.RawMessage `json:"data,omitempty"`

	// TxID tags the entry with the transaction it belongs to.
	// Empty for non-transactional operations.
	TxID string `json:"transactionId,omitempty"`
}

// WAL is an append-only durable log of operations and transaction
// boundaries. It makes commits durable ahead of the main data file and
// supports replay after an unclean shutdown.
//
// The log file is independent of the main data file: appended during
// normal operation, truncated on [WAL.Checkpoint], deleted on
// [WAL.Destroy].
//
// Safe for concurrent use, though a [DB] serializes all writers through
// its table lock anyway.
type WAL struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	count     int
	threshold int
	destroyed bool
}

// OpenWAL opens (creating if absent) the durable log at path.
// threshold is the entry count at which [WAL.NeedsCheckpoint] reports
// true; zero or negative selects the default (100).
func OpenWAL(path string, threshold int) (*WAL, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is empty", ErrLogWrite)
	}

	if threshold <= 0 {
		threshold = defaultCheckpointThreshold
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrLogWrite, path, err)
	}

	wal := &WAL{path: path, file: file, threshold: threshold}

	// Resume the entry count from whatever the file already holds, so
	// the checkpoint threshold survives reopen.
	entries, err := wal.readAllLocked()
	if err != nil {
		_ = file.Close()

		return nil, err
	}

	wal.count = len(entries)

	return wal, nil
}

// Append durably writes one entry. Fails with an error wrapping
// [ErrLogWrite] if the underlying append fails (disk full, permission,
// missing directory). A failed append leaves the log untrustworthy
// until the next successful one.
func (w *WAL) Append(entry Entry) error {
	if !entry.Type.valid() {
		return fmt.Errorf("%w: invalid entry type %q", ErrLogWrite, entry.Type)
	}

	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrLogWrite, err)
	}

	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return fmt.Errorf("%w: log destroyed", ErrLogWrite)
	}

	_, err = w.file.Write(line)
	if err != nil {
		return fmt.Errorf("%w: append %s: %w", ErrLogWrite, w.path, err)
	}

	err = w.file.Sync()
	if err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrLogWrite, w.path, err)
	}

	w.count++

	return nil
}

// ReadAll returns the ordered sequence of entries currently in the log,
// or an empty sequence if no log file exists yet. Fails with an error
// wrapping [ErrLogRead] on a malformed log.
func (w *WAL) ReadAll() ([]Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readAllLocked()
}

func (w *WAL) readAllLocked() ([]Entry, error) {
	if w.destroyed {
		return nil, nil
	}

	_, err := w.file.Seek(0, io.SeekStart)
	if err != nil {
		return nil, fmt.Errorf("%w: seek %s: %w", ErrLogRead, w.path, err)
	}

	var entries []Entry

	scanner := bufio.NewScanner(w.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry

		err := json.Unmarshal(line, &entry)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", ErrLogRead, w.path, err)
		}

		if !entry.Type.valid() {
			return nil, fmt.Errorf("%w: invalid entry type %q", ErrLogRead, entry.Type)
		}

		entries = append(entries, entry)
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", ErrLogRead, w.path, err)
	}

	return entries, nil
}

// Replay computes the entries that belong to operations not yet known
// to be durably reflected in the main data file, in an order safe to
// reapply:
//
//   - Non-transactional operations come first, in log order. They were
//     logged before their snapshot write, so a log still holding them
//     means durability was never confirmed.
//   - Operations of transactions that never reached a COMMIT or
//     ROLLBACK marker follow, grouped per transaction, each group in
//     log order. A terminal marker discards the group: commit means the
//     effects are in the snapshot written at commit time, rollback
//     means they must never be reapplied.
func (w *WAL) Replay() ([]Entry, error) {
	entries, err := w.ReadAll()
	if err != nil {
		return nil, err
	}

	var (
		direct  []Entry
		pending = make(map[string][]Entry)
		order   []string
	)

	for _, entry := range entries {
		if entry.Type.lifecycle() {
			if entry.TxID == "" {
				continue
			}

			switch entry.Type {
			case OpBegin:
				if _, ok := pending[entry.TxID]; !ok {
					pending[entry.TxID] = nil
					order = append(order, entry.TxID)
				}
			case OpCommit, OpRollback:
				// Drop the id from order too: if the id reappears later,
				// only its fresh occurrence must be emitted.
				delete(pending, entry.TxID)
				order = slices.DeleteFunc(order, func(id string) bool {
					return id == entry.TxID
				})
			}

			continue
		}

		if entry.TxID == "" {
			direct = append(direct, entry)

			continue
		}

		if _, ok := pending[entry.TxID]; !ok {
			order = append(order, entry.TxID)
		}

		pending[entry.TxID] = append(pending[entry.TxID], entry)
	}

	result := direct

	for _, txid := range order {
		result = append(result, pending[txid]...)
	}

	return result, nil
}

// Checkpoint truncates the log to empty. Must only be invoked after the
// caller has confirmed the corresponding state is durably reflected in
// the persistent store.
func (w *WAL) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return fmt.Errorf("%w: log destroyed", ErrLogWrite)
	}

	err := w.file.Truncate(0)
	if err != nil {
		return fmt.Errorf("%w: truncate %s: %w", ErrLogWrite, w.path, err)
	}

	err = w.file.Sync()
	if err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrLogWrite, w.path, err)
	}

	w.count = 0

	return nil
}

// NeedsCheckpoint reports whether the entry count has reached the
// configured threshold, signaling the owner to persist a full snapshot
// and then checkpoint, keeping the log bounded.
func (w *WAL) NeedsCheckpoint() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.count >= w.threshold
}

// Count reports the number of entries appended since the last
// checkpoint. Observability only.
func (w *WAL) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.count
}

// Destroy deletes the log file entirely. Irreversible; used only for
// explicit teardown, never as part of normal commit or rollback.
func (w *WAL) Destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return nil
	}

	w.destroyed = true

	closeErr := w.file.Close()

	removeErr := os.Remove(w.path)
	if removeErr != nil && errors.Is(removeErr, os.ErrNotExist) {
		removeErr = nil
	}

	if closeErr != nil || removeErr != nil {
		return fmt.Errorf("%w: destroy %s: %w", ErrLogWrite, w.path, errors.Join(closeErr, removeErr))
	}

	return nil
}

// Close releases the log file handle without deleting the file.
// Safe to call multiple times.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return nil
	}

	w.destroyed = true

	err := w.file.Close()
	if err != nil {
		return fmt.Errorf("close wal: %w", err)
	}

	return nil
}
