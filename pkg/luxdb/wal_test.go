package luxdb_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/abubalo/luxdb/pkg/luxdb"
)

func openTestWAL(t *testing.T, threshold int) *luxdb.WAL {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := luxdb.OpenWAL(path, threshold)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}

	t.Cleanup(func() { _ = w.Close() })

	return w
}

func mustAppend(t *testing.T, w *luxdb.WAL, entry luxdb.Entry) {
	t.Helper()

	err := w.Append(entry)
	if err != nil {
		t.Fatalf("append %s: %v", entry.Type, err)
	}
}

func rawRecord(t *testing.T, v any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	return data
}

func Test_WAL_ReadAll_Returns_Appended_Entries_In_Order(t *testing.T) {
	t.Parallel()

	w := openTestWAL(t, 0)

	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, Data: rawRecord(t, map[string]any{"id": 1})})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpDelete, Data: rawRecord(t, map[string]any{"id": 1})})

	entries, err := w.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}

	if entries[0].Type != luxdb.OpInsert || entries[1].Type != luxdb.OpDelete {
		t.Fatalf("order = %s, %s", entries[0].Type, entries[1].Type)
	}

	if entries[0].Timestamp == 0 {
		t.Fatal("append did not fill timestamp")
	}
}

func Test_WAL_ReadAll_Returns_Empty_When_Log_Is_New(t *testing.T) {
	t.Parallel()

	w := openTestWAL(t, 0)

	entries, err := w.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("len = %d, want 0", len(entries))
	}
}

func Test_WAL_ReadAll_Fails_When_Log_Is_Malformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wal")

	err := os.WriteFile(path, []byte("{\"timestamp\":1,\"type\":\"INSERT\"}\nnot json\n"), 0o600)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := luxdb.OpenWAL(path, 0)
	if err == nil {
		_ = w.Close()
	}

	if !errors.Is(err, luxdb.ErrLogRead) {
		t.Fatalf("err = %v, want ErrLogRead", err)
	}
}

func Test_WAL_ReadAll_Fails_When_Entry_Type_Unknown(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wal")

	err := os.WriteFile(path, []byte("{\"timestamp\":1,\"type\":\"UPSERT\"}\n"), 0o600)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err = luxdb.OpenWAL(path, 0)
	if !errors.Is(err, luxdb.ErrLogRead) {
		t.Fatalf("err = %v, want ErrLogRead", err)
	}
}

func Test_WAL_Open_Fails_When_Directory_Missing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "test.wal")

	_, err := luxdb.OpenWAL(path, 0)
	if !errors.Is(err, luxdb.ErrLogWrite) {
		t.Fatalf("err = %v, want ErrLogWrite", err)
	}
}

func Test_WAL_Replay_Returns_Open_Transaction_Ops_In_Order(t *testing.T) {
	t.Parallel()

	w := openTestWAL(t, 0)

	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpBegin, TxID: "tx1"})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, TxID: "tx1", Data: rawRecord(t, map[string]any{"id": 1})})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, TxID: "tx1", Data: rawRecord(t, map[string]any{"id": 2})})

	entries, err := w.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2 (both buffered inserts)", len(entries))
	}

	var first, second map[string]any

	_ = json.Unmarshal(entries[0].Data, &first)
	_ = json.Unmarshal(entries[1].Data, &second)

	if first["id"] != float64(1) || second["id"] != float64(2) {
		t.Fatalf("replay order = %v, %v", first["id"], second["id"])
	}
}

func Test_WAL_Replay_Discards_Committed_Transaction(t *testing.T) {
	t.Parallel()

	w := openTestWAL(t, 0)

	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpBegin, TxID: "tx1"})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, TxID: "tx1", Data: rawRecord(t, map[string]any{"id": 1})})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, TxID: "tx1", Data: rawRecord(t, map[string]any{"id": 2})})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpCommit, TxID: "tx1"})

	entries, err := w.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("len = %d, want 0 after commit marker", len(entries))
	}
}

func Test_WAL_Replay_Discards_RolledBack_Transaction(t *testing.T) {
	t.Parallel()

	w := openTestWAL(t, 0)

	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpBegin, TxID: "tx1"})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpDelete, TxID: "tx1"})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpRollback, TxID: "tx1"})

	entries, err := w.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("len = %d, want 0 after rollback marker", len(entries))
	}
}

func Test_WAL_Replay_Emits_Reused_TxID_Once(t *testing.T) {
	t.Parallel()

	w := openTestWAL(t, 0)

	// tx1 commits, then the same id shows up again in a transaction that
	// never reached a terminal marker.
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpBegin, TxID: "tx1"})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, TxID: "tx1", Data: rawRecord(t, map[string]any{"id": "committed"})})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpCommit, TxID: "tx1"})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpBegin, TxID: "tx1"})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, TxID: "tx1", Data: rawRecord(t, map[string]any{"id": "reopened"})})

	entries, err := w.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("len = %d, want exactly 1 entry for the reopened id", len(entries))
	}

	var rec map[string]any

	err = json.Unmarshal(entries[0].Data, &rec)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	if rec["id"] != "reopened" {
		t.Fatalf("replayed id = %v, want the post-commit occurrence only", rec["id"])
	}
}

func Test_WAL_Replay_Orders_Direct_Ops_Before_Open_Transactions(t *testing.T) {
	t.Parallel()

	w := openTestWAL(t, 0)

	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpBegin, TxID: "tx1"})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, TxID: "tx1", Data: rawRecord(t, map[string]any{"id": "txrec"})})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, Data: rawRecord(t, map[string]any{"id": "direct"})})

	entries, err := w.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}

	if entries[0].TxID != "" {
		t.Fatalf("first replayed entry is transactional (txid %q), want direct op first", entries[0].TxID)
	}

	if entries[1].TxID != "tx1" {
		t.Fatalf("second replayed entry txid = %q, want tx1", entries[1].TxID)
	}
}

func Test_WAL_Checkpoint_Truncates_Log(t *testing.T) {
	t.Parallel()

	const threshold = 5

	w := openTestWAL(t, threshold)

	for range threshold {
		mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, Data: rawRecord(t, map[string]any{"id": 1})})
	}

	if !w.NeedsCheckpoint() {
		t.Fatalf("needs checkpoint = false at count %d, threshold %d", w.Count(), threshold)
	}

	err := w.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	entries, err := w.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("len = %d after checkpoint, want 0", len(entries))
	}

	if w.NeedsCheckpoint() {
		t.Fatal("needs checkpoint = true after checkpoint")
	}
}

func Test_WAL_NeedsCheckpoint_Is_False_Below_Threshold(t *testing.T) {
	t.Parallel()

	w := openTestWAL(t, 10)

	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, Data: rawRecord(t, map[string]any{"id": 1})})

	if w.NeedsCheckpoint() {
		t.Fatal("needs checkpoint = true below threshold")
	}
}

func Test_WAL_Count_Survives_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := luxdb.OpenWAL(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, Data: rawRecord(t, map[string]any{"id": 1})})
	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, Data: rawRecord(t, map[string]any{"id": 2})})

	err = w.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	w, err = luxdb.OpenWAL(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	defer func() { _ = w.Close() }()

	if w.Count() != 2 {
		t.Fatalf("count after reopen = %d, want 2", w.Count())
	}
}

func Test_WAL_Destroy_Deletes_Log_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := luxdb.OpenWAL(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	mustAppend(t, w, luxdb.Entry{Type: luxdb.OpInsert, Data: rawRecord(t, map[string]any{"id": 1})})

	err = w.Destroy()
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}

	_, err = os.Stat(path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stat after destroy: %v, want not-exist", err)
	}

	err = w.Append(luxdb.Entry{Type: luxdb.OpInsert})
	if !errors.Is(err, luxdb.ErrLogWrite) {
		t.Fatalf("append after destroy: %v, want ErrLogWrite", err)
	}
}
