package luxdb_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abubalo/luxdb/pkg/luxdb"
)

// account is the record type used across the store tests.
type account struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Balance int    `json:"balance"`
}

func byID(id string) func(account) bool {
	return func(a account) bool { return a.ID == id }
}

func byStatus(status string) func(account) bool {
	return func(a account) bool { return a.Status == status }
}

// openTestDB opens a store on a fresh temp file.
func openTestDB(t *testing.T, mutate func(*luxdb.Config[account])) *luxdb.DB[account] {
	t.Helper()

	cfg := luxdb.Config[account]{
		Path: filepath.Join(t.TempDir(), "accounts.json"),
	}

	if mutate != nil {
		mutate(&cfg)
	}

	db, err := luxdb.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// hookedStorage wraps a Storage to inject write failures and delays.
type hookedStorage[T any] struct {
	inner luxdb.Storage[T]

	mu         sync.Mutex
	failWrite  error
	writeDelay time.Duration
	writeBegan chan struct{}
	writes     int
}

func newHookedStorage[T any](inner luxdb.Storage[T]) *hookedStorage[T] {
	return &hookedStorage[T]{
		inner:      inner,
		writeBegan: make(chan struct{}, 16),
	}
}

func (s *hookedStorage[T]) setFailWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failWrite = err
}

func (s *hookedStorage[T]) setWriteDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeDelay = d
}

func (s *hookedStorage[T]) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

func (s *hookedStorage[T]) Exists() bool { return s.inner.Exists() }

func (s *hookedStorage[T]) Read() ([]T, error) { return s.inner.Read() }

func (s *hookedStorage[T]) Initialize() error { return s.inner.Initialize() }

func (s *hookedStorage[T]) Write(records []T) error {
	s.mu.Lock()
	fail := s.failWrite
	delay := s.writeDelay
	s.writes++
	s.mu.Unlock()

	select {
	case s.writeBegan <- struct{}{}:
	default:
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	if fail != nil {
		return fail
	}

	return s.inner.Write(records)
}
