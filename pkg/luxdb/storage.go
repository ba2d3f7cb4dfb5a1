package luxdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// Storage is the persistent store consumed by [DB]: the durable sink
// the table owner and transaction manager flush full table snapshots
// into.
//
// Failures are reported as a [StorageError] carrying an OS-level cause
// code (ENOENT, ENOSPC, EACCES, PARSE_ERROR, ...).
type Storage[T any] interface {
	// Exists reports whether the backing file is present.
	Exists() bool

	// Read returns the ordered record sequence, or an empty sequence if
	// the backing file is absent.
	Read() ([]T, error)

	// Write replaces the backing file with a full snapshot of records.
	Write(records []T) error

	// Initialize creates an empty backing file if absent.
	Initialize() error
}

// FileStorage stores the table as a single pretty-printed JSON file,
// entirely rewritten on every persist. Writes go through a temp file
// and rename so a crashed persist never leaves a torn data file.
type FileStorage[T any] struct {
	path string
}

// NewFileStorage creates a FileStorage backed by the file at path.
func NewFileStorage[T any](path string) *FileStorage[T] {
	return &FileStorage[T]{path: path}
}

// Exists implements [Storage].
func (s *FileStorage[T]) Exists() bool {
	info, err := os.Stat(s.path)

	return err == nil && info.Mode().IsRegular()
}

// Read implements [Storage].
func (s *FileStorage[T]) Read() ([]T, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}

		return nil, storageErr(s.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []T{}, nil
	}

	var records []T

	err = json.Unmarshal(data, &records)
	if err != nil {
		return nil, &StorageError{Code: CodeParse, Path: s.path, Err: err}
	}

	return records, nil
}

// Write implements [Storage].
func (s *FileStorage[T]) Write(records []T) error {
	if records == nil {
		records = []T{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &StorageError{Code: CodeParse, Path: s.path, Err: err}
	}

	data = append(data, '\n')

	err = atomic.WriteFile(s.path, bytes.NewReader(data))
	if err != nil {
		return storageErr(s.path, err)
	}

	return nil
}

// Initialize implements [Storage].
func (s *FileStorage[T]) Initialize() error {
	if s.Exists() {
		return nil
	}

	return s.Write(nil)
}

// Path returns the backing file location.
func (s *FileStorage[T]) Path() string {
	return s.path
}

var _ Storage[any] = (*FileStorage[any])(nil)

// encodeTable serializes records for snapshots.
func encodeTable[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	return data, nil
}

// decodeTable restores a snapshot produced by [encodeTable].
func decodeTable[T any](data []byte) ([]T, error) {
	var records []T

	err := json.Unmarshal(data, &records)
	if err != nil {
		return nil, fmt.Errorf("snapshot restore: %w", err)
	}

	if records == nil {
		records = []T{}
	}

	return records, nil
}
