package luxdb

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Sentinel errors returned by the public luxdb API.
//
// Use [errors.Is] to check for them:
//
//	if errors.Is(err, luxdb.ErrLockTimeout) { ... }
var (
	// ErrLockTimeout indicates the table lock was not acquired within the
	// configured wait bound. Retryable by the caller.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrLockRevoked indicates a pending acquire was aborted because
	// [Mutex.ForceRelease] dropped all waiters. Never returned during
	// normal operation.
	ErrLockRevoked = errors.New("lock revoked")

	// ErrLogWrite indicates an append to the durable log failed.
	// The log must be treated as untrustworthy until the next
	// successful append.
	ErrLogWrite = errors.New("log write")

	// ErrLogRead indicates the durable log could not be read or contains
	// a malformed entry.
	ErrLogRead = errors.New("log read")

	// ErrTxFinalized indicates an operation was attempted on a committed
	// or rolled-back transaction. Always a caller bug; never retried.
	ErrTxFinalized = errors.New("transaction finalized")

	// ErrCommitFailed indicates persistence failed during commit. By the
	// time this error surfaces the table has already been restored from
	// the pre-transaction snapshot; retrying the whole transaction is safe.
	ErrCommitFailed = errors.New("transaction commit failed")

	// ErrClosed indicates an operation was attempted on a closed DB.
	ErrClosed = errors.New("luxdb closed")
)

// Storage error codes carried by [StorageError].
const (
	CodeNotFound   = "ENOENT"
	CodeNoSpace    = "ENOSPC"
	CodePermission = "EACCES"
	CodeParse      = "PARSE_ERROR"
	CodeIO         = "IO_ERROR"
)

// StorageError is the typed error returned by the persistent store for
// file I/O and decode failures. Code is one of the Code* constants.
//
// Use [errors.As] to extract structured fields:
//
//	var sErr *luxdb.StorageError
//	if errors.As(err, &sErr) && sErr.Code == luxdb.CodeNoSpace { ... }
type StorageError struct {
	// Code is the OS-level cause code (ENOENT, ENOSPC, EACCES, ...) or
	// PARSE_ERROR for decode failures.
	Code string

	// Path is the file the operation targeted.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error formats as "storage <code>: <path>: <cause>".
func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}

	if e.Err == nil {
		return fmt.Sprintf("storage %s: %s", e.Code, e.Path)
	}

	return fmt.Sprintf("storage %s: %s: %v", e.Code, e.Path, e.Err)
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// storageErr wraps err as a *StorageError, classifying the OS-level cause.
// Returns nil if err is nil; passes through existing *StorageError values.
func storageErr(path string, err error) error {
	if err == nil {
		return nil
	}

	existing := &StorageError{}
	if errors.As(err, &existing) {
		return err
	}

	return &StorageError{Code: classifyOSError(err), Path: path, Err: err}
}

// classifyOSError maps an OS error to a storage error code.
func classifyOSError(err error) string {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return CodeNotFound
	case errors.Is(err, os.ErrPermission):
		return CodePermission
	case errors.Is(err, syscall.ENOSPC):
		return CodeNoSpace
	default:
		return CodeIO
	}
}
