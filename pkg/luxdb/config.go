package luxdb

import "time"

const (
	// defaultLockTimeout is the max wait for the table lock.
	defaultLockTimeout = 5 * time.Second

	// defaultCheckpointThreshold is the WAL entry count at which
	// [WAL.NeedsCheckpoint] starts reporting true.
	defaultCheckpointThreshold = 100
)

// Config holds all settings for a [DB].
//
// Only Path is required. Zero values for the remaining fields select the
// documented defaults.
type Config[T any] struct {
	// Path is the main data file. Created (holding an empty table) on
	// [Open] if it does not exist. The durable log lives next to it as
	// "<Path>.wal".
	Path string

	// LockTimeout is the max wait for the table lock before an operation
	// fails with [ErrLockTimeout]. Default: 5s.
	LockTimeout time.Duration

	// DisableWAL turns off the durable log. Mutations then rely solely
	// on the full-snapshot write to the data file, and crash recovery
	// via [DB.Recover] is unavailable. Default: WAL enabled.
	DisableWAL bool

	// CheckpointThreshold is the WAL entry count that triggers an
	// automatic snapshot-then-checkpoint after the next successful
	// persist. Default: 100.
	CheckpointThreshold int

	// Storage overrides the persistent store. Default: [FileStorage]
	// at Path. Mainly useful for tests that inject failures or delays.
	Storage Storage[T]
}

// withDefaults returns cfg with zero values replaced by defaults.
func (cfg Config[T]) withDefaults() Config[T] {
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaultLockTimeout
	}

	if cfg.CheckpointThreshold == 0 {
		cfg.CheckpointThreshold = defaultCheckpointThreshold
	}

	if cfg.Storage == nil {
		cfg.Storage = NewFileStorage[T](cfg.Path)
	}

	return cfg
}
