// Package luxdb is an embedded, single-file JSON document store.
//
// A store keeps an ordered table of records in memory, mirrors it to a
// single pretty-printed JSON file on every mutation, and offers atomic
// multi-operation transactions over a snapshot of the table. A FIFO-fair
// lock with a bounded wait serializes all mutation and persistence; an
// append-only write-ahead log makes committed work recoverable after an
// unclean shutdown via [DB.Recover].
//
// The data file is the source of truth and stays human-readable; the
// log is an internal artifact, truncated on checkpoint.
package luxdb
