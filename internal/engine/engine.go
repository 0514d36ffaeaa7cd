// Package engine defines the embedded-engine collaborator interface the rest
// of the module is written against. The initial implementation uses bbolt
// (package engine/bolt); the interface allows swapping to another embedded
// transactional store without touching the sharding or transaction layers.
package engine

import "errors"

// Sentinel conditions a driver reports. Higher layers translate them into
// the public error taxonomy.
var (
	// ErrNotFound: the on-disk environment does not exist (read-only open).
	ErrNotFound = errors.New("engine: environment not found")
	// ErrLocked: another process holds the environment's write lock.
	ErrLocked = errors.New("engine: environment locked by another writer")
	// ErrFull: a write would exceed the environment's configured max size.
	ErrFull = errors.New("engine: environment full")
	// ErrReadOnly: a write was attempted in a read-only transaction.
	ErrReadOnly = errors.New("engine: read-only transaction")
	// ErrTxnDone: the transaction was already committed or rolled back.
	ErrTxnDone = errors.New("engine: transaction finished")
)

// Env is one on-disk environment: a single shard's file set.
type Env interface {
	// Begin starts a transaction. Writable transactions buffer mutations
	// until Commit; read-only transactions see a snapshot as of Begin.
	Begin(writable bool) (Txn, error)

	// Sync forces everything committed so far onto stable storage.
	Sync() error

	// Close releases file handles and locks. Open transactions must be
	// finished first.
	Close() error

	// Path returns the on-disk location of the environment.
	Path() string
}

// Txn is a transaction on one environment. Not safe for concurrent use.
type Txn interface {
	// Get returns the stored value bytes, or nil if the key is absent.
	// The returned slice is a copy and remains valid after the txn ends.
	Get(key []byte) ([]byte, error)

	// Put stores key/value. Returns ErrReadOnly on read-only transactions
	// and ErrFull when the write would exceed the environment's max size.
	Put(key, value []byte) error

	// Delete removes key, reporting whether it existed.
	Delete(key []byte) (bool, error)

	// ForEach scans all entries in the engine's native key order, invoking
	// fn for each. The slices passed to fn are only valid for the duration
	// of the call. Returning a non-nil error from fn stops the scan and is
	// returned unchanged.
	ForEach(fn func(key, value []byte) error) error

	// Count returns the number of live entries visible to the transaction.
	// This is a full scan: the engine keeps no authoritative live count
	// inside an open write transaction.
	Count() (int, error)

	// Commit makes buffered writes durable. On failure the buffered writes
	// are lost only if the transaction is also rolled back; the on-disk
	// state is never left partially written.
	Commit() error

	// Rollback abandons the transaction. Safe to call on read-only
	// transactions, where it simply releases the snapshot.
	Rollback() error
}
