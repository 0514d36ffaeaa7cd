// Package bolt implements the engine interface on top of bbolt, a
// single-file embedded B+ tree with serializable transactions (one writer,
// many MVCC readers).
//
// bbolt grows its data file on demand, so the fixed max-size contract is
// enforced here: each Put is charged an approximate on-disk cost against the
// configured limit, because bbolt allocates pages only at commit time and the
// transaction's reported size is blind to pending writes.
package bolt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"bigdict/internal/engine"
)

// dataBucket is the single bucket holding a shard's entries.
var dataBucket = []byte("data")

// lockTimeout bounds how long an open waits on another process's file lock
// before reporting a writer conflict.
const lockTimeout = time.Second

// putOverhead approximates bbolt's per-entry bookkeeping (leaf element
// header) when charging writes against the max size.
const putOverhead = 16

// Env is one bbolt database file.
type Env struct {
	db       *bolt.DB
	path     string
	maxSize  int64
	readonly bool
}

var _ engine.Env = (*Env)(nil)

// Open opens the database file at path. In read-write mode the file and its
// parent directories are created if absent; in read-only mode a missing file
// is engine.ErrNotFound. maxSize <= 0 means unbounded.
func Open(path string, readonly bool, maxSize int64) (*Env, error) {
	if readonly {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, path)
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		db, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true, Timeout: lockTimeout})
		if err != nil {
			return nil, mapOpenErr(path, err)
		}
		return &Env{db: db, path: path, maxSize: maxSize, readonly: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating shard dir: %w", err)
	}
	opts := &bolt.Options{Timeout: lockTimeout}
	if maxSize > 0 {
		// Pre-size the mmap so steady-state writes avoid remapping.
		opts.InitialMmapSize = int(maxSize)
	}
	db, err := bolt.Open(path, 0600, opts)
	if err != nil {
		return nil, mapOpenErr(path, err)
	}
	// The data bucket must exist before any transaction uses it.
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating data bucket: %w", err)
	}
	return &Env{db: db, path: path, maxSize: maxSize}, nil
}

func mapOpenErr(path string, err error) error {
	if errors.Is(err, bolt.ErrTimeout) {
		return fmt.Errorf("%w: %s", engine.ErrLocked, path)
	}
	return fmt.Errorf("opening bolt db %s: %w", path, err)
}

// Begin starts a transaction. A writable Begin on a read-only environment
// fails with engine.ErrReadOnly.
func (e *Env) Begin(writable bool) (engine.Txn, error) {
	if writable && e.readonly {
		return nil, engine.ErrReadOnly
	}
	tx, err := e.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("begin txn: %w", err)
	}
	return &Txn{tx: tx, env: e, writable: writable, base: tx.Size()}, nil
}

// Sync flushes committed pages to stable storage.
func (e *Env) Sync() error {
	if e.readonly {
		return nil
	}
	return e.db.Sync()
}

// Close releases the file handle and lock.
func (e *Env) Close() error { return e.db.Close() }

// Path returns the database file location.
func (e *Env) Path() string { return e.path }

// Txn wraps one bbolt transaction.
type Txn struct {
	tx       *bolt.Tx
	env      *Env
	writable bool
	base     int64 // database size as of Begin
	pending  int64 // approximate cost of writes buffered in this txn
	done     bool
}

var _ engine.Txn = (*Txn)(nil)

func (t *Txn) bucket() *bolt.Bucket { return t.tx.Bucket(dataBucket) }

func (t *Txn) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, engine.ErrTxnDone
	}
	b := t.bucket()
	if b == nil {
		return nil, nil
	}
	v := b.Get(key)
	if v == nil {
		return nil, nil
	}
	// bbolt slices point into the mmap and die with the txn; copy out.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *Txn) Put(key, value []byte) error {
	if t.done {
		return engine.ErrTxnDone
	}
	if !t.writable {
		return engine.ErrReadOnly
	}
	cost := int64(len(key)+len(value)) + putOverhead
	if t.env.maxSize > 0 && t.base+t.pending+cost > t.env.maxSize {
		return fmt.Errorf("%w: limit %d bytes", engine.ErrFull, t.env.maxSize)
	}
	if err := t.bucket().Put(key, value); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	t.pending += cost
	return nil
}

func (t *Txn) Delete(key []byte) (bool, error) {
	if t.done {
		return false, engine.ErrTxnDone
	}
	if !t.writable {
		return false, engine.ErrReadOnly
	}
	b := t.bucket()
	if b == nil || b.Get(key) == nil {
		return false, nil
	}
	if err := b.Delete(key); err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	return true, nil
}

func (t *Txn) ForEach(fn func(key, value []byte) error) error {
	if t.done {
		return engine.ErrTxnDone
	}
	b := t.bucket()
	if b == nil {
		return nil
	}
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) Count() (int, error) {
	n := 0
	err := t.ForEach(func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// Commit makes buffered writes durable. The size limit is re-checked against
// the transaction's own view before handing off to bbolt, so an over-limit
// commit fails with the buffered writes still intact in the open transaction.
func (t *Txn) Commit() error {
	if t.done {
		return engine.ErrTxnDone
	}
	if !t.writable {
		// Read-only bbolt transactions are released, never committed.
		t.done = true
		return t.tx.Rollback()
	}
	if t.env.maxSize > 0 && t.tx.Size() > t.env.maxSize {
		return fmt.Errorf("%w: limit %d bytes", engine.ErrFull, t.env.maxSize)
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
