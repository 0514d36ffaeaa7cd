package shard

import (
	"fmt"

	"bigdict/internal/engine"
	"bigdict/internal/logging"
)

// State is the transaction state of one shard within a view.
//
//	StateClosed -> (first access) -> StateClean
//	StateClean  -> (write)        -> StateDirty
//	StateDirty  -> (commit)       -> StateClean
//	StateDirty  -> (rollback)     -> StateClean
//	any state   -> (close)        -> StateClosed
type State int

const (
	StateClosed State = iota
	StateClean
	StateDirty
)

var viewLogger = logging.For("txn")

// View is one store handle's transaction coordinator. Per shard it keeps at
// most one open transaction: a long-lived read-write transaction reused
// across calls (read-your-writes, committed on Commit), or a read-only
// snapshot reused until Reload discards it. Views are single-threaded, like
// the engine transactions they wrap.
type View struct {
	set    *EnvSet
	mode   Mode
	txns   []engine.Txn
	states []State
	closed bool
}

// NewView wraps an env set reference in a fresh coordinator. The caller owns
// one reference on the set and hands it to the view.
func NewView(set *EnvSet, mode Mode) *View {
	return &View{
		set:    set,
		mode:   mode,
		txns:   make([]engine.Txn, set.Shards()),
		states: make([]State, set.Shards()),
	}
}

// Mode returns the view's mode.
func (v *View) Mode() Mode { return v.mode }

// Set returns the underlying environment set.
func (v *View) Set() *EnvSet { return v.set }

// txn returns shard i's open transaction, beginning one lazily.
func (v *View) txn(i int) (engine.Txn, error) {
	if v.closed {
		return nil, ErrClosed
	}
	if v.txns[i] != nil {
		return v.txns[i], nil
	}
	env, err := v.set.Env(i)
	if err != nil {
		return nil, err
	}
	tx, err := env.Begin(v.mode == ModeReadWrite)
	if err != nil {
		return nil, err
	}
	v.txns[i] = tx
	v.states[i] = StateClean
	return tx, nil
}

// State returns shard i's transaction state.
func (v *View) State(i int) State { return v.states[i] }

// Dirty reports whether any shard holds uncommitted writes.
func (v *View) Dirty() bool {
	for _, s := range v.states {
		if s == StateDirty {
			return true
		}
	}
	return false
}

// Get reads key from shard i through the shard's transaction, so a
// read-write view observes its own uncommitted writes.
func (v *View) Get(i int, key []byte) ([]byte, error) {
	tx, err := v.txn(i)
	if err != nil {
		return nil, err
	}
	return tx.Get(key)
}

// Put buffers a write in shard i's read-write transaction.
func (v *View) Put(i int, key, value []byte) error {
	tx, err := v.txn(i)
	if err != nil {
		return err
	}
	if err := tx.Put(key, value); err != nil {
		return err
	}
	v.states[i] = StateDirty
	return nil
}

// Delete removes key from shard i, reporting whether it existed.
func (v *View) Delete(i int, key []byte) (bool, error) {
	tx, err := v.txn(i)
	if err != nil {
		return false, err
	}
	existed, err := tx.Delete(key)
	if err != nil {
		return false, err
	}
	if existed {
		v.states[i] = StateDirty
	}
	return existed, nil
}

// Scan iterates shard i's entries in the engine's native key order.
func (v *View) Scan(i int, fn func(key, value []byte) error) error {
	tx, err := v.txn(i)
	if err != nil {
		return err
	}
	return tx.ForEach(fn)
}

// Count returns shard i's live entry count (full scan).
func (v *View) Count(i int) (int, error) {
	tx, err := v.txn(i)
	if err != nil {
		return 0, err
	}
	return tx.Count()
}

// Commit commits every open transaction and closes it; the next access
// begins fresh. On failure the failing shard's transaction stays open with
// its buffered writes intact, and the error is reported unmodified — the
// caller decides between retry after remediation and Rollback.
func (v *View) Commit() error {
	if v.closed {
		return ErrClosed
	}
	committed := 0
	for i, tx := range v.txns {
		if tx == nil {
			continue
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing shard %d: %w", i, err)
		}
		v.txns[i] = nil
		v.states[i] = StateClean
		committed++
	}
	if committed > 0 {
		viewLogger.Debug("committed", "root", v.set.Root(), "shards", committed)
	}
	return nil
}

// Rollback abandons every open transaction, discarding buffered writes.
func (v *View) Rollback() error {
	if v.closed {
		return ErrClosed
	}
	return v.rollbackOpen()
}

// Reload discards the current snapshots so the next read observes every
// commit made since the old snapshot began. On a read-write view it is a
// rollback by another name; callers that need pending writes must commit
// first.
func (v *View) Reload() error {
	if v.closed {
		return ErrClosed
	}
	return v.rollbackOpen()
}

func (v *View) rollbackOpen() error {
	var firstErr error
	for i, tx := range v.txns {
		if tx == nil {
			continue
		}
		if err := tx.Rollback(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rolling back shard %d: %w", i, err)
		}
		v.txns[i] = nil
		v.states[i] = StateClean
	}
	return firstErr
}

// Close rolls back open transactions and releases the view's reference on
// the env set. Idempotent. Uncommitted writes are NOT saved: commit or flush
// before closing.
func (v *View) Close() error {
	if v.closed {
		return nil
	}
	rbErr := v.rollbackOpen()
	v.closed = true
	relErr := v.set.Release()
	if rbErr != nil {
		return rbErr
	}
	return relErr
}

// Closed reports whether Close was called.
func (v *View) Closed() bool { return v.closed }
