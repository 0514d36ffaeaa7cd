// Package bigdict is a persisted, out-of-memory map: a dict-like store whose
// contents live on disk, scale beyond available memory, and survive process
// restarts. Keys are strings; values are any type the configured serializer
// accepts. Data is partitioned across N independent embedded-engine files by
// a stable hash of the encoded key, which keeps any single file bounded in
// size as the dataset grows.
//
// Writing and reading are typically well separated: create a store, write
// into it, Flush, and from then on open it read-only. A read-write handle
// keeps one long-lived engine transaction per shard, so writes buffer in
// process until Commit or Flush make them durable and visible to read-only
// handles (after Reload) and to other processes.
//
// Handles are single-threaded. In-process, derive concurrent readers from a
// writer with AsReadOnly, which shares the underlying shard files. Across
// processes, the embedded engine allows either one writer or any number of
// readers per shard; a colliding open surfaces ErrWriterConflict.
//
// Close releases shard file locks deterministically; a garbage-collection
// cleanup is attached as a backstop only, and must not be relied on when the
// same path is to be reopened promptly.
package bigdict

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"bigdict/internal/codec"
	"bigdict/internal/engine"
	enginebolt "bigdict/internal/engine/bolt"
	"bigdict/internal/logging"
	"bigdict/internal/meta"
	"bigdict/internal/router"
	"bigdict/internal/shard"
)

var logger = logging.For("bigdict")

// boltOpener is the default engine driver.
func boltOpener(path string, readonly bool, maxSize int64) (engine.Env, error) {
	return enginebolt.Open(path, readonly, maxSize)
}

// Dict is a persisted map from string keys to V values. Not safe for
// concurrent use; see AsReadOnly for sharing a store within a process.
type Dict[V any] struct {
	root        string
	meta        meta.Meta
	keyCodec    codec.KeyCodec
	ser         Serializer
	router      *router.Router
	view        *shard.View
	readonly    bool
	commitEvery int
	pending     int // writes buffered since the last commit
	closed      bool
	cleanup     cleanupHandle
}

// New creates a store at path and opens it read-write. The directory must
// not already exist. An empty path creates the store under the system temp
// directory with a unique name. Shard count, storage format version, and
// serializer name are persisted in the store metadata at creation.
func New[V any](path string, opts ...Option) (*Dict[V], error) {
	o := newOptions(opts)
	if o.shards == 0 {
		o.shards = 1
	}
	if path == "" {
		path = filepath.Join(os.TempDir(), "bigdict-"+uuid.NewString())
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("bigdict: path already exists: %s", path)
	}
	if _, err := router.New(o.shards); err != nil {
		return nil, fmt.Errorf("bigdict: %w", err)
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	m := meta.Meta{
		FormatVersion: codec.CurrentVersion,
		ShardCount:    o.shards,
		Serializer:    o.serializer.Name(),
	}
	if err := meta.Write(path, m); err != nil {
		return nil, err
	}
	logger.Info("created store", "path", path, "shards", m.ShardCount, "serializer", m.Serializer)
	d, err := open[V](path, m, shard.ModeReadWrite, o)
	if err != nil {
		return nil, err
	}
	// Materialize every shard file now. Shards that never receive a write
	// must still open cleanly in read-only mode later.
	for i := 0; i < m.ShardCount; i++ {
		if _, err := d.view.Set().Env(i); err != nil {
			_ = d.Close()
			return nil, mapErr(err)
		}
	}
	return d, nil
}

// Open opens an existing store. Read-only by default; pass WithReadWrite to
// write. The metadata record is read and validated on every open:
// unreadable or inconsistent records fail with ErrCorruptMetadata, and a
// WithShards value that conflicts with the persisted count fails with
// ErrShardCountMismatch.
func Open[V any](path string, opts ...Option) (*Dict[V], error) {
	o := newOptions(opts)
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	m, err := meta.Read(path)
	if err != nil {
		return nil, mapErr(err)
	}
	if o.shards != 0 && o.shards != m.ShardCount {
		return nil, fmt.Errorf("%w: store has %d shards, caller expects %d",
			ErrShardCountMismatch, m.ShardCount, o.shards)
	}
	if o.serializer.Name() != m.Serializer {
		return nil, fmt.Errorf("bigdict: store was written with serializer %q, opened with %q",
			m.Serializer, o.serializer.Name())
	}
	mode := shard.ModeReadOnly
	if o.readWrite {
		mode = shard.ModeReadWrite
	}
	return open[V](path, m, mode, o)
}

func open[V any](path string, m meta.Meta, mode shard.Mode, o options) (*Dict[V], error) {
	kc, err := codec.ForVersion(m.FormatVersion)
	if err != nil {
		return nil, mapErr(err)
	}
	r, err := router.New(m.ShardCount)
	if err != nil {
		// The persisted count passed meta validation but not the
		// router's: the record is inconsistent.
		return nil, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	set, err := shard.NewEnvSet(path, m.ShardCount, mode, o.mapSize, boltOpener)
	if err != nil {
		return nil, mapErr(err)
	}
	d := &Dict[V]{
		root:        path,
		meta:        m,
		keyCodec:    kc,
		ser:         o.serializer,
		router:      r,
		view:        shard.NewView(set, mode),
		readonly:    mode == shard.ModeReadOnly,
		commitEvery: o.commitEvery,
	}
	d.cleanup = addCleanup(d, d.view)
	return d, nil
}

// Path returns the store root directory.
func (d *Dict[V]) Path() string { return d.root }

// Shards returns the shard count fixed at creation.
func (d *Dict[V]) Shards() int { return d.meta.ShardCount }

// ReadOnly reports whether this handle refuses mutations.
func (d *Dict[V]) ReadOnly() bool { return d.readonly }

// encodeKey encodes the key and routes it to its shard.
func (d *Dict[V]) encodeKey(key string) ([]byte, int, error) {
	kb, err := d.keyCodec.EncodeKey(key)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	return kb, d.router.Route(kb), nil
}

func (d *Dict[V]) encodeValue(v V) ([]byte, error) {
	b, err := d.ser.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w of type %T: %v", ErrSerialization, v, err)
	}
	return b, nil
}

func (d *Dict[V]) decodeValue(b []byte) (V, error) {
	var v V
	if err := d.ser.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w of type %T: %v", ErrSerialization, v, err)
	}
	return v, nil
}

// trackWrite counts buffered writes and commits when the auto-commit
// interval is reached.
func (d *Dict[V]) trackWrite(n int) error {
	if n < 1 {
		return nil
	}
	d.pending += n
	if d.commitEvery > 0 && d.pending >= d.commitEvery {
		return d.Commit()
	}
	return nil
}

// Set stores value under key. The write buffers in the shard's open
// read-write transaction; Commit or Flush makes it durable.
func (d *Dict[V]) Set(key string, value V) error {
	if d.closed {
		return ErrClosed
	}
	if d.readonly {
		return fmt.Errorf("%w: set", ErrReadOnlyViolation)
	}
	kb, s, err := d.encodeKey(key)
	if err != nil {
		return err
	}
	vb, err := d.encodeValue(value)
	if err != nil {
		return err
	}
	if err := d.view.Put(s, kb, vb); err != nil {
		return mapErr(err)
	}
	return d.trackWrite(1)
}

// Get returns the value stored under key. The second return is false when
// the key is absent. A read-write handle observes its own uncommitted
// writes; a read-only handle reads from its current snapshot.
func (d *Dict[V]) Get(key string) (V, bool, error) {
	var zero V
	if d.closed {
		return zero, false, ErrClosed
	}
	kb, s, err := d.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	vb, err := d.view.Get(s, kb)
	if err != nil {
		return zero, false, mapErr(err)
	}
	if vb == nil {
		return zero, false, nil
	}
	v, err := d.decodeValue(vb)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Contains reports whether key is present, without decoding the value.
func (d *Dict[V]) Contains(key string) (bool, error) {
	if d.closed {
		return false, ErrClosed
	}
	kb, s, err := d.encodeKey(key)
	if err != nil {
		return false, err
	}
	vb, err := d.view.Get(s, kb)
	if err != nil {
		return false, mapErr(err)
	}
	return vb != nil, nil
}

// Delete removes key, reporting whether it existed.
func (d *Dict[V]) Delete(key string) (bool, error) {
	if d.closed {
		return false, ErrClosed
	}
	if d.readonly {
		return false, fmt.Errorf("%w: delete", ErrReadOnlyViolation)
	}
	kb, s, err := d.encodeKey(key)
	if err != nil {
		return false, err
	}
	existed, err := d.view.Delete(s, kb)
	if err != nil {
		return false, mapErr(err)
	}
	if existed {
		if err := d.trackWrite(1); err != nil {
			return true, err
		}
	}
	return existed, nil
}

// Pop removes key and returns its former value; the second return is false
// when the key was absent.
func (d *Dict[V]) Pop(key string) (V, bool, error) {
	var zero V
	if d.closed {
		return zero, false, ErrClosed
	}
	if d.readonly {
		return zero, false, fmt.Errorf("%w: pop", ErrReadOnlyViolation)
	}
	kb, s, err := d.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	vb, err := d.view.Get(s, kb)
	if err != nil {
		return zero, false, mapErr(err)
	}
	if vb == nil {
		return zero, false, nil
	}
	v, err := d.decodeValue(vb)
	if err != nil {
		return zero, false, err
	}
	if _, err := d.view.Delete(s, kb); err != nil {
		return zero, false, mapErr(err)
	}
	if err := d.trackWrite(1); err != nil {
		return v, true, err
	}
	return v, true, nil
}

// SetDefault returns the value stored under key, storing and returning
// value if the key was absent.
func (d *Dict[V]) SetDefault(key string, value V) (V, error) {
	var zero V
	if d.closed {
		return zero, ErrClosed
	}
	if d.readonly {
		return zero, fmt.Errorf("%w: setdefault", ErrReadOnlyViolation)
	}
	existing, ok, err := d.Get(key)
	if err != nil {
		return zero, err
	}
	if ok {
		return existing, nil
	}
	if err := d.Set(key, value); err != nil {
		return zero, err
	}
	return value, nil
}

// Update stores every entry of m, grouped per shard within one flush
// boundary. All entries are encoded before anything is written, so an
// unencodable key or value leaves the store untouched. A storage failure
// partway through leaves the earlier entries buffered, not durable; commit
// or roll back to reach a consistent state — the batch becomes atomic per
// shard once committed.
func (d *Dict[V]) Update(m map[string]V) error {
	if d.closed {
		return ErrClosed
	}
	if d.readonly {
		return fmt.Errorf("%w: update", ErrReadOnlyViolation)
	}
	type entry struct{ k, v []byte }
	grouped := make(map[int][]entry)
	for k, v := range m {
		kb, s, err := d.encodeKey(k)
		if err != nil {
			return err
		}
		vb, err := d.encodeValue(v)
		if err != nil {
			return err
		}
		grouped[s] = append(grouped[s], entry{kb, vb})
	}
	n := 0
	for s, entries := range grouped {
		for _, e := range entries {
			if err := d.view.Put(s, e.k, e.v); err != nil {
				return mapErr(err)
			}
			n++
		}
	}
	return d.trackWrite(n)
}

// Len returns the number of entries across all shards. O(n): the engine
// keeps no authoritative live count inside an open transaction, so this is
// a full scan.
func (d *Dict[V]) Len() (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	total := 0
	for i := 0; i < d.Shards(); i++ {
		n, err := d.view.Count(i)
		if err != nil {
			return 0, mapErr(err)
		}
		total += n
	}
	return total, nil
}

// Commit makes all buffered writes durable and visible to fresh read-only
// snapshots, and closes the per-shard transactions; the next operation
// begins fresh ones. On failure (ErrStorageFull, I/O) the buffered writes
// stay intact: retry after remediation, or Rollback.
func (d *Dict[V]) Commit() error {
	if d.closed {
		return ErrClosed
	}
	if d.readonly {
		return fmt.Errorf("%w: commit", ErrReadOnlyViolation)
	}
	if err := d.view.Commit(); err != nil {
		return mapErr(err)
	}
	d.pending = 0
	return nil
}

// Flush is Commit plus an fsync of every shard. Call at the end of a
// writing session; the close-time cleanup does NOT save uncommitted writes.
func (d *Dict[V]) Flush() error {
	if err := d.Commit(); err != nil {
		return err
	}
	if err := d.view.Set().Sync(); err != nil {
		return mapErr(err)
	}
	return nil
}

// Rollback discards all buffered writes.
func (d *Dict[V]) Rollback() error {
	if d.closed {
		return ErrClosed
	}
	if err := d.view.Rollback(); err != nil {
		return mapErr(err)
	}
	d.pending = 0
	return nil
}

// Reload discards the current read snapshots so subsequent reads observe
// every commit made since the snapshot began. This is how a read-only
// handle follows a concurrent writer's progress; it is never done
// automatically.
func (d *Dict[V]) Reload() error {
	if d.closed {
		return ErrClosed
	}
	return mapErr(d.view.Reload())
}

// AsReadOnly returns a read-only handle over the same shard files, sharing
// the underlying environments, so it can live alongside this handle in the
// same process. The new handle's snapshots observe only committed state:
// writes still buffered in this handle stay buffered here and become visible
// to the sibling after Commit and Reload. Returns the receiver if already
// read-only.
func (d *Dict[V]) AsReadOnly() (*Dict[V], error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.readonly {
		return d, nil
	}
	return d.derive(shard.ModeReadOnly)
}

// AsReadWrite returns a read-write handle over the same shard files.
// In-flight snapshots on the source view are dropped. The handle must be
// the sole owner of the shard environments: derived siblings would lose
// their snapshots when the environments reopen writable, and a store can
// never carry two writer handles. Fails with ErrTransactionAlreadyOpen if
// the process already has a writer on this store elsewhere. Returns the
// receiver if already read-write.
func (d *Dict[V]) AsReadWrite() (*Dict[V], error) {
	if d.closed {
		return nil, ErrClosed
	}
	if !d.readonly {
		return d, nil
	}
	if err := d.view.Reload(); err != nil { // drop snapshots before reopening
		return nil, mapErr(err)
	}
	if err := d.view.Set().ReopenReadWrite(); err != nil {
		if errors.Is(err, shard.ErrShared) {
			return nil, fmt.Errorf("bigdict: cannot switch to read-write: %w", err)
		}
		return nil, mapErr(err)
	}
	return d.derive(shard.ModeReadWrite)
}

// derive builds a sibling handle sharing the env set.
func (d *Dict[V]) derive(mode shard.Mode) (*Dict[V], error) {
	set := d.view.Set()
	set.Retain()
	nd := &Dict[V]{
		root:        d.root,
		meta:        d.meta,
		keyCodec:    d.keyCodec,
		ser:         d.ser,
		router:      d.router,
		view:        shard.NewView(set, mode),
		readonly:    mode == shard.ModeReadOnly,
		commitEvery: d.commitEvery,
	}
	nd.cleanup = addCleanup(nd, nd.view)
	return nd, nil
}

// Close rolls back uncommitted writes and releases every shard resource
// held by this handle. Idempotent. Engine file locks are released here, so
// Close (not garbage collection) must precede reopening the same path.
func (d *Dict[V]) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.cleanup.stop()
	return mapErr(d.view.Close())
}
