package bigdict

// Defaults. The map size is deliberately modest; callers should measure and
// size for their workload. The commit interval matches the cost profile of a
// long writing session: one engine commit per hundred thousand writes.
const (
	DefaultMapSize     = 1 << 30 // 1 GiB per shard
	DefaultCommitEvery = 100_000
)

type options struct {
	shards      int
	mapSize     int64
	serializer  Serializer
	readWrite   bool
	commitEvery int
}

func newOptions(opts []Option) options {
	o := options{
		mapSize:     DefaultMapSize,
		serializer:  DefaultSerializer,
		commitEvery: DefaultCommitEvery,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures New and Open.
type Option func(*options)

// WithShards sets the shard count at creation time: a power of two in
// [1,256], fixed for the lifetime of the store. On Open it is a consistency
// assertion instead: a value that conflicts with the persisted metadata
// fails with ErrShardCountMismatch.
func WithShards(n int) Option {
	return func(o *options) { o.shards = n }
}

// WithMapSize caps each shard's on-disk size in bytes. Writing past the cap
// fails with ErrStorageFull. Not persisted: it is fine to use different
// values in different sessions as long as the value is large enough.
// mapSize <= 0 means unbounded.
func WithMapSize(bytes int64) Option {
	return func(o *options) { o.mapSize = bytes }
}

// WithSerializer sets the value serializer. Its name must match the one
// recorded when the store was created.
func WithSerializer(s Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// WithReadWrite opens an existing store writable. Open defaults to
// read-only; New is always read-write.
func WithReadWrite() Option {
	return func(o *options) { o.readWrite = true }
}

// WithCommitEvery sets how many buffered writes trigger an automatic commit.
// n <= 0 disables auto-commit; every write then stays buffered until an
// explicit Commit or Flush.
func WithCommitEvery(n int) Option {
	return func(o *options) { o.commitEvery = n }
}
