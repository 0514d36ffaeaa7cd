package bigdict

import (
	"errors"
	"fmt"

	"bigdict/internal/codec"
	"bigdict/internal/engine"
	"bigdict/internal/meta"
	"bigdict/internal/shard"
)

// The error taxonomy. All are surfaced to the caller unmodified (no silent
// retry) and match with errors.Is.
var (
	// ErrInvalidKeyType: the key cannot be encoded (empty, or beyond the
	// engine's key size limit). Raised at encode time, never at storage time.
	ErrInvalidKeyType = errors.New("bigdict: invalid key")
	// ErrSerialization: the configured serializer rejected a value. The
	// message names the offending value's type. Nothing was written.
	ErrSerialization = errors.New("bigdict: cannot serialize value")
	// ErrShardNotFound: a shard's on-disk location is missing in read-only
	// mode.
	ErrShardNotFound = errors.New("bigdict: shard not found")
	// ErrShardCountMismatch: the caller's expected shard count conflicts
	// with the count persisted at creation time.
	ErrShardCountMismatch = errors.New("bigdict: shard count mismatch")
	// ErrStorageFull: a write or commit would exceed the per-shard max
	// size. Not retried; reopen with a larger WithMapSize, or roll back.
	ErrStorageFull = errors.New("bigdict: storage full")
	// ErrTransactionAlreadyOpen: this process already holds a read-write
	// handle on the store.
	ErrTransactionAlreadyOpen = errors.New("bigdict: read-write handle already open")
	// ErrWriterConflict: another process holds the shard's write lock.
	ErrWriterConflict = errors.New("bigdict: conflicting writer")
	// ErrReadOnlyViolation: a mutation was attempted through a read-only
	// handle.
	ErrReadOnlyViolation = errors.New("bigdict: store is read-only")
	// ErrCorruptMetadata: the metadata record is unreadable, out of range,
	// or names a storage format this build cannot decode.
	ErrCorruptMetadata = errors.New("bigdict: corrupt metadata")
	// ErrClosed: the handle was closed.
	ErrClosed = errors.New("bigdict: store closed")
)

// Stop ends a ForEach-style iteration early without error, like
// filepath.SkipAll.
var Stop = errors.New("bigdict: stop iteration")

// mapErr translates internal sentinels into the public taxonomy. Idempotent:
// errors already in the taxonomy pass through unchanged.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidKeyType), errors.Is(err, ErrSerialization),
		errors.Is(err, ErrShardNotFound), errors.Is(err, ErrShardCountMismatch),
		errors.Is(err, ErrStorageFull), errors.Is(err, ErrTransactionAlreadyOpen),
		errors.Is(err, ErrWriterConflict), errors.Is(err, ErrReadOnlyViolation),
		errors.Is(err, ErrCorruptMetadata), errors.Is(err, ErrClosed),
		errors.Is(err, Stop):
		return err
	case errors.Is(err, engine.ErrFull):
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	case errors.Is(err, engine.ErrLocked):
		return fmt.Errorf("%w: %v", ErrWriterConflict, err)
	case errors.Is(err, engine.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrShardNotFound, err)
	case errors.Is(err, engine.ErrReadOnly):
		return fmt.Errorf("%w: %v", ErrReadOnlyViolation, err)
	case errors.Is(err, shard.ErrWriterOpen):
		return fmt.Errorf("%w: %v", ErrTransactionAlreadyOpen, err)
	case errors.Is(err, shard.ErrClosed):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	case errors.Is(err, codec.ErrKeyInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidKeyType, err)
	case errors.Is(err, codec.ErrUnsupportedVersion):
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	case errors.Is(err, meta.ErrCorrupt):
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	default:
		return err
	}
}
