package bigdict

import (
	"errors"
	"fmt"
	"os"

	enginebolt "bigdict/internal/engine/bolt"
	"bigdict/internal/shard"
)

// Destroy erases the store from disk. The handle is closed and unusable
// afterwards. Fails on read-only handles and while other derived handles
// still share the store.
func (d *Dict[V]) Destroy() error {
	if d.closed {
		return ErrClosed
	}
	if d.readonly {
		return fmt.Errorf("%w: destroy", ErrReadOnlyViolation)
	}
	if err := d.view.Rollback(); err != nil {
		return mapErr(err)
	}
	if err := d.view.Set().CloseExclusive(); err != nil {
		if errors.Is(err, shard.ErrShared) {
			return fmt.Errorf("bigdict: cannot destroy: %w", err)
		}
		return mapErr(err)
	}
	d.closed = true
	d.cleanup.stop()
	_ = d.view.Close()
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("removing store dir: %w", err)
	}
	logger.Info("destroyed store", "path", d.root)
	return nil
}

// Compact rewrites each shard as a compacted copy and swaps it in,
// reclaiming space freed by deletes and overwrites. Pending writes are
// flushed first. Expensive; intended for the end of a long writing session.
// Each shard's copy is verified by entry count before the swap; on failure
// the failing shard keeps its original file and the error is returned, with
// already-compacted shards left in their new form. Must not run while
// derived handles hold open snapshots on the store.
func (d *Dict[V]) Compact() error {
	if d.closed {
		return ErrClosed
	}
	if d.readonly {
		return fmt.Errorf("%w: compact", ErrReadOnlyViolation)
	}
	if err := d.Flush(); err != nil {
		return err
	}
	set := d.view.Set()
	for i := 0; i < d.Shards(); i++ {
		src := set.ShardPath(i)
		before, err := os.Stat(src)
		if os.IsNotExist(err) {
			continue // shard never written
		}
		if err != nil {
			return fmt.Errorf("stat shard %d: %w", i, err)
		}
		// Release the file lock so the copy can open the shard directly.
		if err := set.CloseShard(i); err != nil {
			return mapErr(err)
		}
		dst := src + ".compact"
		srcN, dstN, err := enginebolt.CompactFile(src, dst)
		if err != nil {
			os.Remove(dst)
			return mapErr(fmt.Errorf("compacting shard %d: %w", i, err))
		}
		if srcN != dstN {
			os.Remove(dst)
			return fmt.Errorf("bigdict: compacting shard %d: expected %d entries, copied %d", i, srcN, dstN)
		}
		if err := os.Rename(dst, src); err != nil {
			os.Remove(dst)
			return fmt.Errorf("swapping compacted shard %d: %w", i, err)
		}
		if after, err := os.Stat(src); err == nil {
			logger.Info("compacted shard", "shard", i,
				"bytes_before", before.Size(), "bytes_after", after.Size())
		}
	}
	return nil
}
