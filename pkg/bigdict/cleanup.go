package bigdict

import (
	"runtime"

	"bigdict/internal/shard"
)

// cleanupHandle is the garbage-collection backstop that rolls back and
// closes an abandoned handle's transactions and environments. It is a
// safety net, not the release path: cleanup timing is unspecified, so code
// that reopens the same store path must call Close explicitly to drop the
// engine file locks first.
type cleanupHandle struct {
	c runtime.Cleanup
}

func addCleanup[V any](d *Dict[V], view *shard.View) cleanupHandle {
	return cleanupHandle{c: runtime.AddCleanup(d, func(v *shard.View) {
		// Uncommitted writes are deliberately not saved; engine
		// atomicity makes the abandoned transaction a no-op on disk.
		_ = v.Close()
	}, view)}
}

func (h cleanupHandle) stop() {
	h.c.Stop()
}
