// Package shard owns the per-bucket engine environments and the transaction
// discipline on top of them. An EnvSet holds one store's N environments and
// is shared, refcounted, between differently-moded views of the same store;
// a View is one handle's transaction coordinator across all shards.
package shard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"bigdict/internal/engine"
	"bigdict/internal/logging"
)

// Mode is how a store handle or environment set was opened.
type Mode int

const (
	ModeReadOnly Mode = iota
	ModeReadWrite
)

func (m Mode) String() string {
	if m == ModeReadWrite {
		return "read-write"
	}
	return "read-only"
}

var (
	// ErrWriterOpen: this process already holds a read-write handle on the
	// store. Embedded engines forbid two writers on the same files.
	ErrWriterOpen = errors.New("read-write handle already open in this process")
	// ErrClosed: the view or env set was closed.
	ErrClosed = errors.New("store closed")
	// ErrShared: the operation needs sole ownership of the environment set
	// but other views still reference it.
	ErrShared = errors.New("store shared by other views")
)

// Opener creates one engine environment. The shard layer depends only on the
// engine interface; the facade injects the concrete driver.
type Opener func(path string, readonly bool, maxSize int64) (engine.Env, error)

var setLogger = logging.For("shard")

// Process-wide registry of write-opened store roots, so a second read-write
// open of the same store in the same process fails fast instead of
// deadlocking on the engine's file lock.
var (
	writersMu sync.Mutex
	writers   = make(map[string]struct{})
)

func registerWriter(root string) error {
	writersMu.Lock()
	defer writersMu.Unlock()
	if _, ok := writers[root]; ok {
		return fmt.Errorf("%w: %s", ErrWriterOpen, root)
	}
	writers[root] = struct{}{}
	return nil
}

func unregisterWriter(root string) {
	writersMu.Lock()
	defer writersMu.Unlock()
	delete(writers, root)
}

// EnvSet is the refcounted set of engine environments for one store root.
// Environments open lazily: a fresh handle touches no shard files until the
// first operation that needs them.
type EnvSet struct {
	mu      sync.Mutex
	root    string
	n       int
	mode    Mode
	maxSize int64
	open    Opener
	refs    int
	envs    []engine.Env
	closed  bool
}

// NewEnvSet prepares the environment set for a store with n shards under
// root. In read-write mode the root is claimed in the process-wide writer
// registry.
func NewEnvSet(root string, n int, mode Mode, maxSize int64, open Opener) (*EnvSet, error) {
	if mode == ModeReadWrite {
		if err := registerWriter(root); err != nil {
			return nil, err
		}
	}
	return &EnvSet{
		root:    root,
		n:       n,
		mode:    mode,
		maxSize: maxSize,
		open:    open,
		refs:    1,
		envs:    make([]engine.Env, n),
	}, nil
}

// Root returns the store root directory.
func (s *EnvSet) Root() string { return s.root }

// Shards returns the shard count.
func (s *EnvSet) Shards() int { return s.n }

// Mode returns the mode the environments are opened with.
func (s *EnvSet) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ShardPath returns the deterministic on-disk location of shard i.
func (s *EnvSet) ShardPath(i int) string {
	return filepath.Join(s.root, "db", strconv.Itoa(i))
}

// Env returns shard i's environment, opening it on first use.
func (s *EnvSet) Env(i int) (engine.Env, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.envs[i] == nil {
		env, err := s.open(s.ShardPath(i), s.mode == ModeReadOnly, s.maxSize)
		if err != nil {
			return nil, err
		}
		setLogger.Debug("opened shard env", "shard", i, "path", s.ShardPath(i), "mode", s.mode.String())
		s.envs[i] = env
	}
	return s.envs[i], nil
}

// Retain adds a reference for a new view sharing this set.
func (s *EnvSet) Retain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
}

// Release drops one reference; the last release closes every environment and
// gives up the writer claim.
func (s *EnvSet) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 || s.closed {
		return nil
	}
	return s.closeLocked()
}

// CloseExclusive closes the set outright. Fails with ErrShared if other
// views still reference it; used by destructive operations.
func (s *EnvSet) CloseExclusive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.refs > 1 {
		return ErrShared
	}
	return s.closeLocked()
}

func (s *EnvSet) closeLocked() error {
	s.closed = true
	var firstErr error
	for i, env := range s.envs {
		if env == nil {
			continue
		}
		if err := env.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing shard %d: %w", i, err)
		}
		s.envs[i] = nil
	}
	if s.mode == ModeReadWrite {
		unregisterWriter(s.root)
	}
	return firstErr
}

// CloseShard closes shard i's environment if open, releasing its file lock
// so maintenance (compaction) can work on the files directly. The next
// access reopens it.
func (s *EnvSet) CloseShard(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.envs[i] == nil {
		return nil
	}
	err := s.envs[i].Close()
	s.envs[i] = nil
	return err
}

// ReopenReadWrite switches a read-only set to read-write by closing every
// open environment and flipping the open mode; environments reopen lazily,
// writable. Requires sole ownership: sibling views would lose their
// snapshots mid-flight otherwise.
func (s *EnvSet) ReopenReadWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.refs > 1 {
		return ErrShared
	}
	if s.mode == ModeReadWrite {
		return nil
	}
	if err := registerWriter(s.root); err != nil {
		return err
	}
	for i, env := range s.envs {
		if env == nil {
			continue
		}
		if err := env.Close(); err != nil {
			unregisterWriter(s.root)
			return fmt.Errorf("closing shard %d for reopen: %w", i, err)
		}
		s.envs[i] = nil
	}
	s.mode = ModeReadWrite
	return nil
}

// Sync flushes every open environment to stable storage.
func (s *EnvSet) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i, env := range s.envs {
		if env == nil {
			continue
		}
		if err := env.Sync(); err != nil {
			return fmt.Errorf("syncing shard %d: %w", i, err)
		}
	}
	return nil
}
