// Package router assigns encoded keys to shard buckets. Routing depends only
// on the key bytes and the shard count, never on engine state, so a key maps
// to the same shard across calls and across process restarts.
package router

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// MaxShards bounds the shard count: routing uses a single-byte digest, so at
// most 256 buckets are addressable.
const MaxShards = 256

var ErrShardCount = errors.New("shard count must be a power of two in [1,256]")

// Router maps encoded key bytes to a shard index in [0, N).
type Router struct {
	n    int
	mask byte
}

// New builds a router for n shards. n must be a power of two in [1,256] so
// that masking the digest keeps the distribution uniform.
func New(n int) (*Router, error) {
	if n < 1 || n > MaxShards || n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrShardCount, n)
	}
	return &Router{n: n, mask: byte(n - 1)}, nil
}

// Shards returns the shard count the router was built for.
func (r *Router) Shards() int { return r.n }

// Route returns the shard index for an encoded key: the low bits of a
// 1-byte BLAKE2b digest of the key. Stable and well distributed for
// realistic key populations.
func (r *Router) Route(encodedKey []byte) int {
	if r.n == 1 {
		return 0
	}
	h, err := blake2b.New(1, nil)
	if err != nil {
		// blake2b.New only fails for invalid digest sizes; 1 is valid.
		panic(err)
	}
	h.Write(encodedKey)
	var d [1]byte
	return int(h.Sum(d[:0])[0] & r.mask)
}
