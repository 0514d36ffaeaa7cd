// Package codec converts application keys to and from the byte strings the
// storage engine understands. The encoding is versioned: the storage format
// version recorded in a store's metadata selects the codec, so a reader that
// recognizes an old version can still decode old data even after the current
// scheme changes.
package codec

import (
	"errors"
	"fmt"
)

// CurrentVersion is the storage format version new stores are created with.
const CurrentVersion = 1

// MaxKeyLen is the largest encoded key the engine accepts (bbolt's limit).
const MaxKeyLen = 32768

var (
	ErrKeyInvalid         = errors.New("invalid key")
	ErrUnsupportedVersion = errors.New("unsupported storage format version")
)

// KeyCodec is a total, injective, deterministic mapping between application
// keys and encoded key bytes. DecodeKey(EncodeKey(k)) == k for every key the
// codec accepts.
type KeyCodec interface {
	EncodeKey(key string) ([]byte, error)
	DecodeKey(b []byte) (string, error)
	Version() int
}

// ForVersion returns the key codec for a storage format version.
func ForVersion(v int) (KeyCodec, error) {
	switch v {
	case 1:
		return utf8Codec{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
}

// utf8Codec is the version-1 encoding: the key's UTF-8 bytes, unchanged.
// Injective by construction. Empty keys are rejected because the engine
// forbids them; oversized keys are rejected here rather than at storage time.
type utf8Codec struct{}

func (utf8Codec) EncodeKey(key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrKeyInvalid)
	}
	if len(key) > MaxKeyLen {
		return nil, fmt.Errorf("%w: key length %d exceeds %d", ErrKeyInvalid, len(key), MaxKeyLen)
	}
	return []byte(key), nil
}

func (utf8Codec) DecodeKey(b []byte) (string, error) {
	if len(b) == 0 {
		return "", fmt.Errorf("%w: empty encoded key", ErrKeyInvalid)
	}
	return string(b), nil
}

func (utf8Codec) Version() int { return 1 }
