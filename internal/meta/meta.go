// Package meta reads and writes the store metadata record: a small TOML file
// at a fixed location under the store root. It is written once at creation
// and validated on every open; it is the authority on the storage format
// version and the shard count.
package meta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the metadata record's well-known name under the store root.
const FileName = "bigdict.toml"

var ErrCorrupt = errors.New("corrupt store metadata")

// Meta is the persisted metadata record. Immutable after creation.
type Meta struct {
	// FormatVersion selects the key codec and on-disk layout.
	FormatVersion int `toml:"format_version"`
	// ShardCount is fixed for the lifetime of the store; changing it
	// without a migration would misroute every key.
	ShardCount int `toml:"shard_count"`
	// Serializer records the value codec name used at insert time, so a
	// reader can detect a mismatched configuration before decoding garbage.
	Serializer string `toml:"serializer"`
}

// Write persists the record under root. Fails if a record already exists:
// metadata is written exactly once, at store creation.
func Write(root string, m Meta) error {
	path := filepath.Join(root, FileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating metadata record: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("encoding metadata record: %w", err)
	}
	return f.Sync()
}

// Read loads and validates the record under root. Unreadable or out-of-range
// records fail with ErrCorrupt.
func Read(root string) (Meta, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: %s missing", ErrCorrupt, FileName)
		}
		return Meta{}, fmt.Errorf("reading metadata record: %w", err)
	}
	var m Meta
	if _, err := toml.Decode(string(data), &m); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m.FormatVersion < 1 {
		return Meta{}, fmt.Errorf("%w: format_version %d", ErrCorrupt, m.FormatVersion)
	}
	if m.ShardCount < 1 || m.ShardCount > 256 {
		return Meta{}, fmt.Errorf("%w: shard_count %d", ErrCorrupt, m.ShardCount)
	}
	return m, nil
}
