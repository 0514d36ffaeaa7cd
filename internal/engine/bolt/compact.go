package bolt

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// CompactFile copies the database at src into a fresh file at dst,
// rewriting pages compactly, and returns the entry counts of both so the
// caller can verify nothing was lost before swapping files. Neither file
// may be open elsewhere.
func CompactFile(src, dst string) (srcEntries, dstEntries int, err error) {
	srcDB, err := bolt.Open(src, 0600, &bolt.Options{ReadOnly: true, Timeout: lockTimeout})
	if err != nil {
		return 0, 0, mapOpenErr(src, err)
	}
	defer srcDB.Close()

	dstDB, err := bolt.Open(dst, 0600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return 0, 0, mapOpenErr(dst, err)
	}
	defer dstDB.Close()

	if err := bolt.Compact(dstDB, srcDB, 0); err != nil {
		return 0, 0, fmt.Errorf("compacting %s: %w", src, err)
	}
	if srcEntries, err = countEntries(srcDB); err != nil {
		return 0, 0, err
	}
	if dstEntries, err = countEntries(dstDB); err != nil {
		return 0, 0, err
	}
	return srcEntries, dstEntries, nil
}

func countEntries(db *bolt.DB) (int, error) {
	n := 0
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}
