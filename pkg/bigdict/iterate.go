package bigdict

import "errors"

// ForEach iterates every entry, decoding keys and values, in shard-index
// order; within a shard, keys follow the engine's native byte order. The
// scan is lazy and single-pass; call again for a fresh pass. fn returning
// Stop ends iteration early with a nil error; any other error aborts the
// scan and is returned unchanged.
func (d *Dict[V]) ForEach(fn func(key string, value V) error) error {
	return d.scan(func(kb, vb []byte) error {
		k, err := d.keyCodec.DecodeKey(kb)
		if err != nil {
			return err
		}
		v, err := d.decodeValue(vb)
		if err != nil {
			return err
		}
		return fn(k, v)
	})
}

// ForEachKey iterates keys only, skipping value decode cost.
func (d *Dict[V]) ForEachKey(fn func(key string) error) error {
	return d.scan(func(kb, _ []byte) error {
		k, err := d.keyCodec.DecodeKey(kb)
		if err != nil {
			return err
		}
		return fn(k)
	})
}

// ForEachValue iterates decoded values only.
func (d *Dict[V]) ForEachValue(fn func(value V) error) error {
	return d.scan(func(_, vb []byte) error {
		v, err := d.decodeValue(vb)
		if err != nil {
			return err
		}
		return fn(v)
	})
}

// ForEachBuffer iterates raw encoded entries, skipping decode cost
// entirely — for callers that reduce or merge the stored bytes directly.
// Pending writes are committed first so the scan observes the latest
// state. The slices passed to fn are only valid for the duration of the
// call; copy what must outlive it.
func (d *Dict[V]) ForEachBuffer(fn func(key, value []byte) error) error {
	if err := d.flushPending(); err != nil {
		return err
	}
	return d.scan(fn)
}

// GetBuffer returns the raw encoded value bytes for key without decoding.
// Pending writes are committed first. The returned slice is owned by the
// caller.
func (d *Dict[V]) GetBuffer(key string) ([]byte, bool, error) {
	if d.closed {
		return nil, false, ErrClosed
	}
	if err := d.flushPending(); err != nil {
		return nil, false, err
	}
	kb, s, err := d.encodeKey(key)
	if err != nil {
		return nil, false, err
	}
	vb, err := d.view.Get(s, kb)
	if err != nil {
		return nil, false, mapErr(err)
	}
	if vb == nil {
		return nil, false, nil
	}
	return vb, true, nil
}

// flushPending commits buffered writes on a dirty read-write handle.
func (d *Dict[V]) flushPending() error {
	if d.closed {
		return ErrClosed
	}
	if d.readonly || !d.view.Dirty() {
		return nil
	}
	return d.Commit()
}

func (d *Dict[V]) scan(fn func(key, value []byte) error) error {
	if d.closed {
		return ErrClosed
	}
	for i := 0; i < d.Shards(); i++ {
		err := d.view.Scan(i, fn)
		if errors.Is(err, Stop) {
			return nil
		}
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}
