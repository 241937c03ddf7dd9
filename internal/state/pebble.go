package state

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

type pebbleBackend struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database at dir.
func OpenPebble(dir string) (Backend, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("state: open pebble %s: %w", dir, err)
	}
	return &pebbleBackend{db: db}, nil
}

func (b *pebbleBackend) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	val, closer, err := b.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: get: %w", err)
	}
	defer closer.Close()
	return copyBytes(val), nil
}

func (b *pebbleBackend) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	opts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		opts.LowerBound = prefix
		opts.UpperBound = prefixEnd(prefix)
	}
	iter, err := b.db.NewIter(opts)
	if err != nil {
		return fmt.Errorf("state: iterate: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (b *pebbleBackend) Apply(writes []Write) error {
	batch := b.db.NewBatch()
	defer batch.Close()

	for _, w := range writes {
		if len(w.Key) == 0 {
			return ErrEmptyKey
		}
		var err error
		if w.Delete {
			err = batch.Delete(w.Key, nil)
		} else {
			err = batch.Set(w.Key, w.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("state: batch: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("state: commit batch: %w", err)
	}
	return nil
}

func (b *pebbleBackend) Close() error {
	return b.db.Close()
}
