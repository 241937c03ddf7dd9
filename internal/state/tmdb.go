package state

import (
	"fmt"
	"path/filepath"

	dbm "github.com/tendermint/tm-db"
)

// tmBackend adapts a tm-db database.
type tmBackend struct {
	db dbm.DB
}

// NewMemory returns a volatile backend for tests and dev nodes.
func NewMemory() Backend {
	return &tmBackend{db: dbm.NewMemDB()}
}

// OpenGoLevelDB opens (or creates) a goleveldb database at dir.
func OpenGoLevelDB(dir string) (Backend, error) {
	db, err := dbm.NewGoLevelDB(filepath.Base(dir), filepath.Dir(dir))
	if err != nil {
		return nil, fmt.Errorf("state: open goleveldb %s: %w", dir, err)
	}
	return &tmBackend{db: db}, nil
}

func (b *tmBackend) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	v, err := b.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("state: get: %w", err)
	}
	return v, nil
}

func (b *tmBackend) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	var start []byte
	if len(prefix) > 0 {
		start = prefix
	}
	it, err := b.db.Iterator(start, prefixEnd(prefix))
	if err != nil {
		return fmt.Errorf("state: iterate: %w", err)
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func (b *tmBackend) Apply(writes []Write) error {
	batch := b.db.NewBatch()
	defer batch.Close()

	for _, w := range writes {
		if len(w.Key) == 0 {
			return ErrEmptyKey
		}
		var err error
		if w.Delete {
			err = batch.Delete(w.Key)
		} else {
			err = batch.Set(w.Key, w.Value)
		}
		if err != nil {
			return fmt.Errorf("state: batch: %w", err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("state: commit batch: %w", err)
	}
	return nil
}

func (b *tmBackend) Close() error {
	return b.db.Close()
}
