// Package state holds the committed world state of the execution
// environment and the journaled overlay transactions run against.
package state

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Supported backend kinds.
const (
	KindMemory    = "memory"
	KindGoLevelDB = "goleveldb"
	KindPebble    = "pebble"
)

// ErrEmptyKey is returned for zero-length keys, which no backend stores.
var ErrEmptyKey = errors.New("state: empty key")

// Write is one pending mutation. A Delete write ignores Value.
type Write struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Reader is the read side shared by backends and overlays.
type Reader interface {
	// Get returns nil, nil for absent keys.
	Get(key []byte) ([]byte, error)
}

// Backend is a durable key/value store that applies batches atomically.
type Backend interface {
	Reader
	// Iterate calls fn for every key with the given prefix in ascending
	// order. Returning an error from fn stops iteration.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	// Apply writes the batch atomically and durably.
	Apply(writes []Write) error
	Close() error
}

// Open constructs a backend of the given kind. dir is ignored for memory.
func Open(kind, dir string) (Backend, error) {
	switch kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindGoLevelDB:
		return OpenGoLevelDB(filepath.Clean(dir))
	case KindPebble:
		return OpenPebble(filepath.Clean(dir))
	default:
		return nil, fmt.Errorf("state: unknown backend %q", kind)
	}
}

// prefixEnd returns the smallest key greater than every key with the
// given prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
