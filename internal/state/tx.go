package state

import (
	"bytes"
	"sort"
)

type entry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    entry
	hadPrev bool
}

// Tx is a write overlay on top of a Reader. Writes stay in memory until the
// owner collects them with Writes and applies them to a Backend. Snapshot
// and RevertToSnapshot give nested calls their own undo segments.
//
// A Tx is not safe for concurrent use.
type Tx struct {
	base    Reader
	dirty   map[string]entry
	journal []journalEntry
}

// NewTx starts an overlay over base.
func NewTx(base Reader) *Tx {
	return &Tx{base: base, dirty: make(map[string]entry)}
}

// Get returns the overlay value for key, falling through to the base.
// Absent keys return nil, nil.
func (t *Tx) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if e, ok := t.dirty[string(key)]; ok {
		if e.deleted {
			return nil, nil
		}
		return copyBytes(e.value), nil
	}
	return t.base.Get(key)
}

// Set stores value under key. An empty value deletes the key.
func (t *Tx) Set(key, value []byte) {
	if len(value) == 0 {
		t.Delete(key)
		return
	}
	t.record(string(key), entry{value: copyBytes(value)})
}

// Delete removes key.
func (t *Tx) Delete(key []byte) {
	t.record(string(key), entry{deleted: true})
}

func (t *Tx) record(key string, e entry) {
	prev, had := t.dirty[key]
	t.journal = append(t.journal, journalEntry{key: key, prev: prev, hadPrev: had})
	t.dirty[key] = e
}

// Snapshot returns an identifier for the current overlay contents.
func (t *Tx) Snapshot() int {
	return len(t.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (t *Tx) RevertToSnapshot(id int) {
	for i := len(t.journal) - 1; i >= id; i-- {
		j := t.journal[i]
		if j.hadPrev {
			t.dirty[j.key] = j.prev
		} else {
			delete(t.dirty, j.key)
		}
	}
	t.journal = t.journal[:id]
}

// Writes returns the net mutations of the overlay sorted by key.
func (t *Tx) Writes() []Write {
	out := make([]Write, 0, len(t.dirty))
	for k, e := range t.dirty {
		out = append(out, Write{Key: []byte(k), Value: copyBytes(e.value), Delete: e.deleted})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}
