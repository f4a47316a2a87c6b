package storage

import (
	"errors"
	"sort"
	"sync"
)

// Table errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrNilValue    = errors.New("cannot store nil value")
	ErrEmptyKey    = errors.New("cannot use empty key")
)

// Entry is a single key-value pair returned by ranged scans.
type Entry struct {
	Key   string
	Value []byte
}

// Table is an ordered in-memory key-value table. It is the materialized
// view of the append-only log: the engine replays the log into a Table
// on open and keeps it current as records are appended.
type Table struct {
	mu     sync.RWMutex
	keys   []string // sorted
	values map[string][]byte
	size   uint64 // total bytes of keys and values
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		keys:   make([]string, 0),
		values: make(map[string][]byte),
	}
}

// Put adds or replaces a key-value pair. Empty values are stored;
// nil is rejected so a stored key always yields a non-nil Get.
func (t *Table) Put(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		return ErrNilValue
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, exists := t.values[key]; exists {
		t.size -= uint64(len(old))
	} else {
		i := sort.SearchStrings(t.keys, key)
		t.keys = append(t.keys, "")
		copy(t.keys[i+1:], t.keys[i:])
		t.keys[i] = key
		t.size += uint64(len(key))
	}

	t.values[key] = value
	t.size += uint64(len(value))
	return nil
}

// Get retrieves the value for a key.
func (t *Table) Get(key string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	value, exists := t.values[key]
	if !exists {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

// Delete removes a key. Deleting an absent key is a no-op.
func (t *Table) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value, exists := t.values[key]
	if !exists {
		return
	}

	delete(t.values, key)
	t.size -= uint64(len(key) + len(value))

	i := sort.SearchStrings(t.keys, key)
	if i < len(t.keys) && t.keys[i] == key {
		t.keys = append(t.keys[:i], t.keys[i+1:]...)
	}
}

// Contains reports whether a key exists.
func (t *Table) Contains(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, exists := t.values[key]
	return exists
}

// Scan returns all entries with start <= key < end in key order. An
// empty end bound scans to the end of the keyspace.
func (t *Table) Scan(start, end string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i := sort.SearchStrings(t.keys, start)
	entries := make([]Entry, 0)
	for ; i < len(t.keys); i++ {
		key := t.keys[i]
		if end != "" && key >= end {
			break
		}
		entries = append(entries, Entry{Key: key, Value: t.values[key]})
	}
	return entries
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

// Size returns the total size in bytes of all keys and values.
func (t *Table) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}
