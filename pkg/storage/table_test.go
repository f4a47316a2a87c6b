package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTablePutGetDelete(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Put("nodes/water", []byte("v1")))

	value, err := table.Get("nodes/water")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	// Overwrite
	require.NoError(t, table.Put("nodes/water", []byte("v2")))
	value, err = table.Get("nodes/water")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
	require.Equal(t, 1, table.Len())

	table.Delete("nodes/water")
	_, err = table.Get("nodes/water")
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.Equal(t, 0, table.Len())

	// Deleting an absent key is a no-op
	table.Delete("nodes/water")
}

func TestTableRejectsBadInput(t *testing.T) {
	table := NewTable()

	require.ErrorIs(t, table.Put("", []byte("v")), ErrEmptyKey)
	require.ErrorIs(t, table.Put("k", nil), ErrNilValue)
}

func TestTableScanOrdered(t *testing.T) {
	table := NewTable()

	// Inserted out of order
	require.NoError(t, table.Put("nodes/water", []byte("w")))
	require.NoError(t, table.Put("attributes/a1", []byte("a")))
	require.NoError(t, table.Put("nodes/hydrogen", []byte("h")))
	require.NoError(t, table.Put("relations/r1", []byte("r")))

	entries := table.Scan("nodes/", "nodes0")
	require.Len(t, entries, 2)
	require.Equal(t, "nodes/hydrogen", entries[0].Key)
	require.Equal(t, "nodes/water", entries[1].Key)

	// Empty end bound scans to the end of the keyspace
	all := table.Scan("", "")
	require.Len(t, all, 4)
	require.Equal(t, "attributes/a1", all[0].Key)
	require.Equal(t, "relations/r1", all[3].Key)
}

func TestTableSize(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Put("ab", []byte("cd")))
	require.Equal(t, uint64(4), table.Size())

	require.NoError(t, table.Put("ab", []byte("c")))
	require.Equal(t, uint64(3), table.Size())

	table.Delete("ab")
	require.Equal(t, uint64(0), table.Size())
}

func TestTableStoresEmptyValue(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Put("k", []byte{}))
	require.True(t, table.Contains("k"))

	value, err := table.Get("k")
	require.NoError(t, err)
	require.NotNil(t, value)
	require.Empty(t, value)
}
