package skiplist

import (
	"testing"

	"clobcore/internal/prng"
	"github.com/stretchr/testify/require"
)

func TestUpsertGetDelete(t *testing.T) {
	sl := New[string](prng.New(1))

	sl.Upsert(100, "a")
	sl.Upsert(50, "b")
	sl.Upsert(200, "c")

	v, ok := sl.Get(100)
	require.True(t, ok)
	require.Equal(t, "a", v)

	first, ok := sl.First()
	require.True(t, ok)
	require.Equal(t, int64(50), first.Key)

	require.True(t, sl.Delete(50))
	require.False(t, sl.Delete(50))

	first, ok = sl.First()
	require.True(t, ok)
	require.Equal(t, int64(100), first.Key)
}

func TestUpsertReplacesExistingValue(t *testing.T) {
	sl := New[int](prng.New(2))
	sl.Upsert(10, 1)
	sl.Upsert(10, 2)
	require.Equal(t, 1, sl.Len())
	v, _ := sl.Get(10)
	require.Equal(t, 2, v)
}

func TestEntriesOrderedAscending(t *testing.T) {
	sl := New[int](prng.New(3))
	keys := []int64{5, 1, 4, 2, 3}
	for _, k := range keys {
		sl.Upsert(k, int(k))
	}
	entries := sl.Entries(0)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		require.Less(t, entries[i-1].Key, entries[i].Key)
	}
}

func TestEntriesLimit(t *testing.T) {
	sl := New[int](prng.New(4))
	for i := int64(0); i < 10; i++ {
		sl.Upsert(i, int(i))
	}
	require.Len(t, sl.Entries(3), 3)
}

func TestEmptyFirst(t *testing.T) {
	sl := New[int](prng.New(5))
	_, ok := sl.First()
	require.False(t, ok)
}

func TestDeterministicStructureAcrossIdenticalSeeds(t *testing.T) {
	a := New[int](prng.New(123))
	b := New[int](prng.New(123))
	for i := int64(0); i < 200; i++ {
		a.Upsert(i, int(i))
		b.Upsert(i, int(i))
	}
	require.Equal(t, a.Entries(0), b.Entries(0))
}

func TestGetOrInsert(t *testing.T) {
	sl := New[int](prng.New(6))
	v := sl.GetOrInsert(7, func() int { return 42 })
	require.Equal(t, 42, v)
	v2 := sl.GetOrInsert(7, func() int { return 999 })
	require.Equal(t, 42, v2)
}
