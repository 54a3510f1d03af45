package keyValStore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *KeyValStore {
	t.Helper()
	kv, err := NewKeyValStore(StoreConfig{
		Paths:          []string{t.TempDir()},
		MinimumFreeGB:  1,
		SkipSpaceCheck: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestWriteRead(t *testing.T) {
	kv := newTestStore(t)

	require.NoError(t, kv.Write([]byte("key"), []byte("value")))

	value, err := kv.Read([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

func TestRead_MissingKey(t *testing.T) {
	kv := newTestStore(t)

	_, err := kv.Read([]byte("missing"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestHas(t *testing.T) {
	kv := newTestStore(t)

	found, err := kv.Has([]byte("key"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Write([]byte("key"), []byte("value")))

	found, err = kv.Has([]byte("key"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestWriteIfAbsent_KeepsExistingValue(t *testing.T) {
	kv := newTestStore(t)

	require.NoError(t, kv.WriteIfAbsent([]byte("key"), []byte("first")))
	require.NoError(t, kv.WriteIfAbsent([]byte("key"), []byte("second")))

	value, err := kv.Read([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), value)
}

func TestPutIfAbsent(t *testing.T) {
	kv := newTestStore(t)

	require.NoError(t, kv.PutIfAbsent([]byte("key"), []byte("first")))

	err := kv.PutIfAbsent([]byte("key"), []byte("second"))
	assert.ErrorIs(t, err, ErrKeyExists)
}

func TestCompareAndSwap(t *testing.T) {
	kv := newTestStore(t)

	require.NoError(t, kv.Write([]byte("ref"), []byte("old")))

	require.NoError(t, kv.CompareAndSwap([]byte("ref"), []byte("old"), []byte("new")))

	value, err := kv.Read([]byte("ref"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), value)

	err = kv.CompareAndSwap([]byte("ref"), []byte("old"), []byte("newer"))
	assert.ErrorIs(t, err, ErrCASMismatch)

	err = kv.CompareAndSwap([]byte("missing"), []byte("old"), []byte("new"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestCompareAndSwap_ConcurrentWriters(t *testing.T) {
	kv := newTestStore(t)
	require.NoError(t, kv.Write([]byte("ref"), []byte("old")))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replacement := []byte{byte('a' + i)}
			errs[i] = kv.CompareAndSwap([]byte("ref"), []byte("old"), replacement)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrCASMismatch)
		}
	}
	assert.Equal(t, 1, winners, "exactly one writer must win the swap")
}

func TestDelete(t *testing.T) {
	kv := newTestStore(t)

	require.NoError(t, kv.Write([]byte("key"), []byte("value")))
	require.NoError(t, kv.Delete([]byte("key")))

	_, err := kv.Read([]byte("key"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// deleting an absent key is fine
	assert.NoError(t, kv.Delete([]byte("key")))
}

func TestGetKeysWithPrefix(t *testing.T) {
	kv := newTestStore(t)

	require.NoError(t, kv.Write([]byte("Branch:main"), []byte("a")))
	require.NoError(t, kv.Write([]byte("Branch:feature"), []byte("b")))
	require.NoError(t, kv.Write([]byte("Tag:v1"), []byte("c")))

	keys, err := kv.GetKeysWithPrefix([]byte("Branch:"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	items, err := kv.GetItemsWithPrefix([]byte("Tag:"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []byte("Tag:v1"), items[0][0])
	assert.Equal(t, []byte("c"), items[0][1])
}
