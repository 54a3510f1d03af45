package cas_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabforge/modelvc/internal/keyValStore"
	"github.com/fabforge/modelvc/pkg/cas"
	"github.com/fabforge/modelvc/pkg/types"
)

func newTestStore(t *testing.T) (*cas.Store, *keyValStore.KeyValStore) {
	t.Helper()
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:          []string{t.TempDir()},
		MinimumFreeGB:  1,
		SkipSpaceCheck: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return cas.NewStore(kv, nil), kv
}

func objectKey(hash types.Hash) []byte {
	return append([]byte("Object:"), hash.Bytes()...)
}

func TestPutGet_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"plane":"XY","profile":"rect 40x20"}`)
	hash, err := store.Put(ctx, types.KindBlob, payload)
	require.NoError(t, err)
	assert.Equal(t, cas.ContentHash(types.KindBlob, payload), hash)

	got, kind, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, types.KindBlob, kind)
}

func TestPut_IsIdempotent(t *testing.T) {
	store, kv := newTestStore(t)
	ctx := context.Background()

	payload := []byte("same bytes")
	first, err := store.Put(ctx, types.KindBlob, payload)
	require.NoError(t, err)
	second, err := store.Put(ctx, types.KindBlob, payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// exactly one physical copy
	keys, err := kv.GetKeysWithPrefix([]byte("Object:"))
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestPut_KindDistinguishesPayloads(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	payload := []byte("identical bytes")
	asBlob, err := store.Put(ctx, types.KindBlob, payload)
	require.NoError(t, err)
	asTree, err := store.Put(ctx, types.KindTree, payload)
	require.NoError(t, err)
	assert.NotEqual(t, asBlob, asTree)
}

func TestPut_RejectsInvalidKind(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Put(context.Background(), types.PayloadKind(99), []byte("x"))
	assert.Error(t, err)
}

func TestGet_MissingObject(t *testing.T) {
	store, _ := newTestStore(t)

	_, _, err := store.Get(context.Background(), types.HashBytes([]byte("nothing here")))
	assert.ErrorIs(t, err, cas.ErrObjectNotFound)
}

func TestGet_DetectsCorruption(t *testing.T) {
	store, kv := newTestStore(t)
	ctx := context.Background()

	hashA, err := store.Put(ctx, types.KindBlob, []byte("payload A"))
	require.NoError(t, err)
	hashB, err := store.Put(ctx, types.KindBlob, []byte("payload B"))
	require.NoError(t, err)

	// Splice A's record under B's key: the record decodes fine but no
	// longer re-hashes to the requested key.
	recordA, err := kv.Read(objectKey(hashA))
	require.NoError(t, err)
	require.NoError(t, kv.Write(objectKey(hashB), recordA))

	_, _, err = store.Get(ctx, hashB)
	assert.ErrorIs(t, err, cas.ErrCorruptObject)
}

func TestGet_DetectsGarbageRecord(t *testing.T) {
	store, kv := newTestStore(t)
	ctx := context.Background()

	hash := types.HashBytes([]byte("victim"))
	require.NoError(t, kv.Write(objectKey(hash), []byte{0xff, 0xfe, 0xfd}))

	_, _, err := store.Get(ctx, hash)
	assert.ErrorIs(t, err, cas.ErrCorruptObject)
}

func TestContains(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash, err := store.Put(ctx, types.KindBlob, []byte("present"))
	require.NoError(t, err)

	found, err := store.Contains(ctx, hash)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.Contains(ctx, types.HashBytes([]byte("absent")))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutGet_LargePayloadIsChunked(t *testing.T) {
	store, kv := newTestStore(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(99))
	payload := make([]byte, 2*1024*1024)
	_, err := rng.Read(payload)
	require.NoError(t, err)

	hash, err := store.Put(ctx, types.KindBlob, payload)
	require.NoError(t, err)

	chunkKeys, err := kv.GetKeysWithPrefix([]byte("Chunk:"))
	require.NoError(t, err)
	assert.NotEmpty(t, chunkKeys, "2MB payload should be stored chunked")

	got, kind, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.KindBlob, kind)
	assert.Equal(t, payload, got)
}

func TestPut_EmptyPayload(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash, err := store.Put(ctx, types.KindBlob, nil)
	require.NoError(t, err)

	got, kind, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.KindBlob, kind)
	assert.Empty(t, got)
}
