package chunker

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabforge/modelvc/pkg/types"
)

func TestChunkBytes_SmallInput(t *testing.T) {
	input := []byte("Hello World")

	chunks, err := ChunkBytes(input)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, input, chunks[0].Data)
	assert.Equal(t, types.HashBytes(input), chunks[0].Hash)
}

func TestChunkBytes_Reassembles(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	input := make([]byte, 3*1024*1024)
	_, err := rng.Read(input)
	require.NoError(t, err)

	chunks, err := ChunkBytes(input)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "3MB of random data should split into multiple chunks")

	var reassembled bytes.Buffer
	for _, chunk := range chunks {
		assert.Equal(t, types.HashBytes(chunk.Data), chunk.Hash)
		reassembled.Write(chunk.Data)
	}
	assert.Equal(t, input, reassembled.Bytes())
}

func TestChunkBytes_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	input := make([]byte, 1024*1024)
	_, err := rng.Read(input)
	require.NoError(t, err)

	first, err := ChunkBytes(input)
	require.NoError(t, err)
	second, err := ChunkBytes(input)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Hash, second[i].Hash)
	}
}

func TestChunkBytes_Empty(t *testing.T) {
	chunks, err := ChunkBytes(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
