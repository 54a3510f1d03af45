package types_test

import (
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabforge/modelvc/pkg/types"
)

func TestHash_RoundTrip(t *testing.T) {
	h := types.HashBytes([]byte("hello world"))

	assert.Equal(t, types.Hash(sha512.Sum512([]byte("hello world"))), h)
	assert.False(t, h.IsZero())

	parsed, err := types.ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	fromBytes, err := types.HashFromBytes(h.Bytes())
	require.NoError(t, err)
	assert.Equal(t, h, fromBytes)
}

func TestHash_FromBytesRejectsWrongWidth(t *testing.T) {
	_, err := types.HashFromBytes([]byte("too short"))
	assert.Error(t, err)
}

func TestPayloadKind(t *testing.T) {
	assert.True(t, types.KindBlob.Valid())
	assert.True(t, types.KindTree.Valid())
	assert.True(t, types.KindCommit.Valid())
	assert.False(t, types.PayloadKind(0).Valid())
	assert.False(t, types.PayloadKind(42).Valid())

	assert.Equal(t, "blob", types.KindBlob.String())
	assert.Equal(t, "tree", types.KindTree.String())
	assert.Equal(t, "commit", types.KindCommit.String())
}

func TestTree_EncodeIsOrderIndependent(t *testing.T) {
	entryA := types.TreeEntry{ID: "a", Blob: types.HashBytes([]byte("a")), Kind: "sketch"}
	entryB := types.TreeEntry{ID: "b", Blob: types.HashBytes([]byte("b")), Kind: "extrude", Deps: []types.ObjectID{"a"}}
	entryC := types.TreeEntry{ID: "c", Blob: types.HashBytes([]byte("c")), Kind: "fillet", Deps: []types.ObjectID{"b", "a"}}

	first, err := types.NewTree([]types.TreeEntry{entryA, entryB, entryC})
	require.NoError(t, err)
	second, err := types.NewTree([]types.TreeEntry{entryC, entryA, entryB})
	require.NoError(t, err)

	assert.Equal(t, first.Encode(), second.Encode())
}

func TestTree_RejectsDuplicateIDs(t *testing.T) {
	_, err := types.NewTree([]types.TreeEntry{
		{ID: "a", Blob: types.HashBytes([]byte("one"))},
		{ID: "a", Blob: types.HashBytes([]byte("two"))},
	})
	assert.Error(t, err)
}

func TestTree_EncodeDecodeRoundTrip(t *testing.T) {
	tree, err := types.NewTree([]types.TreeEntry{
		{ID: "sketch-1", Blob: types.HashBytes([]byte("s1")), Kind: "sketch"},
		{ID: "extrude-1", Blob: types.HashBytes([]byte("e1")), Kind: "extrude", Deps: []types.ObjectID{"sketch-1"}},
	})
	require.NoError(t, err)

	decoded, err := types.DecodeTree(tree.Encode())
	require.NoError(t, err)
	assert.Equal(t, tree, decoded)

	entry, ok := decoded.Get("extrude-1")
	require.True(t, ok)
	assert.Equal(t, []types.ObjectID{"sketch-1"}, entry.Deps)

	_, ok = decoded.Get("missing")
	assert.False(t, ok)
}

func TestDecodeTree_RejectsMalformedPayloads(t *testing.T) {
	tree, err := types.NewTree([]types.TreeEntry{
		{ID: "a", Blob: types.HashBytes([]byte("a"))},
	})
	require.NoError(t, err)
	encoded := tree.Encode()

	_, err = types.DecodeTree(encoded[:len(encoded)-1])
	assert.ErrorIs(t, err, types.ErrMalformed)

	_, err = types.DecodeTree(append(encoded, 0x00))
	assert.ErrorIs(t, err, types.ErrMalformed)
}

func TestDecodeTree_RejectsUnsortedEntries(t *testing.T) {
	// Hand-build a payload with entries out of order by encoding two
	// single-entry trees and splicing them in the wrong order.
	treeB, err := types.NewTree([]types.TreeEntry{{ID: "b", Blob: types.HashBytes([]byte("b"))}})
	require.NoError(t, err)
	treeA, err := types.NewTree([]types.TreeEntry{{ID: "a", Blob: types.HashBytes([]byte("a"))}})
	require.NoError(t, err)

	payload := []byte{2, 0, 0, 0}
	payload = append(payload, treeB.Encode()[4:]...)
	payload = append(payload, treeA.Encode()[4:]...)

	_, err = types.DecodeTree(payload)
	assert.ErrorIs(t, err, types.ErrMalformed)
}

func TestCommit_EncodeDecodeRoundTrip(t *testing.T) {
	commit := types.Commit{
		Tree:      types.HashBytes([]byte("tree")),
		Parents:   []types.Hash{types.HashBytes([]byte("p1")), types.HashBytes([]byte("p2"))},
		Author:    "ada",
		Message:   "merge feature into main",
		CreatedAt: 1712345678900000000,
	}

	decoded, err := types.DecodeCommit(commit.Encode())
	require.NoError(t, err)
	assert.Equal(t, commit, decoded)
	assert.True(t, decoded.IsMerge())
	assert.False(t, decoded.IsRoot())
}

func TestCommit_RootHasNoParents(t *testing.T) {
	commit := types.Commit{
		Tree:      types.HashBytes([]byte("tree")),
		Author:    "ada",
		Message:   "initial",
		CreatedAt: 1,
	}

	decoded, err := types.DecodeCommit(commit.Encode())
	require.NoError(t, err)
	assert.True(t, decoded.IsRoot())
	assert.Empty(t, decoded.Parents)
}

func TestDecodeCommit_RejectsTruncatedPayload(t *testing.T) {
	commit := types.Commit{Tree: types.HashBytes([]byte("tree")), Author: "ada", CreatedAt: 1}
	encoded := commit.Encode()

	_, err := types.DecodeCommit(encoded[:types.HashSize])
	assert.ErrorIs(t, err, types.ErrMalformed)
}

func TestMergeStatus_String(t *testing.T) {
	assert.Equal(t, "already-merged", types.MergeAlreadyMerged.String())
	assert.Equal(t, "fast-forward", types.MergeFastForward.String())
	assert.Equal(t, "merged", types.MergeMerged.String())
	assert.Equal(t, "conflicted", types.MergeConflicted.String())
}
