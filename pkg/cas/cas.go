// Package cas is the content-addressed object store. It persists three
// payload kinds (blobs, trees, commits) keyed by the digest of their
// content, deduplicates identical payloads on write, and verifies integrity
// by re-hashing on every read.
//
// Writes are idempotent and never mutate in place, so concurrent writers
// need no locking here; the only mutable state in the repository is the
// ref table, which lives outside this package.
package cas

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fabforge/modelvc/internal/keyValStore"
	"github.com/fabforge/modelvc/pkg/types"
)

var (
	// ErrObjectNotFound is returned when a hash resolves to nothing.
	ErrObjectNotFound = errors.New("object not found")
	// ErrCorruptObject is returned when stored bytes no longer re-hash to
	// the requested key. This is storage corruption, not a caller mistake;
	// it is never repaired or retried here.
	ErrCorruptObject = errors.New("corrupt object")
)

const (
	objectPrefix = "Object:"
	chunkPrefix  = "Chunk:"

	// Payloads at or above this size are stored as content-defined chunks
	// so large serialized object states dedup across edits.
	chunkThreshold = 256 * 1024

	layoutInline  = 0
	layoutChunked = 1
)

type Store struct {
	kv  *keyValStore.KeyValStore
	log *logrus.Logger
}

func NewStore(kv *keyValStore.KeyValStore, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{kv: kv, log: logger}
}

// ContentHash computes the address of a payload: the digest of
// kind || length || payload. Mixing in the kind keeps a blob and a tree
// with coincidentally equal bytes from colliding.
func ContentHash(kind types.PayloadKind, payload []byte) types.Hash {
	var buf bytes.Buffer
	buf.WriteByte(kind.Byte())
	var lenBytes [8]byte
	binary.LittleEndian.PutUint64(lenBytes[:], uint64(len(payload)))
	buf.Write(lenBytes[:])
	buf.Write(payload)
	return types.HashBytes(buf.Bytes())
}

// Put persists a payload and returns its hash. If an object with that hash
// already exists the existing entry is kept and its hash returned; the
// write is idempotent by construction.
func (s *Store) Put(ctx context.Context, kind types.PayloadKind, payload []byte) (types.Hash, error) {
	if err := ctx.Err(); err != nil {
		return types.Hash{}, err
	}
	if !kind.Valid() {
		return types.Hash{}, fmt.Errorf("invalid payload kind %v", kind)
	}

	hash := ContentHash(kind, payload)
	key := objectKey(hash)

	exists, err := s.kv.Has(key)
	if err != nil {
		return types.Hash{}, fmt.Errorf("put %s: %w", hash.Short(), err)
	}
	if exists {
		return hash, nil
	}

	var record []byte
	if len(payload) >= chunkThreshold {
		record, err = s.buildChunkedRecord(kind, payload)
	} else {
		record, err = buildInlineRecord(kind, payload)
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("put %s: %w", hash.Short(), err)
	}

	if err := s.kv.WriteIfAbsent(key, record); err != nil {
		return types.Hash{}, fmt.Errorf("put %s: %w", hash.Short(), err)
	}

	s.log.WithFields(logrus.Fields{
		"hash": hash.Short(),
		"kind": kind.String(),
		"size": len(payload),
	}).Debug("object stored")

	return hash, nil
}

// Get returns the payload and kind stored under hash. It fails with
// ErrObjectNotFound when the hash is absent and with ErrCorruptObject when
// the stored bytes do not re-hash to the requested key.
func (s *Store) Get(ctx context.Context, hash types.Hash) ([]byte, types.PayloadKind, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	record, err := s.kv.Read(objectKey(hash))
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return nil, 0, fmt.Errorf("object %s: %w", hash.Short(), ErrObjectNotFound)
		}
		return nil, 0, fmt.Errorf("get %s: %w", hash.Short(), err)
	}

	kind, payload, err := s.decodeRecord(record)
	if err != nil {
		return nil, 0, fmt.Errorf("object %s: %w: %v", hash.Short(), ErrCorruptObject, err)
	}

	if ContentHash(kind, payload) != hash {
		return nil, 0, fmt.Errorf("object %s: %w: content does not re-hash to key", hash.Short(), ErrCorruptObject)
	}

	return payload, kind, nil
}

// Contains reports object existence without fetching the payload. Ancestor
// walks and merge use this to avoid pulling full bodies repeatedly.
func (s *Store) Contains(ctx context.Context, hash types.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.kv.Has(objectKey(hash))
}

func objectKey(hash types.Hash) []byte {
	return append([]byte(objectPrefix), hash[:]...)
}

func chunkKey(hash types.Hash) []byte {
	return append([]byte(chunkPrefix), hash[:]...)
}
