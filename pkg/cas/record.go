package cas

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ulikunitz/xz/lzma"

	"github.com/fabforge/modelvc/pkg/chunker"
	"github.com/fabforge/modelvc/pkg/types"
)

// Stored record layout:
//
//	byte 0: payload kind
//	byte 1: layout (inline or chunked)
//	inline:  lzma-compressed payload
//	chunked: uint32 chunk count, then count digests; each chunk is stored
//	         lzma-compressed under its own Chunk: key
func buildInlineRecord(kind types.PayloadKind, payload []byte) ([]byte, error) {
	compressed, err := compressWithLzma(payload)
	if err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}

	record := make([]byte, 0, 2+len(compressed))
	record = append(record, kind.Byte(), layoutInline)
	record = append(record, compressed...)
	return record, nil
}

func (s *Store) buildChunkedRecord(kind types.PayloadKind, payload []byte) ([]byte, error) {
	chunks, err := chunker.ChunkBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("chunk payload: %w", err)
	}

	for _, chunk := range chunks {
		compressed, err := compressWithLzma(chunk.Data)
		if err != nil {
			return nil, fmt.Errorf("compress chunk %s: %w", chunk.Hash.Short(), err)
		}
		if err := s.kv.WriteIfAbsent(chunkKey(chunk.Hash), compressed); err != nil {
			return nil, fmt.Errorf("write chunk %s: %w", chunk.Hash.Short(), err)
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(kind.Byte())
	buf.WriteByte(layoutChunked)
	var countBytes [4]byte
	binary.LittleEndian.PutUint32(countBytes[:], uint32(len(chunks)))
	buf.Write(countBytes[:])
	for _, chunk := range chunks {
		buf.Write(chunk.Hash[:])
	}
	return buf.Bytes(), nil
}

func (s *Store) decodeRecord(record []byte) (types.PayloadKind, []byte, error) {
	if len(record) < 2 {
		return 0, nil, fmt.Errorf("record too short: %d bytes", len(record))
	}

	kind := types.PayloadKind(record[0])
	if !kind.Valid() {
		return 0, nil, fmt.Errorf("unknown payload kind %d", record[0])
	}

	switch record[1] {
	case layoutInline:
		payload, err := decompressWithLzma(record[2:])
		if err != nil {
			return 0, nil, fmt.Errorf("decompress payload: %w", err)
		}
		return kind, payload, nil

	case layoutChunked:
		payload, err := s.reassembleChunks(record[2:])
		if err != nil {
			return 0, nil, err
		}
		return kind, payload, nil

	default:
		return 0, nil, fmt.Errorf("unknown record layout %d", record[1])
	}
}

func (s *Store) reassembleChunks(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("chunked record too short: %d bytes", len(body))
	}
	count := binary.LittleEndian.Uint32(body[:4])
	body = body[4:]
	if len(body) != int(count)*types.HashSize {
		return nil, fmt.Errorf("chunk list holds %d bytes, want %d", len(body), int(count)*types.HashSize)
	}

	var payload bytes.Buffer
	for i := uint32(0); i < count; i++ {
		var h types.Hash
		copy(h[:], body[int(i)*types.HashSize:])

		compressed, err := s.kv.Read(chunkKey(h))
		if err != nil {
			return nil, fmt.Errorf("read chunk %s: %w", h.Short(), err)
		}
		data, err := decompressWithLzma(compressed)
		if err != nil {
			return nil, fmt.Errorf("decompress chunk %s: %w", h.Short(), err)
		}
		if types.HashBytes(data) != h {
			return nil, fmt.Errorf("chunk %s does not re-hash to its key", h.Short())
		}
		payload.Write(data)
	}
	return payload.Bytes(), nil
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(data)
	if err != nil {
		return nil, err
	}

	err = w.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
