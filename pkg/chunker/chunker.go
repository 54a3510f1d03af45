// Package chunker splits blob payloads into content-defined chunks so that
// large CAD object states dedup at chunk granularity: a small edit to a big
// serialized body reuses every chunk the edit did not touch.
package chunker

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"sync"

	boxochunker "github.com/ipfs/boxo/chunker"

	"github.com/fabforge/modelvc/pkg/types"
)

// Chunk is one content-defined piece of a payload, addressed by the digest
// of its bytes.
type Chunk struct {
	Hash types.Hash
	Data []byte
}

// ChunkBytes splits data with a buzhash rolling window and hashes the
// resulting chunks on a bounded set of workers. Chunk order follows the
// input.
func ChunkBytes(data []byte) ([]Chunk, error) {
	return ChunkReader(bytes.NewReader(data))
}

// ChunkReader is ChunkBytes for a stream. The chunk size is
// minimum/maximum = 128K/512K.
func ChunkReader(reader io.Reader) ([]Chunk, error) {
	bz := boxochunker.NewBuzhash(reader)

	numberOfWorkers := runtime.NumCPU()
	workerLimit := make(chan struct{}, numberOfWorkers)
	hashChan := make(chan indexedChunk, numberOfWorkers+1)

	var wg sync.WaitGroup
	var collectorWg sync.WaitGroup

	resultChan := make(chan []Chunk, 1)
	collectorWg.Add(1)
	go collectChunks(&collectorWg, hashChan, resultChan)

	var readErr error
	for chunkIndex := 0; ; chunkIndex++ {
		data, err := bz.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("error reading chunk: %w", err)
			break
		}

		wg.Add(1)
		workerLimit <- struct{}{}
		go hashChunk(&wg, hashChan, data, chunkIndex, workerLimit)
	}

	wg.Wait()
	close(hashChan)
	collectorWg.Wait()

	if readErr != nil {
		return nil, readErr
	}
	return <-resultChan, nil
}

type indexedChunk struct {
	index int
	chunk Chunk
}

func collectChunks(collectorWg *sync.WaitGroup, hashChan <-chan indexedChunk, resultChan chan<- []Chunk) {
	defer collectorWg.Done()

	byIndex := map[int]Chunk{}
	for ic := range hashChan {
		byIndex[ic.index] = ic.chunk
	}

	chunks := make([]Chunk, len(byIndex))
	for i := 0; i < len(byIndex); i++ {
		chunks[i] = byIndex[i]
	}
	resultChan <- chunks
}

func hashChunk(wg *sync.WaitGroup, hashChan chan<- indexedChunk, data []byte, index int, workerLimit chan struct{}) {
	defer wg.Done()

	hashChan <- indexedChunk{
		index: index,
		chunk: Chunk{Hash: types.HashBytes(data), Data: data},
	}
	<-workerLimit
}
