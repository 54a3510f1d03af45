package document

import (
	"context"
	"sync"

	"github.com/fabforge/modelvc/pkg/types"
)

// MemoryDocument is an in-memory Adapter implementation. It stands in for
// a real CAD kernel adapter in tests and example binaries.
type MemoryDocument struct {
	mu      sync.RWMutex
	objects ObjectMap
}

func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{objects: ObjectMap{}}
}

// SetObject adds or replaces one object in the working document.
func (d *MemoryDocument) SetObject(id types.ObjectID, state ObjectState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[id] = state
}

// DeleteObject removes one object from the working document.
func (d *MemoryDocument) DeleteObject(id types.ObjectID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, id)
}

func (d *MemoryDocument) Snapshot(ctx context.Context) (ObjectMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.objects.Clone(), nil
}

func (d *MemoryDocument) Materialize(ctx context.Context, objects ObjectMap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects = objects.Clone()
	return nil
}
