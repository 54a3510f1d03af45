// Package document defines the contract between the version-control core
// and the CAD kernel adapter. The adapter is the only component that
// understands CAD semantics; the core sees a document purely as a map of
// stable object ids to serialized object states.
package document

import (
	"context"

	"github.com/fabforge/modelvc/pkg/types"
)

// ObjectState is one CAD object's serialized state as the adapter reports
// it. The core never interprets Payload; it only hashes and stores it.
type ObjectState struct {
	// Kind is the adapter-defined object kind (sketch, extrude, fillet...).
	Kind string
	// Deps lists the object ids this object is parametrically derived from.
	Deps []types.ObjectID
	// Payload is the adapter's serialization of the object's state. The
	// adapter must serialize deterministically: equal states must produce
	// equal bytes, or deduplication and merge classification degrade.
	Payload []byte
}

// ObjectMap is a full document snapshot.
type ObjectMap map[types.ObjectID]ObjectState

// Adapter is implemented by the CAD kernel integration. Snapshot reads the
// current working document; Materialize applies a checked-out snapshot to
// the working document.
type Adapter interface {
	Snapshot(ctx context.Context) (ObjectMap, error)
	Materialize(ctx context.Context, objects ObjectMap) error
}

// Clone deep-copies an ObjectMap so callers can mutate the copy freely.
func (m ObjectMap) Clone() ObjectMap {
	out := make(ObjectMap, len(m))
	for id, state := range m {
		payload := make([]byte, len(state.Payload))
		copy(payload, state.Payload)
		deps := make([]types.ObjectID, len(state.Deps))
		copy(deps, state.Deps)
		out[id] = ObjectState{Kind: state.Kind, Deps: deps, Payload: payload}
	}
	return out
}
