package types

import (
	"bytes"
	"fmt"
	"sort"
)

// ObjectID is the stable logical identifier of one CAD object inside a
// document. It survives edits to the object, which is what lets history be
// tracked per object; the content hash of the object's state changes with
// every edit instead. Two-level addressing (ObjectID -> blob hash) is the
// reason "the same object changed on both branches" is even expressible.
type ObjectID string

// TreeEntry binds one object id to the blob holding its serialized state.
type TreeEntry struct {
	ID   ObjectID
	Blob Hash
	// Kind is the adapter-defined object kind (sketch, extrude, ...).
	// The core never interprets it, it only round-trips it.
	Kind string
	// Deps lists the object ids this object is parametrically derived from.
	Deps []ObjectID
}

// Tree is an immutable snapshot of a whole document: every object id mapped
// to its blob. Entries are kept sorted by ObjectID so the encoding, and
// therefore the tree hash, is independent of snapshot iteration order.
type Tree struct {
	Entries []TreeEntry
}

// NewTree builds a Tree from entries in any order. Duplicate object ids are
// rejected; a document cannot hold the same object twice.
func NewTree(entries []TreeEntry) (Tree, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID == sorted[i-1].ID {
			return Tree{}, fmt.Errorf("duplicate object id %q in tree", sorted[i].ID)
		}
	}
	return Tree{Entries: sorted}, nil
}

// Get returns the entry for id, if present.
func (t Tree) Get(id ObjectID) (TreeEntry, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].ID >= id })
	if i < len(t.Entries) && t.Entries[i].ID == id {
		return t.Entries[i], true
	}
	return TreeEntry{}, false
}

// Encode produces the canonical payload bytes for the tree.
func (t Tree) Encode() []byte {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(t.Entries)))
	for _, e := range t.Entries {
		writeString(&buf, string(e.ID))
		buf.Write(e.Blob[:])
		writeString(&buf, e.Kind)
		writeUint32(&buf, uint32(len(e.Deps)))
		for _, dep := range e.Deps {
			writeString(&buf, string(dep))
		}
	}
	return buf.Bytes()
}

// DecodeTree parses a canonical tree payload. Entries must arrive strictly
// sorted; anything else is a non-canonical payload and is rejected so a
// corrupted tree can never re-enter the store under a fresh hash.
func DecodeTree(payload []byte) (Tree, error) {
	r := &payloadReader{data: payload}
	count, err := r.uint32()
	if err != nil {
		return Tree{}, fmt.Errorf("decode tree: %w", err)
	}
	entries := make([]TreeEntry, 0, count)
	var prev ObjectID
	for i := uint32(0); i < count; i++ {
		var e TreeEntry
		id, err := r.str()
		if err != nil {
			return Tree{}, fmt.Errorf("decode tree entry %d: %w", i, err)
		}
		e.ID = ObjectID(id)
		if i > 0 && e.ID <= prev {
			return Tree{}, fmt.Errorf("%w: tree entries not strictly sorted at %q", ErrMalformed, e.ID)
		}
		prev = e.ID
		if e.Blob, err = r.hash(); err != nil {
			return Tree{}, fmt.Errorf("decode tree entry %q: %w", e.ID, err)
		}
		if e.Kind, err = r.str(); err != nil {
			return Tree{}, fmt.Errorf("decode tree entry %q: %w", e.ID, err)
		}
		depCount, err := r.uint32()
		if err != nil {
			return Tree{}, fmt.Errorf("decode tree entry %q: %w", e.ID, err)
		}
		for d := uint32(0); d < depCount; d++ {
			dep, err := r.str()
			if err != nil {
				return Tree{}, fmt.Errorf("decode tree entry %q dep %d: %w", e.ID, d, err)
			}
			e.Deps = append(e.Deps, ObjectID(dep))
		}
		entries = append(entries, e)
	}
	if err := r.done(); err != nil {
		return Tree{}, fmt.Errorf("decode tree: %w", err)
	}
	return Tree{Entries: entries}, nil
}
