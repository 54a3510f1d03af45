package types

import (
	"bytes"
	"fmt"
)

// MaxParents caps the parent list: zero for a root commit, one for a normal
// commit, two for a merge commit. Octopus merges are not part of the model.
const MaxParents = 2

// Commit is an immutable history node: a tree plus its ancestry and
// metadata. Commits reference only parents that already exist at creation
// time, which keeps the history graph acyclic by construction.
type Commit struct {
	Tree    Hash
	Parents []Hash
	Author  string
	Message string
	// CreatedAt is the creation time in nanoseconds since the Unix epoch.
	CreatedAt int64
}

// Encode produces the canonical payload bytes for the commit.
func (c Commit) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(c.Tree[:])
	buf.WriteByte(byte(len(c.Parents)))
	for _, p := range c.Parents {
		buf.Write(p[:])
	}
	writeString(&buf, c.Author)
	writeInt64(&buf, c.CreatedAt)
	writeString(&buf, c.Message)
	return buf.Bytes()
}

// DecodeCommit parses a canonical commit payload.
func DecodeCommit(payload []byte) (Commit, error) {
	r := &payloadReader{data: payload}
	var c Commit
	var err error
	if c.Tree, err = r.hash(); err != nil {
		return Commit{}, fmt.Errorf("decode commit: %w", err)
	}
	parentCount, err := r.byte()
	if err != nil {
		return Commit{}, fmt.Errorf("decode commit: %w", err)
	}
	if int(parentCount) > MaxParents {
		return Commit{}, fmt.Errorf("%w: commit has %d parents", ErrMalformed, parentCount)
	}
	for i := byte(0); i < parentCount; i++ {
		p, err := r.hash()
		if err != nil {
			return Commit{}, fmt.Errorf("decode commit parent %d: %w", i, err)
		}
		c.Parents = append(c.Parents, p)
	}
	if c.Author, err = r.str(); err != nil {
		return Commit{}, fmt.Errorf("decode commit: %w", err)
	}
	if c.CreatedAt, err = r.int64(); err != nil {
		return Commit{}, fmt.Errorf("decode commit: %w", err)
	}
	if c.Message, err = r.str(); err != nil {
		return Commit{}, fmt.Errorf("decode commit: %w", err)
	}
	if err := r.done(); err != nil {
		return Commit{}, fmt.Errorf("decode commit: %w", err)
	}
	return c, nil
}

// IsRoot reports whether the commit starts a new history.
func (c Commit) IsRoot() bool {
	return len(c.Parents) == 0
}

// IsMerge reports whether the commit joins two histories.
func (c Commit) IsMerge() bool {
	return len(c.Parents) == 2
}
