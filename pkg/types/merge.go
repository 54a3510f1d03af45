package types

import "fmt"

// MergeStatus classifies how a merge concluded.
type MergeStatus uint8

const (
	// MergeAlreadyMerged: the source head was already reachable from the
	// target head; nothing was written, the ref did not move.
	MergeAlreadyMerged MergeStatus = iota + 1
	// MergeFastForward: the target had not diverged from the merge base, so
	// the ref was advanced straight to the source head.
	MergeFastForward
	// MergeMerged: a merge commit with both heads as parents was written
	// and the target ref advanced to it.
	MergeMerged
	// MergeConflicted: divergent edits to the same objects were found.
	// Nothing was written and the ref did not move; Conflicts carries the
	// object-level detail for the caller to resolve.
	MergeConflicted
)

func (s MergeStatus) String() string {
	switch s {
	case MergeAlreadyMerged:
		return "already-merged"
	case MergeFastForward:
		return "fast-forward"
	case MergeMerged:
		return "merged"
	case MergeConflicted:
		return "conflicted"
	default:
		return fmt.Sprintf("MergeStatus(%d)", uint8(s))
	}
}

// Conflict records one object that diverged between the two branches
// relative to their merge base. A zero hash means the object was absent on
// that side (added on the other, or deleted).
type Conflict struct {
	ID     ObjectID
	Base   Hash
	Target Hash
	Source Hash
}

// MergeOutcome is the result value of a merge. A conflicted merge is a
// successful computation whose answer is "needs human resolution"; callers
// must check Status before assuming Commit is set.
type MergeOutcome struct {
	Status MergeStatus
	// Commit is the resulting head of the target branch for the
	// FastForward and Merged statuses; zero otherwise.
	Commit Hash
	// Conflicts is non-empty exactly when Status is MergeConflicted.
	Conflicts []Conflict
}
