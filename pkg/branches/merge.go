package branches

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/fabforge/modelvc/pkg/types"
)

// Merge folds source into target. The read phase (merge-base search, tree
// loads, classification) holds no locks and may observe a stale target
// head; the final compare-and-swap advance is what detects and rejects that
// race, surfacing ErrConcurrentUpdate for the caller to retry.
func (s *Service) Merge(ctx context.Context, target, source, author string) (types.MergeOutcome, error) {
	targetHead, err := s.Head(ctx, target)
	if err != nil {
		return types.MergeOutcome{}, err
	}
	sourceHead, err := s.Head(ctx, source)
	if err != nil {
		return types.MergeOutcome{}, err
	}

	base, err := s.mergeBase(ctx, targetHead, sourceHead)
	if err != nil {
		return types.MergeOutcome{}, err
	}

	// Source already contained in target: nothing to write, ref untouched.
	if base == sourceHead {
		return types.MergeOutcome{Status: types.MergeAlreadyMerged, Commit: targetHead}, nil
	}

	// Target has no divergent commits: adopt the source head directly.
	if base == targetHead {
		if err := s.Advance(ctx, target, targetHead, sourceHead); err != nil {
			return types.MergeOutcome{}, err
		}
		return types.MergeOutcome{Status: types.MergeFastForward, Commit: sourceHead}, nil
	}

	baseTree, err := s.treeOf(ctx, base)
	if err != nil {
		return types.MergeOutcome{}, err
	}
	targetTree, err := s.treeOf(ctx, targetHead)
	if err != nil {
		return types.MergeOutcome{}, err
	}
	sourceTree, err := s.treeOf(ctx, sourceHead)
	if err != nil {
		return types.MergeOutcome{}, err
	}

	mergedEntries, conflicts := mergeTrees(baseTree, targetTree, sourceTree)
	if len(conflicts) > 0 {
		s.log.WithFields(logrus.Fields{
			"target":    target,
			"source":    source,
			"conflicts": len(conflicts),
		}).Info("merge found conflicts")
		return types.MergeOutcome{Status: types.MergeConflicted, Conflicts: conflicts}, nil
	}

	mergedTree, err := types.NewTree(mergedEntries)
	if err != nil {
		return types.MergeOutcome{}, err
	}
	treeHash, err := s.store.Put(ctx, types.KindTree, mergedTree.Encode())
	if err != nil {
		return types.MergeOutcome{}, fmt.Errorf("store merged tree: %w", err)
	}

	message := fmt.Sprintf("Merge branch %q into %q", source, target)
	mergeCommit, err := s.commits.CreateCommit(ctx, treeHash, []types.Hash{targetHead, sourceHead}, author, message, nil)
	if err != nil {
		return types.MergeOutcome{}, fmt.Errorf("create merge commit: %w", err)
	}

	if err := s.Advance(ctx, target, targetHead, mergeCommit); err != nil {
		return types.MergeOutcome{}, err
	}

	s.log.WithFields(logrus.Fields{
		"target": target,
		"source": source,
		"commit": mergeCommit.Short(),
	}).Info("branches merged")

	return types.MergeOutcome{Status: types.MergeMerged, Commit: mergeCommit}, nil
}

// mergeBase finds a common ancestor of a and b by walking both ancestries
// in lockstep, one step per side per round, until one walk produces a hash
// the other has already visited. With multiple lowest common ancestors
// (criss-cross histories) this picks the first hash found common to both
// walks; a deterministic, reproducible choice, though not necessarily the
// best one.
func (s *Service) mergeBase(ctx context.Context, a, b types.Hash) (types.Hash, error) {
	walkA, err := s.commits.NewWalker(ctx, a)
	if err != nil {
		return types.Hash{}, fmt.Errorf("merge base: %w", err)
	}
	walkB, err := s.commits.NewWalker(ctx, b)
	if err != nil {
		return types.Hash{}, fmt.Errorf("merge base: %w", err)
	}

	visitedA := map[types.Hash]struct{}{}
	visitedB := map[types.Hash]struct{}{}

	activeA, activeB := true, true
	for activeA || activeB {
		if activeA {
			hash, ok, err := walkA.Next()
			if err != nil {
				return types.Hash{}, fmt.Errorf("merge base: %w", err)
			}
			if !ok {
				activeA = false
			} else {
				if _, common := visitedB[hash]; common {
					return hash, nil
				}
				visitedA[hash] = struct{}{}
			}
		}

		if activeB {
			hash, ok, err := walkB.Next()
			if err != nil {
				return types.Hash{}, fmt.Errorf("merge base: %w", err)
			}
			if !ok {
				activeB = false
			} else {
				if _, common := visitedA[hash]; common {
					return hash, nil
				}
				visitedB[hash] = struct{}{}
			}
		}
	}

	return types.Hash{}, ErrUnrelatedHistories
}

func (s *Service) treeOf(ctx context.Context, commitHash types.Hash) (types.Tree, error) {
	commit, err := s.commits.GetCommit(ctx, commitHash)
	if err != nil {
		return types.Tree{}, err
	}
	return s.commits.GetTree(ctx, commit.Tree)
}

// mergeTrees classifies every object id appearing in any of the three trees
// and produces the merged entry set plus the object-level conflicts. A
// change is any difference in blob hash, kind or dependency list relative
// to the base.
func mergeTrees(base, target, source types.Tree) ([]types.TreeEntry, []types.Conflict) {
	ids := map[types.ObjectID]struct{}{}
	for _, e := range base.Entries {
		ids[e.ID] = struct{}{}
	}
	for _, e := range target.Entries {
		ids[e.ID] = struct{}{}
	}
	for _, e := range source.Entries {
		ids[e.ID] = struct{}{}
	}

	sortedIDs := make([]types.ObjectID, 0, len(ids))
	for id := range ids {
		sortedIDs = append(sortedIDs, id)
	}
	sort.Slice(sortedIDs, func(i, j int) bool { return sortedIDs[i] < sortedIDs[j] })

	var merged []types.TreeEntry
	var conflicts []types.Conflict

	for _, id := range sortedIDs {
		baseEntry, inBase := base.Get(id)
		targetEntry, inTarget := target.Get(id)
		sourceEntry, inSource := source.Get(id)

		switch {
		case inBase && inTarget && inSource:
			targetChanged := !entriesEqual(targetEntry, baseEntry)
			sourceChanged := !entriesEqual(sourceEntry, baseEntry)
			switch {
			case !targetChanged:
				// Unchanged in target: source's version wins, which also
				// covers the unchanged-in-both case.
				merged = append(merged, sourceEntry)
			case !sourceChanged:
				merged = append(merged, targetEntry)
			case entriesEqual(targetEntry, sourceEntry):
				// Both sides made the identical edit.
				merged = append(merged, targetEntry)
			default:
				conflicts = append(conflicts, types.Conflict{
					ID:     id,
					Base:   baseEntry.Blob,
					Target: targetEntry.Blob,
					Source: sourceEntry.Blob,
				})
			}

		case inBase && inTarget && !inSource:
			// Deleted in source.
			if entriesEqual(targetEntry, baseEntry) {
				continue // deletion wins over no edit
			}
			conflicts = append(conflicts, types.Conflict{
				ID:     id,
				Base:   baseEntry.Blob,
				Target: targetEntry.Blob,
			})

		case inBase && !inTarget && inSource:
			// Deleted in target.
			if entriesEqual(sourceEntry, baseEntry) {
				continue
			}
			conflicts = append(conflicts, types.Conflict{
				ID:     id,
				Base:   baseEntry.Blob,
				Source: sourceEntry.Blob,
			})

		case inBase:
			// Deleted on both sides.
			continue

		case inTarget && inSource:
			// Added independently on both sides.
			if entriesEqual(targetEntry, sourceEntry) {
				merged = append(merged, targetEntry)
				continue
			}
			conflicts = append(conflicts, types.Conflict{
				ID:     id,
				Target: targetEntry.Blob,
				Source: sourceEntry.Blob,
			})

		case inTarget:
			merged = append(merged, targetEntry)

		default:
			merged = append(merged, sourceEntry)
		}
	}

	return merged, conflicts
}

func entriesEqual(a, b types.TreeEntry) bool {
	if a.Blob != b.Blob || a.Kind != b.Kind || len(a.Deps) != len(b.Deps) {
		return false
	}
	for i := range a.Deps {
		if a.Deps[i] != b.Deps[i] {
			return false
		}
	}
	return true
}
