package commits

import (
	"context"
	"fmt"

	"github.com/fabforge/modelvc/pkg/cas"
	"github.com/fabforge/modelvc/pkg/types"
)

// Walker produces the ancestors of a commit, the commit itself first, each
// reachable hash exactly once. Parents are queued first-parent first, so
// the order is breadth-first over the history graph: children before
// parents. The walk is finite on any commit graph because commits can only
// reference parents that existed before them.
//
// A Walker is single-use; start a fresh one per walk.
type Walker struct {
	ctx     context.Context
	svc     *Service
	queue   []types.Hash
	visited map[types.Hash]struct{}
}

// NewWalker starts an ancestor walk at start. The start commit must exist.
func (s *Service) NewWalker(ctx context.Context, start types.Hash) (*Walker, error) {
	exists, err := s.store.Contains(ctx, start)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("commit %s: %w", start.Short(), cas.ErrObjectNotFound)
	}
	return &Walker{
		ctx:     ctx,
		svc:     s,
		queue:   []types.Hash{start},
		visited: map[types.Hash]struct{}{},
	}, nil
}

// Next returns the next ancestor hash. The second result is false when the
// walk is exhausted. A parent hash that no longer resolves is repository
// corruption and surfaces as an error immediately.
func (w *Walker) Next() (types.Hash, bool, error) {
	for len(w.queue) > 0 {
		if err := w.ctx.Err(); err != nil {
			return types.Hash{}, false, err
		}

		hash := w.queue[0]
		w.queue = w.queue[1:]
		if _, seen := w.visited[hash]; seen {
			continue
		}
		w.visited[hash] = struct{}{}

		commit, err := w.svc.GetCommit(w.ctx, hash)
		if err != nil {
			return types.Hash{}, false, fmt.Errorf("walk ancestors at %s: %w", hash.Short(), err)
		}
		w.queue = append(w.queue, commit.Parents...)

		return hash, true, nil
	}
	return types.Hash{}, false, nil
}
