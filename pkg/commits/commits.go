// Package commits turns document snapshots into trees and trees into
// commits, and walks commit ancestry. It writes only through the
// content-addressed store, so everything it produces is immutable and
// deduplicated.
package commits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabforge/modelvc/pkg/cas"
	"github.com/fabforge/modelvc/pkg/document"
	"github.com/fabforge/modelvc/pkg/types"
)

var (
	// ErrUnknownParent is returned by CreateCommit when a parent hash does
	// not resolve to an existing commit.
	ErrUnknownParent = errors.New("unknown parent commit")
	// ErrNotACommit is returned when a hash resolves to a stored object of
	// a different kind.
	ErrNotACommit = errors.New("object is not a commit")
	// ErrNotATree is the tree-shaped counterpart of ErrNotACommit.
	ErrNotATree = errors.New("object is not a tree")
)

type Service struct {
	store *cas.Store
	log   *logrus.Logger
}

func NewService(store *cas.Store, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{store: store, log: logger}
}

// SnapshotToTree stores every object state as a blob and assembles the tree
// over them. Identical snapshots collapse to the same tree hash regardless
// of map iteration order, and unchanged objects reuse their existing blobs;
// this is the primary space-saving property of the design.
func (s *Service) SnapshotToTree(ctx context.Context, objects document.ObjectMap) (types.Hash, error) {
	if err := ctx.Err(); err != nil {
		return types.Hash{}, err
	}

	entries := make([]types.TreeEntry, 0, len(objects))
	for id, state := range objects {
		blobHash, err := s.store.Put(ctx, types.KindBlob, state.Payload)
		if err != nil {
			return types.Hash{}, fmt.Errorf("store blob for object %q: %w", id, err)
		}
		entries = append(entries, types.TreeEntry{
			ID:   id,
			Blob: blobHash,
			Kind: state.Kind,
			Deps: state.Deps,
		})
	}

	tree, err := types.NewTree(entries)
	if err != nil {
		return types.Hash{}, err
	}

	treeHash, err := s.store.Put(ctx, types.KindTree, tree.Encode())
	if err != nil {
		return types.Hash{}, fmt.Errorf("store tree: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"tree":    treeHash.Short(),
		"objects": len(entries),
	}).Debug("snapshot stored")

	return treeHash, nil
}

// CreateCommit validates ancestry and writes the commit record. Parents may
// only be commits that already exist, which keeps the history graph acyclic
// by construction: a commit can never reference a descendant. clock may be
// nil, in which case time.Now is used.
func (s *Service) CreateCommit(ctx context.Context, tree types.Hash, parents []types.Hash, author, message string, clock func() time.Time) (types.Hash, error) {
	if err := ctx.Err(); err != nil {
		return types.Hash{}, err
	}
	if len(parents) > types.MaxParents {
		return types.Hash{}, fmt.Errorf("commit may have at most %d parents, got %d", types.MaxParents, len(parents))
	}
	if clock == nil {
		clock = time.Now
	}

	exists, err := s.store.Contains(ctx, tree)
	if err != nil {
		return types.Hash{}, fmt.Errorf("check tree %s: %w", tree.Short(), err)
	}
	if !exists {
		return types.Hash{}, fmt.Errorf("tree %s: %w", tree.Short(), cas.ErrObjectNotFound)
	}

	for _, parent := range parents {
		if _, err := s.GetCommit(ctx, parent); err != nil {
			if errors.Is(err, cas.ErrObjectNotFound) || errors.Is(err, ErrNotACommit) {
				return types.Hash{}, fmt.Errorf("parent %s: %w", parent.Short(), ErrUnknownParent)
			}
			return types.Hash{}, err
		}
	}

	commit := types.Commit{
		Tree:      tree,
		Parents:   parents,
		Author:    author,
		Message:   message,
		CreatedAt: clock().UTC().UnixNano(),
	}

	commitHash, err := s.store.Put(ctx, types.KindCommit, commit.Encode())
	if err != nil {
		return types.Hash{}, fmt.Errorf("store commit: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"commit":  commitHash.Short(),
		"tree":    tree.Short(),
		"parents": len(parents),
	}).Debug("commit created")

	return commitHash, nil
}

// GetCommit loads and decodes one commit.
func (s *Service) GetCommit(ctx context.Context, hash types.Hash) (types.Commit, error) {
	payload, kind, err := s.store.Get(ctx, hash)
	if err != nil {
		return types.Commit{}, err
	}
	if kind != types.KindCommit {
		return types.Commit{}, fmt.Errorf("object %s is a %s: %w", hash.Short(), kind, ErrNotACommit)
	}
	commit, err := types.DecodeCommit(payload)
	if err != nil {
		return types.Commit{}, fmt.Errorf("commit %s: %w", hash.Short(), err)
	}
	return commit, nil
}

// GetTree loads and decodes one tree.
func (s *Service) GetTree(ctx context.Context, hash types.Hash) (types.Tree, error) {
	payload, kind, err := s.store.Get(ctx, hash)
	if err != nil {
		return types.Tree{}, err
	}
	if kind != types.KindTree {
		return types.Tree{}, fmt.Errorf("object %s is a %s: %w", hash.Short(), kind, ErrNotATree)
	}
	tree, err := types.DecodeTree(payload)
	if err != nil {
		return types.Tree{}, fmt.Errorf("tree %s: %w", hash.Short(), err)
	}
	return tree, nil
}
