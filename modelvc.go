// Package modelvc is a git-like version-control core for parametric CAD
// documents. It snapshots a document into an immutable, content-addressed
// object graph (blobs, trees, commits), tracks lines of development as
// mutable branch refs, and merges branches at object granularity.
//
// The design splits cleanly along mutability: blobs, trees and commits are
// immutable and deduplicated by content hash, so they need no locking;
// branch refs are the only mutable state and advance through a
// compare-and-swap. Callers that lose an advance race receive
// ErrConcurrentUpdate and are expected to recompute against the new head
// and retry.
package modelvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabforge/modelvc/internal/keyValStore"
	"github.com/fabforge/modelvc/pkg/branches"
	"github.com/fabforge/modelvc/pkg/cas"
	"github.com/fabforge/modelvc/pkg/commits"
	"github.com/fabforge/modelvc/pkg/document"
	"github.com/fabforge/modelvc/pkg/types"
)

// Config configures a repository instance. Only Paths[0] is used at the
// moment; future versions may use multiple paths for sharding or tiering.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// MinimumFreeGB is a free-space threshold checked when opening.
	MinimumFreeGB int
	// GarbageCollectionInterval schedules Badger value-log GC. Zero
	// disables the background ticker.
	GarbageCollectionInterval time.Duration
	// Logger is an optional structured logger. If nil, logrus.New is used.
	Logger *logrus.Logger
	// SkipSpaceCheck disables the free-space guard, for tests on small
	// scratch mounts.
	SkipSpaceCheck bool
}

// Repository owns one version-controlled model store: the key-value
// backend, the content-addressed object store, and the commit and branch
// managers over it.
type Repository struct {
	log    *logrus.Logger
	config Config

	kv       *keyValStore.KeyValStore
	store    *cas.Store
	commits  *commits.Service
	branches *branches.Service

	stopGC    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open initializes the repository under conf.Paths[0], creating it if
// needed. The returned Repository is safe for concurrent use.
func Open(conf Config) (*Repository, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:          conf.Paths,
		MinimumFreeGB:  conf.MinimumFreeGB,
		Logger:         conf.Logger,
		SkipSpaceCheck: conf.SkipSpaceCheck,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating KeyValStore: %w", err)
	}

	store := cas.NewStore(kv, conf.Logger)
	commitSvc := commits.NewService(store, conf.Logger)
	branchSvc := branches.NewService(kv, store, commitSvc, conf.Logger)

	repo := &Repository{
		log:      conf.Logger,
		config:   conf,
		kv:       kv,
		store:    store,
		commits:  commitSvc,
		branches: branchSvc,
		stopGC:   make(chan struct{}),
	}

	if conf.GarbageCollectionInterval > 0 {
		go repo.runGarbageCollection()
	}

	repo.log.WithField("path", conf.Paths[0]).Info("repository opened")
	return repo, nil
}

// Close stops background work and releases the store. Close is idempotent.
func (r *Repository) Close() error {
	r.closeOnce.Do(func() {
		close(r.stopGC)
		r.closeErr = r.kv.Close()
		r.log.Info("repository closed")
	})
	return r.closeErr
}

// Objects exposes the content-addressed object store.
func (r *Repository) Objects() *cas.Store {
	return r.store
}

// Commits exposes the commit manager.
func (r *Repository) Commits() *commits.Service {
	return r.commits
}

// Branches exposes the branch manager.
func (r *Repository) Branches() *branches.Service {
	return r.branches
}

// InitBranch snapshots the adapter's document into a root commit and
// creates a branch pointing at it. This is how history starts.
func (r *Repository) InitBranch(ctx context.Context, name string, adapter document.Adapter, author, message string) (types.Hash, error) {
	objects, err := adapter.Snapshot(ctx)
	if err != nil {
		return types.Hash{}, fmt.Errorf("snapshot document: %w", err)
	}
	tree, err := r.commits.SnapshotToTree(ctx, objects)
	if err != nil {
		return types.Hash{}, err
	}
	commit, err := r.commits.CreateCommit(ctx, tree, nil, author, message, nil)
	if err != nil {
		return types.Hash{}, err
	}
	if err := r.branches.Create(ctx, name, commit); err != nil {
		return types.Hash{}, err
	}
	return commit, nil
}

// CommitSnapshot snapshots the adapter's document and commits it onto the
// named branch. On ErrConcurrentUpdate the snapshot objects are already
// persisted and deduplicated; the caller recomputes against the new head
// and retries.
func (r *Repository) CommitSnapshot(ctx context.Context, branch string, adapter document.Adapter, author, message string) (types.Hash, error) {
	head, err := r.branches.Head(ctx, branch)
	if err != nil {
		return types.Hash{}, err
	}

	objects, err := adapter.Snapshot(ctx)
	if err != nil {
		return types.Hash{}, fmt.Errorf("snapshot document: %w", err)
	}
	tree, err := r.commits.SnapshotToTree(ctx, objects)
	if err != nil {
		return types.Hash{}, err
	}
	commit, err := r.commits.CreateCommit(ctx, tree, []types.Hash{head}, author, message, nil)
	if err != nil {
		return types.Hash{}, err
	}

	if err := r.branches.Advance(ctx, branch, head, commit); err != nil {
		return types.Hash{}, err
	}
	return commit, nil
}

// Checkout materializes the branch head into the adapter's document.
func (r *Repository) Checkout(ctx context.Context, branch string, adapter document.Adapter) error {
	objects, err := r.branches.Checkout(ctx, branch)
	if err != nil {
		return err
	}
	if err := adapter.Materialize(ctx, objects); err != nil {
		return fmt.Errorf("materialize document: %w", err)
	}
	return nil
}

// Merge folds source into target; see branches.Service.Merge.
func (r *Repository) Merge(ctx context.Context, target, source, author string) (types.MergeOutcome, error) {
	return r.branches.Merge(ctx, target, source, author)
}

// LogEntry pairs a commit with its hash for history listings.
type LogEntry struct {
	Hash   types.Hash
	Commit types.Commit
}

// Log returns up to limit commits reachable from the branch head, the head
// first. limit <= 0 means no limit.
func (r *Repository) Log(ctx context.Context, branch string, limit int) ([]LogEntry, error) {
	head, err := r.branches.Head(ctx, branch)
	if err != nil {
		return nil, err
	}

	walker, err := r.commits.NewWalker(ctx, head)
	if err != nil {
		return nil, err
	}

	var entries []LogEntry
	for limit <= 0 || len(entries) < limit {
		hash, ok, err := walker.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		commit, err := r.commits.GetCommit(ctx, hash)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LogEntry{Hash: hash, Commit: commit})
	}
	return entries, nil
}

func (r *Repository) runGarbageCollection() {
	ticker := time.NewTicker(r.config.GarbageCollectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopGC:
			return
		case <-ticker.C:
			if err := r.kv.Clean(); err != nil {
				r.log.WithError(err).Warn("value-log garbage collection failed")
			}
		}
	}
}

// Sentinel errors re-exported so callers can classify outcomes without
// importing the subpackages.
var (
	ErrObjectNotFound     = cas.ErrObjectNotFound
	ErrCorruptObject      = cas.ErrCorruptObject
	ErrUnknownParent      = commits.ErrUnknownParent
	ErrBranchExists       = branches.ErrBranchExists
	ErrRefNotFound        = branches.ErrRefNotFound
	ErrUnknownCommit      = branches.ErrUnknownCommit
	ErrConcurrentUpdate   = branches.ErrConcurrentUpdate
	ErrUnrelatedHistories = branches.ErrUnrelatedHistories
)

// IsRetryable reports whether an operation failed only because another
// writer advanced the branch first.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}
