// Package branches owns the mutable ref table: named branch and tag
// pointers into the immutable commit graph. Branch advancement is a
// compare-and-swap, the single point of synchronization in the whole
// repository; everything underneath is content-addressed and needs no
// locks.
package branches

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fabforge/modelvc/internal/keyValStore"
	"github.com/fabforge/modelvc/pkg/cas"
	"github.com/fabforge/modelvc/pkg/commits"
	"github.com/fabforge/modelvc/pkg/document"
	"github.com/fabforge/modelvc/pkg/types"
)

var (
	// ErrBranchExists is returned by Create when the name is taken.
	ErrBranchExists = errors.New("branch already exists")
	// ErrTagExists is returned by CreateTag when the name is taken.
	ErrTagExists = errors.New("tag already exists")
	// ErrRefNotFound is returned when a branch or tag name does not resolve.
	ErrRefNotFound = errors.New("ref not found")
	// ErrUnknownCommit is returned when a caller-supplied commit hash does
	// not resolve to a commit.
	ErrUnknownCommit = errors.New("unknown commit")
	// ErrConcurrentUpdate is returned by Advance when the branch head moved
	// since the caller read it. Expected under concurrency; the documented
	// caller response is to recompute against the new head and retry.
	ErrConcurrentUpdate = errors.New("concurrent branch update")
	// ErrUnrelatedHistories is returned by Merge when the two heads share
	// no common ancestor.
	ErrUnrelatedHistories = errors.New("unrelated histories")
)

const (
	branchPrefix = "Branch:"
	tagPrefix    = "Tag:"
)

type Service struct {
	kv      *keyValStore.KeyValStore
	store   *cas.Store
	commits *commits.Service
	log     *logrus.Logger
}

func NewService(kv *keyValStore.KeyValStore, store *cas.Store, commitSvc *commits.Service, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{kv: kv, store: store, commits: commitSvc, log: logger}
}

// Create registers a new branch pointing at from.
func (s *Service) Create(ctx context.Context, name string, from types.Hash) error {
	if err := validateRefName(name); err != nil {
		return err
	}
	if err := s.resolveCommit(ctx, from); err != nil {
		return err
	}

	err := s.kv.PutIfAbsent(branchKey(name), from.Bytes())
	if errors.Is(err, keyValStore.ErrKeyExists) {
		return fmt.Errorf("branch %q: %w", name, ErrBranchExists)
	}
	if err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}

	s.log.WithFields(logrus.Fields{
		"branch": name,
		"head":   from.Short(),
	}).Info("branch created")
	return nil
}

// Head returns the commit a branch points at.
func (s *Service) Head(ctx context.Context, name string) (types.Hash, error) {
	if err := ctx.Err(); err != nil {
		return types.Hash{}, err
	}
	raw, err := s.kv.Read(branchKey(name))
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return types.Hash{}, fmt.Errorf("branch %q: %w", name, ErrRefNotFound)
		}
		return types.Hash{}, fmt.Errorf("read branch %q: %w", name, err)
	}
	head, err := types.HashFromBytes(raw)
	if err != nil {
		return types.Hash{}, fmt.Errorf("branch %q holds a malformed head: %w", name, err)
	}
	return head, nil
}

// Advance moves the branch from expectedOld to newHead with a
// compare-and-swap. It fails with ErrConcurrentUpdate when the head no
// longer equals expectedOld; the retry loop belongs to the caller.
func (s *Service) Advance(ctx context.Context, name string, expectedOld, newHead types.Hash) error {
	if err := s.resolveCommit(ctx, newHead); err != nil {
		return err
	}

	err := s.kv.CompareAndSwap(branchKey(name), expectedOld.Bytes(), newHead.Bytes())
	if errors.Is(err, keyValStore.ErrCASMismatch) {
		return fmt.Errorf("branch %q: %w", name, ErrConcurrentUpdate)
	}
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return fmt.Errorf("branch %q: %w", name, ErrRefNotFound)
	}
	if err != nil {
		return fmt.Errorf("advance branch %q: %w", name, err)
	}

	s.log.WithFields(logrus.Fields{
		"branch": name,
		"old":    expectedOld.Short(),
		"new":    newHead.Short(),
	}).Info("branch advanced")
	return nil
}

// Delete removes a branch ref. The commits it pointed at stay in the store;
// collecting unreachable objects is a separate maintenance concern.
func (s *Service) Delete(ctx context.Context, name string) error {
	if _, err := s.Head(ctx, name); err != nil {
		return err
	}
	if err := s.kv.Delete(branchKey(name)); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	s.log.WithField("branch", name).Info("branch deleted")
	return nil
}

// List returns all branch names.
func (s *Service) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, err := s.kv.GetKeysWithPrefix([]byte(branchPrefix))
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(string(key), branchPrefix))
	}
	return names, nil
}

// CreateTag registers an immutable named pointer at commit. Tags never
// move; there is deliberately no AdvanceTag.
func (s *Service) CreateTag(ctx context.Context, name string, commit types.Hash) error {
	if err := validateRefName(name); err != nil {
		return err
	}
	if err := s.resolveCommit(ctx, commit); err != nil {
		return err
	}

	err := s.kv.PutIfAbsent(tagKey(name), commit.Bytes())
	if errors.Is(err, keyValStore.ErrKeyExists) {
		return fmt.Errorf("tag %q: %w", name, ErrTagExists)
	}
	if err != nil {
		return fmt.Errorf("create tag %q: %w", name, err)
	}

	s.log.WithFields(logrus.Fields{
		"tag":    name,
		"commit": commit.Short(),
	}).Info("tag created")
	return nil
}

// Tag resolves a tag name to its commit.
func (s *Service) Tag(ctx context.Context, name string) (types.Hash, error) {
	if err := ctx.Err(); err != nil {
		return types.Hash{}, err
	}
	raw, err := s.kv.Read(tagKey(name))
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return types.Hash{}, fmt.Errorf("tag %q: %w", name, ErrRefNotFound)
		}
		return types.Hash{}, fmt.Errorf("read tag %q: %w", name, err)
	}
	return types.HashFromBytes(raw)
}

// Checkout resolves the branch head, loads its tree and every blob in it,
// and returns the reconstructed object map for the document adapter to
// materialize. Any missing link below a resolvable ref is repository
// corruption and propagates unchanged.
func (s *Service) Checkout(ctx context.Context, name string) (document.ObjectMap, error) {
	head, err := s.Head(ctx, name)
	if err != nil {
		return nil, err
	}

	commit, err := s.commits.GetCommit(ctx, head)
	if err != nil {
		return nil, fmt.Errorf("checkout %q: %w", name, err)
	}
	tree, err := s.commits.GetTree(ctx, commit.Tree)
	if err != nil {
		return nil, fmt.Errorf("checkout %q: %w", name, err)
	}

	objects := make(document.ObjectMap, len(tree.Entries))
	for _, entry := range tree.Entries {
		payload, kind, err := s.store.Get(ctx, entry.Blob)
		if err != nil {
			return nil, fmt.Errorf("checkout %q object %q: %w", name, entry.ID, err)
		}
		if kind != types.KindBlob {
			return nil, fmt.Errorf("checkout %q object %q: tree entry points at a %s: %w",
				name, entry.ID, kind, cas.ErrCorruptObject)
		}
		objects[entry.ID] = document.ObjectState{
			Kind:    entry.Kind,
			Deps:    entry.Deps,
			Payload: payload,
		}
	}
	return objects, nil
}

// resolveCommit verifies that hash names an existing commit.
func (s *Service) resolveCommit(ctx context.Context, hash types.Hash) error {
	if _, err := s.commits.GetCommit(ctx, hash); err != nil {
		if errors.Is(err, cas.ErrObjectNotFound) || errors.Is(err, commits.ErrNotACommit) {
			return fmt.Errorf("commit %s: %w", hash.Short(), ErrUnknownCommit)
		}
		return err
	}
	return nil
}

func validateRefName(name string) error {
	if name == "" {
		return fmt.Errorf("ref name must not be empty")
	}
	if strings.ContainsAny(name, ": \t\n") {
		return fmt.Errorf("ref name %q contains forbidden characters", name)
	}
	return nil
}

func branchKey(name string) []byte {
	return []byte(branchPrefix + name)
}

func tagKey(name string) []byte {
	return []byte(tagPrefix + name)
}
