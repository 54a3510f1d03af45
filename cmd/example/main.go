// Scripted walkthrough of the version-control core: build a small
// parametric document in memory, commit it on main, edit it on a feature
// branch, edit it differently on main, and watch the merge report an
// object-level conflict.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fabforge/modelvc"
	"github.com/fabforge/modelvc/pkg/document"
	"github.com/fabforge/modelvc/pkg/types"
)

func main() {
	fmt.Println("Starting modelvc example")

	dataDir, err := os.MkdirTemp("", "modelvc-example")
	if err != nil {
		log.Fatalf("Failed to create data dir: %s", err)
	}
	defer os.RemoveAll(dataDir)

	repo, err := modelvc.Open(modelvc.Config{
		Paths:                     []string{filepath.Join(dataDir, "repo")},
		MinimumFreeGB:             1,
		GarbageCollectionInterval: 10 * time.Minute,
	})
	if err != nil {
		log.Fatalf("Failed to open repository: %s", err)
	}
	defer repo.Close()

	ctx := context.Background()
	doc := document.NewMemoryDocument()

	// A tiny parametric model: a sketch and an extrude derived from it.
	doc.SetObject("sketch-1", document.ObjectState{
		Kind:    "sketch",
		Payload: []byte(`{"plane":"XY","profile":"rect 40x20"}`),
	})
	doc.SetObject("extrude-1", document.ObjectState{
		Kind:    "extrude",
		Deps:    []types.ObjectID{"sketch-1"},
		Payload: []byte(`{"depth":10}`),
	})

	root, err := repo.InitBranch(ctx, "main", doc, "example", "initial model")
	if err != nil {
		log.Fatalf("Error creating main: %s", err)
	}
	fmt.Printf("main created at %s\n", root.Short())

	if err := repo.Branches().Create(ctx, "feature", root); err != nil {
		log.Fatalf("Error creating feature branch: %s", err)
	}

	// Feature branch deepens the extrude.
	doc.SetObject("extrude-1", document.ObjectState{
		Kind:    "extrude",
		Deps:    []types.ObjectID{"sketch-1"},
		Payload: []byte(`{"depth":25}`),
	})
	if _, err := repo.CommitSnapshot(ctx, "feature", doc, "example", "deepen extrude"); err != nil {
		log.Fatalf("Error committing on feature: %s", err)
	}

	// Main edits the same extrude differently.
	if err := repo.Checkout(ctx, "main", doc); err != nil {
		log.Fatalf("Error checking out main: %s", err)
	}
	doc.SetObject("extrude-1", document.ObjectState{
		Kind:    "extrude",
		Deps:    []types.ObjectID{"sketch-1"},
		Payload: []byte(`{"depth":5}`),
	})
	if _, err := repo.CommitSnapshot(ctx, "main", doc, "example", "shallow extrude"); err != nil {
		log.Fatalf("Error committing on main: %s", err)
	}

	outcome, err := repo.Merge(ctx, "main", "feature", "example")
	if err != nil {
		log.Fatalf("Error merging: %s", err)
	}
	fmt.Printf("merge outcome: %s\n", outcome.Status)
	for _, c := range outcome.Conflicts {
		fmt.Printf("  conflict on %s (target %s, source %s)\n",
			c.ID, c.Target.Short(), c.Source.Short())
	}

	entries, err := repo.Log(ctx, "main", 0)
	if err != nil {
		log.Fatalf("Error reading log: %s", err)
	}
	fmt.Println("main history:")
	for _, e := range entries {
		fmt.Printf("  %s %s\n", e.Hash.Short(), e.Commit.Message)
	}
}
