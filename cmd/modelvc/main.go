// Command modelvc is a small operator CLI over a repository data
// directory: list branches, show history, tag and merge.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fabforge/modelvc"
	"github.com/fabforge/modelvc/internal/config"
	"github.com/fabforge/modelvc/pkg/types"
)

func main() {
	configPath := flag.String("config", "modelvc.yaml", "path to config file")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := conf.Logger()

	repo, err := modelvc.Open(modelvc.Config{
		Paths:         []string{conf.DataDir},
		MinimumFreeGB: conf.MinimumFreeGB,
		Logger:        log,
	})
	if err != nil {
		log.Fatalf("open repository: %s", err)
	}
	defer repo.Close()

	ctx := context.Background()

	switch cmd := flag.Arg(0); cmd {
	case "branches":
		names, err := repo.Branches().List(ctx)
		if err != nil {
			log.Fatalf("list branches: %s", err)
		}
		for _, name := range names {
			head, err := repo.Branches().Head(ctx, name)
			if err != nil {
				log.Fatalf("resolve %s: %s", name, err)
			}
			fmt.Printf("%s\t%s\n", head.Short(), name)
		}

	case "log":
		if flag.NArg() < 2 {
			usage()
			os.Exit(2)
		}
		entries, err := repo.Log(ctx, flag.Arg(1), 50)
		if err != nil {
			log.Fatalf("log: %s", err)
		}
		for _, e := range entries {
			when := time.Unix(0, e.Commit.CreatedAt).UTC().Format(time.RFC3339)
			fmt.Printf("%s %s %s %s\n", e.Hash.Short(), when, e.Commit.Author, e.Commit.Message)
		}

	case "tag":
		if flag.NArg() < 3 {
			usage()
			os.Exit(2)
		}
		commit, err := types.ParseHash(flag.Arg(2))
		if err != nil {
			log.Fatalf("tag: %s", err)
		}
		if err := repo.Branches().CreateTag(ctx, flag.Arg(1), commit); err != nil {
			log.Fatalf("tag: %s", err)
		}

	case "merge":
		if flag.NArg() < 3 {
			usage()
			os.Exit(2)
		}
		outcome, err := repo.Merge(ctx, flag.Arg(1), flag.Arg(2), "modelvc-cli")
		if err != nil {
			log.Fatalf("merge: %s", err)
		}
		fmt.Printf("merge: %s\n", outcome.Status)
		if outcome.Status == types.MergeConflicted {
			for _, c := range outcome.Conflicts {
				fmt.Printf("  conflict on object %s\n", c.ID)
			}
			os.Exit(1)
		}

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: modelvc [-config file] <command>

commands:
  branches                 list branches and their heads
  log <branch>             show branch history
  tag <name> <commit>      tag a commit
  merge <target> <source>  merge source into target`)
}
