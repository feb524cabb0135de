// Package main imports level definitions from YAML files into the
// level catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pixelvale/gamesync/internal/config"
	"github.com/pixelvale/gamesync/internal/game/levels"
	"github.com/pixelvale/gamesync/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	levelsDir := flag.String("levels", "content/levels", "path to level YAML files directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	defs, err := levels.LoadFromDir(*levelsDir)
	if err != nil {
		log.Fatalf("loading levels: %v", err)
	}
	if len(defs) == 0 {
		fmt.Fprintf(os.Stderr, "no level definitions found in %s\n", *levelsDir)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewLevelRepository(pool.DB())

	existing, err := repo.List(ctx)
	if err != nil {
		log.Fatalf("listing existing levels: %v", err)
	}
	known := make(map[string]bool, len(existing))
	for _, lvl := range existing {
		known[lvl.Name] = true
	}

	var created, skipped int
	for _, def := range defs {
		if known[def.Name] {
			skipped++
			continue
		}
		if _, err := repo.Create(ctx, def); err != nil {
			log.Fatalf("creating level %q: %v", def.Name, err)
		}
		created++
	}

	fmt.Printf("imported %d levels (%d skipped) in %s\n",
		created, skipped, time.Since(start).Round(time.Millisecond))
}
