package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/sudo-init-do/fieldhub/internal/catalog"
	"github.com/sudo-init-do/fieldhub/internal/config"
	"github.com/sudo-init-do/fieldhub/internal/db"
	"github.com/sudo-init-do/fieldhub/internal/directory"
	"github.com/sudo-init-do/fieldhub/internal/logging"
	"github.com/sudo-init-do/fieldhub/internal/seed"
)

func main() {
	file := flag.String("file", "deploy/seed.yaml", "YAML file with services, providers and requesters")
	flag.Parse()

	f, err := seed.Load(*file)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, "text")
	dsn := cfg.DatabaseURL()
	if err := db.Migrate(dsn, logger); err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := f.Apply(ctx, catalog.NewPostgresStore(pool), directory.NewPostgresStore(pool)); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	fmt.Printf("Seeded %d services, %d providers, %d requesters.\n", len(f.Services), len(f.Providers), len(f.Requesters))
}
