package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"engagement-shop/internal/config"
	"engagement-shop/internal/infra/sqlite3"
	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/storage"
	"engagement-shop/internal/stories/catalog"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/sethvargo/go-envconfig"
)

func main() {
	mappingPath := flag.String("mapping", "./services.yaml", "path to the supplier service mapping")
	dbPath := flag.String("db", "", "path to SQLite database (defaults to DB_PATH)")
	dryRun := flag.Bool("dry-run", false, "show what would be imported without writing to DB")
	flag.Parse()

	ctx := context.Background()
	_ = godotenv.Load()

	var cfg config.Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("env processing: %v", err)
	}
	if *dbPath != "" {
		cfg.DB.Path = *dbPath
	}

	m, err := loadMapping(*mappingPath)
	if err != nil {
		log.Fatalf("failed to load mapping: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	supplierClient := supplier.NewClient(cfg.Supplier, logger)

	offered, err := supplierClient.GetServices(ctx)
	if err != nil {
		log.Fatalf("failed to fetch supplier services: %v", err)
	}
	fmt.Printf("Supplier offers %d services, mapping covers %d\n", len(offered), len(m.Services))

	db, err := sqlite3.New(ctx, sqlite3.WithDSN(cfg.DB.Path), sqlite3.WithMigrations())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cat := catalog.NewCatalog(storage.New(db.DB), logger)

	existing, err := cat.ListServices(ctx, catalog.ListCriteria{})
	if err != nil {
		log.Fatalf("failed to list catalog: %v", err)
	}

	actions, warnings := plan(m, offered, lo.FromSlicePtr(existing))
	for _, w := range warnings {
		fmt.Printf("  WARN: %s\n", w)
	}

	var created, updated, unchanged, failed int
	for _, a := range actions {
		switch a.kind {
		case actionUnchanged:
			unchanged++
			continue
		case actionCreate:
			fmt.Printf("  CREATE %s %s x%d (supplier %s) price=%s\n",
				a.service.Type, a.service.Quality, a.service.Quantity, a.service.SupplierServiceID, a.service.Price)
		case actionUpdate:
			fmt.Printf("  UPDATE %s %s x%d supplier price %s -> %s\n",
				a.service.Type, a.service.Quality, a.service.Quantity, a.previous, a.service.SupplierPrice)
		}

		if *dryRun {
			if a.kind == actionCreate {
				created++
			} else {
				updated++
			}
			continue
		}

		if err := apply(ctx, cat, a); err != nil {
			fmt.Printf("  ERROR: %v\n", err)
			failed++
			continue
		}
		if a.kind == actionCreate {
			created++
		} else {
			updated++
		}
	}

	fmt.Printf("\n=== TOTAL ===\n")
	fmt.Printf("Created: %d\n", created)
	fmt.Printf("Updated: %d\n", updated)
	fmt.Printf("Unchanged: %d\n", unchanged)
	fmt.Printf("Errors: %d\n", failed)

	if *dryRun {
		fmt.Println("\n(DRY RUN - nothing was written to database)")
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func apply(ctx context.Context, cat *catalog.Catalog, a action) error {
	if a.kind == actionCreate {
		_, err := cat.CreateService(ctx, a.service)
		return err
	}
	_, err := cat.UpdateService(ctx, a.service.ID, catalog.UpdateParams{
		SupplierPrice: &a.service.SupplierPrice,
	})
	return err
}
