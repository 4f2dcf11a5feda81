package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/angple/kb-engine/internal/app"
	"github.com/angple/kb-engine/internal/config"
	"github.com/angple/kb-engine/internal/database"
	"github.com/angple/kb-engine/internal/migration"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

func main() {
	// CLI flags
	configPath := flag.String("config", config.Path(), "config file path")
	reindex := flag.Bool("reindex", false, "rebuild the search index after migrating")
	tenantID := flag.Uint64("tenant", 0, "reindex only this tenant (0 = all)")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	config.LoadDotEnv()
	pkglogger.InitStructured(os.Getenv("APP_ENV"))
	log := pkglogger.GetLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.Open(cfg.Database, *verbose)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() { _ = database.Close(db) }()

	start := time.Now()
	if err := migration.Run(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Int("tables", len(migration.Models())).Msg("schema migrated")

	if !*reindex {
		return
	}

	ctx := context.Background()
	engine, err := app.Build(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire engine")
	}
	defer engine.Close()

	start = time.Now()
	var n int
	if *tenantID != 0 {
		n, err = engine.Search.ReindexTenant(ctx, *tenantID)
	} else {
		n, err = engine.ReindexAll(ctx)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("reindex failed")
	}
	log.Info().Int("articles", n).Dur("elapsed", time.Since(start)).Msg("reindex complete")
}
