package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angple/kb-engine/internal/app"
	"github.com/angple/kb-engine/internal/config"
	"github.com/angple/kb-engine/internal/database"
	"github.com/angple/kb-engine/internal/handler"
	"github.com/angple/kb-engine/internal/migration"
	"github.com/angple/kb-engine/internal/routes"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

func main() {
	dotenvFiles := config.LoadDotEnv()

	// 로거 초기화
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	log := pkglogger.GetLogger()
	log.Info().Str("app_env", env).Strs("env_files", dotenvFiles).Msg("starting")

	// 설정 로드
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.LogResolved(cfg)

	db, err := database.Open(cfg.Database, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := migration.Run(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get underlying DB")
	}
	prometheus.MustRegister(collectors.NewDBStatsCollector(sqlDB, cfg.Database.Name))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.Build(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire engine")
	}
	engine.Start()

	checks := map[string]handler.Check{
		"database": sqlDB.PingContext,
	}
	if engine.Cache.IsAvailable() {
		checks["redis"] = engine.Cache.Ping
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupOps(router, handler.NewHealthHandler(checks))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server shutdown failed")
	}
	if err := engine.Indexer.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("index queue not drained")
	}
	engine.Close()
	if err := database.Close(db); err != nil {
		log.Warn().Err(err).Msg("database close failed")
	}
}
