// Package main is the entrypoint for the Cornerstone content API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GyroZepelix/cornerstone/internal/audit"
	"github.com/GyroZepelix/cornerstone/internal/category"
	"github.com/GyroZepelix/cornerstone/internal/config"
	"github.com/GyroZepelix/cornerstone/internal/contenttypes"
	"github.com/GyroZepelix/cornerstone/internal/controller"
	"github.com/GyroZepelix/cornerstone/internal/database"
	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/logger"
	"github.com/GyroZepelix/cornerstone/internal/media"
	"github.com/GyroZepelix/cornerstone/internal/schema"
	"github.com/GyroZepelix/cornerstone/internal/server"
)

func main() {
	os.Exit(run())
}

// run wires and serves the application and returns the process exit code.
// It returns rather than exiting so deferred cleanup always runs.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		return 1
	}

	// --- Set up structured logging ---
	lg := logger.New(cfg.Log, os.Stdout)
	log.Logger = lg
	zerolog.DefaultContextLogger = &lg

	lg.Info().
		Int("port", cfg.Server.Port).
		Str("schema_dir", cfg.Schema.Dir).
		Str("media_dir", cfg.Media.Dir).
		Str("public_url", cfg.Server.PublicURL).
		Bool("dev_mode", cfg.DevMode).
		Msg("starting Cornerstone")

	// --- Load and validate schemas ---
	schemas, err := schema.LoadSchemas(cfg.Schema.Dir)
	if err != nil {
		lg.Error().Err(err).Msg("failed to load schemas")
		return 1
	}
	if err := schema.ValidateSchemas(schemas); err != nil {
		lg.Error().Err(err).Msg("schema validation failed")
		return 1
	}
	lg.Info().Int("count", len(schemas)).Msg("schemas loaded")

	// --- Connect to database, or fall back to memory in dev mode ---
	var (
		db          *database.DB
		auditWriter audit.Writer = audit.LogWriter{Log: lg}
		mediaRepo   media.Store  = media.NewMemoryRepository()
		health      func(ctx context.Context) error
	)
	if cfg.Database.URL != "" {
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err = database.New(dbCtx, cfg.Database.URL)
		dbCancel()
		if err != nil {
			lg.Error().Err(err).Msg("failed to connect to database")
			return 1
		}
		defer db.Close()
		lg.Info().Msg("database connected")

		version, err := database.RunMigrations(cfg.Database.URL)
		if err != nil {
			lg.Error().Err(err).Msg("failed to run migrations")
			return 1
		}
		lg.Info().Uint("version", version).Msg("migrations applied")

		auditWriter = audit.NewRepository(db)
		mediaRepo = media.NewRepository(db)
		health = db.Health
	} else {
		lg.Warn().Msg("no database configured, entries are kept in memory")
	}

	storage, err := media.NewLocalStorage(cfg.Media.Dir)
	if err != nil {
		lg.Error().Err(err).Msg("failed to initialize media storage")
		return 1
	}

	auditService := audit.NewService(auditWriter, lg)
	auditService.Start()

	// --- Media library ---
	mediaService := media.NewService(mediaRepo, storage, auditService, lg)
	abs := media.Absolutizer{Base: cfg.Server.PublicURL, TrustProxy: cfg.Server.TrustProxy}

	// --- Entity store and controllers ---
	var store entity.Store
	if db != nil {
		store = entity.NewPostgresStore(db, schemas, mediaService)
	} else {
		store = entity.NewMemoryStore(schemas, mediaService)
	}

	registry := controller.NewRegistry(controller.Deps{
		Store:    store,
		Schemas:  schemas,
		Resolver: category.NewResolver(store, auditService, lg),
		Media:    abs,
		Audit:    auditService,
		Logger:   lg,
	})

	// --- Build router and start server ---
	router := server.NewRouter(server.Dependencies{
		Health:       health,
		Logger:       lg,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Content:      controller.NewHandler(registry),
		ContentTypes: contenttypes.NewHandler(store, schemas),
		Media:        media.NewHandler(mediaService, abs),
	})
	srv := server.New(cfg.Server, router, lg)

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// --- Graceful shutdown on SIGINT/SIGTERM ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		lg.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			lg.Error().Err(err).Msg("server error")
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("server shutdown error")
		exitCode = 1
	}
	auditService.Shutdown(shutdownCtx)

	lg.Info().Uint64("audit_dropped", auditService.DroppedCount()).Msg("Cornerstone stopped")
	return exitCode
}
