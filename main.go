package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/records-be/internal/api"
	"github.com/isdelr/records-be/internal/auth"
	"github.com/isdelr/records-be/internal/config"
	"github.com/isdelr/records-be/internal/database"
	"github.com/isdelr/records-be/internal/logger"
	"github.com/isdelr/records-be/internal/metrics"
	"github.com/isdelr/records-be/internal/monitoring"
	"github.com/isdelr/records-be/internal/services"
	"github.com/isdelr/records-be/internal/snapshots"
	"github.com/isdelr/records-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage outages are retried in the background; the API keeps serving.
	conn := database.NewConnector(
		database.WithBackoff(cfg.DBRetryBackoff),
		database.WithHealthInterval(cfg.DBHealthInterval),
		database.WithStateHook(metrics.SetDBConnected),
	)
	if err := conn.Connect(context.Background(), cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Failed to start database connector")
	}

	store, err := newSnapshotStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot store")
	}

	tokens, err := auth.NewManager(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token manager")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	sources, err := services.NewSQLCollections(conn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize collections")
	}
	counters := make([]services.Counter, 0, len(sources))
	listers := make([]services.Lister, 0, len(sources)+1)
	for _, src := range sources {
		listers = append(listers, src)
		if c, ok := src.(services.Counter); ok {
			counters = append(counters, c)
		}
	}
	listers = append(listers, services.NewMetricsSource(counters, true))

	eventService := services.NewEventService(conn)
	userService := services.NewUserService(conn)
	backupService, err := services.NewBackupService(listers, store, eventService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backup service")
	}
	restoreService, err := services.NewRestoreService(sources, store, eventService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize restore service")
	}

	// Set up and run the background stats updater
	statUpdater := monitoring.NewStatUpdater(counters, conn, cfg.DBHealthInterval)
	go statUpdater.Run()

	// Set up the backup scheduler
	scheduler := monitoring.NewScheduler(backupService, services.NewJobHistory(cfg.JobHistoryLimit), hub, cfg.BackupTimeout)
	switch {
	case cfg.BackupSchedule != "":
		err = scheduler.StartSpec(cfg.BackupSchedule)
	case cfg.BackupInterval > 0:
		err = scheduler.Start(cfg.BackupInterval)
	default:
		log.Info().Msg("Backup scheduler disabled; set BACKUP_INTERVAL or BACKUP_SCHEDULE to enable it")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start backup scheduler")
	}

	// Set up router
	router := api.NewRouter(api.Deps{
		Hub:          hub,
		Tokens:       tokens,
		Conn:         conn,
		Users:        userService,
		Events:       eventService,
		Sources:      sources,
		Backups:      backupService,
		Restores:     restoreService,
		Jobs:         scheduler,
		CORSOrigins:  cfg.CORSOrigins,
		SecureCookie: cfg.IsProduction(),
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("store", cfg.BackupStore).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	statUpdater.Stop()
	schedulerDone := scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.BackupTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let an in-flight capture finish before the database goes away.
	select {
	case <-schedulerDone.Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("Backup still running at shutdown, abandoning it")
	}

	hub.Stop()
	if err := conn.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}

	log.Info().Msg("Server exiting")
}

func newSnapshotStore(cfg *config.Config) (snapshots.Store, error) {
	if cfg.BackupStore == "memory" {
		log.Warn().Msg("Using in-memory snapshot store; backups are lost on restart")
		return snapshots.NewMemoryStore(), nil
	}
	return snapshots.NewFileStore(cfg.BackupPath)
}
