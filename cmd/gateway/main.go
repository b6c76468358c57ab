package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kettleofketchup/draftforge/internal/config"
	"github.com/kettleofketchup/draftforge/internal/dbconfig"
	"github.com/kettleofketchup/draftforge/internal/draft/broadcast"
	"github.com/kettleofketchup/draftforge/internal/draft/engine"
	"github.com/kettleofketchup/draftforge/internal/draft/gateway"
	"github.com/kettleofketchup/draftforge/internal/draft/roster"
	"github.com/kettleofketchup/draftforge/internal/draft/session"
	"github.com/kettleofketchup/draftforge/internal/draft/store"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: Postgres when configured, in-memory otherwise.
	st, cleanup := buildStore(ctx)
	defer cleanup()

	ros := roster.New()
	if raw := os.Getenv("ADMIN_USER_ID"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			ros.RegisterAdmin(id)
			log.Info().Str("admin_id", raw).Msg("registered admin user")
		} else {
			log.Warn().Str("value", raw).Msg("ignoring malformed ADMIN_USER_ID")
		}
	}

	eng := engine.New(ros)

	// Broadcast pipeline: WebSocket sink always, NATS sink when enabled.
	var sinks []broadcast.Sink
	svcCfg := gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		DefaultSettings:  cfg.Draft,
	}

	if cfg.NATS.Enabled {
		natsCfg := broadcast.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsSink, err := broadcast.NewNATSSink(natsCfg)
		if err != nil {
			// The draft must keep working without the bus.
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, continuing without bus sink")
		} else {
			defer natsSink.Close()
			sinks = append(sinks, natsSink)
		}
	}

	seq := broadcast.NewSequencer()
	registry := session.NewRegistry(ctx, eng, st, seq, clockwork.NewRealClock())
	svc := gateway.NewService(svcCfg, registry, ros, seq, st)

	seq.AddSink(svc.Connections())
	for _, sink := range sinks {
		seq.AddSink(sink)
	}
	go seq.Start(ctx)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      svc.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("draft gateway starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	svc.Shutdown(shutdownCtx)
	cancel()

	log.Info().Msg("draft gateway shutdown complete")
}

// buildStore returns the session store and a cleanup function. Postgres is
// used when DATABASE_URL or DB_HOST points somewhere reachable; otherwise
// everything stays in process memory.
func buildStore(ctx context.Context) (store.Store, func()) {
	if os.Getenv("DATABASE_URL") == "" && os.Getenv("DB_HOST") == "" {
		log.Info().Msg("no database configured, using in-memory store")
		return store.NewMemoryStore(), func() {}
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	pg := store.NewPostgresStore(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure database schema")
	}

	log.Info().Str("database", dbCfg.Database).Msg("using Postgres store")
	return pg, pool.Close
}
