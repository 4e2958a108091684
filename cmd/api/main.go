package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/scythe504/zombie-mafia-backend/internal/config"
	"github.com/scythe504/zombie-mafia-backend/internal/game"
	"github.com/scythe504/zombie-mafia-backend/internal/lobby"
	"github.com/scythe504/zombie-mafia-backend/internal/logger"
	"github.com/scythe504/zombie-mafia-backend/internal/notify"
	"github.com/scythe504/zombie-mafia-backend/internal/server"
	"github.com/scythe504/zombie-mafia-backend/internal/storage"
	"github.com/scythe504/zombie-mafia-backend/internal/voice"
)

func main() {
	cfg, err := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	if cfg.VoiceSigningKey == "" {
		log.Warn().Msg("VOICE_SIGNING_KEY not set, voice sessions are disabled")
	}

	hub := notify.NewHub()
	provisioner := voice.NewProvisioner(cfg.VoiceSigningKey, cfg.VoiceTokenTTL)
	rooms := lobby.New(hub, cfg.GameOption, cfg.MinPlayers)
	manager := game.NewManager(rooms, store, hub, provisioner, nil)
	rooms.OnAllReady(func(ctx context.Context, roomID int64) error {
		_, err := manager.StartGame(ctx, roomID)
		return err
	})

	srv := server.NewServer(cfg, manager, rooms, hub, provisioner)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		manager.Shutdown()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		closeStore()
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

// openStore picks PostgreSQL when DATABASE_URL is set and the in-memory
// store otherwise.
func openStore(ctx context.Context, cfg config.Config) (game.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Info().Msg("DATABASE_URL not set, using in-memory store")
		return storage.NewMemoryStore(), func() {}
	}

	pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to postgres")
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		log.Fatal().Err(err).Msg("could not migrate postgres schema")
	}
	log.Info().Msg("using postgres store")
	return pg, pg.Close
}
