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
	"github.com/spf13/cobra"

	"github.com/devaloi/lobbychat/internal/config"
	"github.com/devaloi/lobbychat/internal/handler"
	"github.com/devaloi/lobbychat/internal/hub"
	"github.com/devaloi/lobbychat/internal/store"
)

var cfg = config.Load()

var rootCmd = &cobra.Command{
	Use:   "lobbychat-server",
	Short: "Reference chat server with a resetting lobby",
	RunE:  runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port (env PORT)")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite message log path (env DB_PATH)")
	flags.IntVar(&cfg.MaxRooms, "max-rooms", cfg.MaxRooms, "maximum number of rooms, lobby included (env MAX_ROOMS)")
	flags.IntVar(&cfg.MaxHistory, "max-history", cfg.MaxHistory, "messages replayed when entering a room (env MAX_HISTORY)")
	flags.DurationVar(&cfg.LobbyReset, "lobby-reset", cfg.LobbyReset, "lobby reset period (env LOBBY_RESET_SECONDS)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (env LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute server command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	config.SetupLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	h := hub.New(s, hub.Options{
		MaxRooms:   cfg.MaxRooms,
		MaxHistory: cfg.MaxHistory,
		LobbyReset: cfg.LobbyReset,
	})
	go h.Run()
	defer h.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}()

	log.Info().Str("addr", srv.Addr).Str("db", cfg.DBPath).Dur("lobby_reset", cfg.LobbyReset).Msg("lobbychat listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
