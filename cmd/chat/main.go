package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devaloi/lobbychat/internal/client"
	"github.com/devaloi/lobbychat/internal/config"
	"github.com/devaloi/lobbychat/internal/store"
	"github.com/devaloi/lobbychat/internal/transport"
	"github.com/devaloi/lobbychat/internal/tui"
)

var cfg = config.LoadClient()

var flagLogFile string

var rootCmd = &cobra.Command{
	Use:   "lobbychat",
	Short: "Terminal chat client",
	RunE:  runChat,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.PageURL, "page-url", cfg.PageURL, "origin of the chat page; the socket URL is derived from it (env CHAT_PAGE_URL)")
	flags.StringVar(&cfg.PrefsPath, "prefs", cfg.PrefsPath, "where the last username is kept (env CHAT_PREFS_PATH)")
	flags.StringVar(&cfg.PrefsBackend, "prefs-backend", cfg.PrefsBackend, "prefs store: sqlite or pebble (env CHAT_PREFS_BACKEND)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (env LOG_LEVEL)")
	flags.StringVar(&flagLogFile, "log-file", "", "write logs to this file; logs are discarded when empty")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chat command")
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	// The terminal belongs to the UI, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if flagLogFile != "" {
		f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	config.SetupLogger(logOut, cfg.LogLevel)

	url, err := transport.URLFor(cfg.PageURL)
	if err != nil {
		return fmt.Errorf("derive socket url: %w", err)
	}

	prefs, err := store.OpenPrefs(cfg.PrefsBackend, cfg.PrefsPath)
	if err != nil {
		return fmt.Errorf("open prefs: %w", err)
	}
	defer prefs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := client.New(transport.New(url), prefs)
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	ui, err := tui.New(c)
	if err != nil {
		return fmt.Errorf("start ui: %w", err)
	}
	log.Info().Str("url", url).Str("prefs", cfg.PrefsBackend).Msg("chat started")
	uiErr := ui.Run()
	ui.Close()

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("client stopped")
	}
	return uiErr
}
