package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Port       string
	DBPath     string
	MaxRooms   int
	MaxHistory int
	LobbyReset time.Duration
	LogLevel   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Port:       envOrDefault("PORT", "8080"),
		DBPath:     envOrDefault("DB_PATH", "lobbychat.db"),
		MaxRooms:   envOrDefaultInt("MAX_ROOMS", 100),
		MaxHistory: envOrDefaultInt("MAX_HISTORY", 50),
		LobbyReset: time.Duration(envOrDefaultInt("LOBBY_RESET_SECONDS", 300)) * time.Second,
		LogLevel:   envOrDefault("LOG_LEVEL", "info"),
	}
}

// ClientConfig holds terminal client configuration.
type ClientConfig struct {
	// PageURL is the origin the chat page would be served from. The socket
	// URL is derived from it.
	PageURL      string
	PrefsPath    string
	PrefsBackend string
	LogLevel     string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() ClientConfig {
	return ClientConfig{
		PageURL:      envOrDefault("CHAT_PAGE_URL", "http://localhost:8080"),
		PrefsPath:    envOrDefault("CHAT_PREFS_PATH", "lobbychat-prefs.db"),
		PrefsBackend: envOrDefault("CHAT_PREFS_BACKEND", "sqlite"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
	}
}

// SetupLogger points the global logger at w with the named level. Unknown
// levels fall back to info.
func SetupLogger(w io.Writer, level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
	}
}

// ConsoleWriter is a human-readable writer for terminals.
func ConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
