package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// WebhookConfig holds settings for the Bark-style webhook push channel.
type WebhookConfig struct {
	URL     string
	Enabled bool
}

// TelegramConfig holds settings for the Telegram push channel.
type TelegramConfig struct {
	Token   string
	ChatIDs []int64
	Enabled bool
}

// VoiceConfig holds settings for the spoken-announcement channel.
type VoiceConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig groups all delivery channel settings.
type NotificationConfig struct {
	Webhook  WebhookConfig
	Telegram TelegramConfig
	Voice    VoiceConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Notification NotificationConfig

	Mode          string // http, mcp or both
	StateDir      string
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "0.0.0.0:7071"
	defaultLogLevel      = "info"
	defaultMode          = "http"
	defaultShutdownGrace = 5 * time.Second
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvInt64List(key string) []int64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > environment variables > .env file > defaults.
func Parse() (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "routinely", ".env"))
	}
	_ = godotenv.Load(envFiles...) // optional

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("ROUTINELY_ADDR", defaultAddr),
			AuthToken: getEnvString("ROUTINELY_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level: getEnvString("ROUTINELY_LOG_LEVEL", defaultLogLevel),
		},
		Notification: NotificationConfig{
			Webhook: WebhookConfig{
				URL:     getEnvString("ROUTINELY_WEBHOOK_URL", ""),
				Enabled: getEnvBool("ROUTINELY_WEBHOOK_ENABLED", false),
			},
			Telegram: TelegramConfig{
				Token:   getEnvString("ROUTINELY_TELEGRAM_TOKEN", ""),
				ChatIDs: getEnvInt64List("ROUTINELY_TELEGRAM_CHAT_IDS"),
				Enabled: getEnvBool("ROUTINELY_TELEGRAM_ENABLED", false),
			},
			Voice: VoiceConfig{
				URL:     getEnvString("ROUTINELY_VOICE_URL", ""),
				Enabled: getEnvBool("ROUTINELY_VOICE_ENABLED", false),
			},
		},
		Mode:          getEnvString("ROUTINELY_MODE", defaultMode),
		StateDir:      getEnvString("ROUTINELY_STATE_DIR", ""),
		ShutdownGrace: getEnvDuration("ROUTINELY_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	var addr, logLevel, stateDir, mode string
	var shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the catalog database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&mode, "mode", "", "Serve mode: http, mcp or both")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if mode != "" {
		cfg.Mode = mode
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q (want http, mcp or both)", cfg.Mode)
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "routinely")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
