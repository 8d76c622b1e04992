package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"schoolbus/pkg/logger"
)

// ClientConfig configures cmd/busclient.
type ClientConfig struct {
	API      APIConfig
	Chat     ChatConfig
	Tracking TrackingConfig

	MetricsAddr string
	LogLevel    string
}

type APIConfig struct {
	BaseURL   string        `validate:"required,url"`
	SocketURL string        `validate:"required,url"`
	Token     string        `validate:"required"`
	Timeout   time.Duration `validate:"gt=0"`
}

type ChatConfig struct {
	// DedupWindow is the fuzzy duplicate window for incoming messages.
	DedupWindow time.Duration `validate:"gte=0"`
}

type TrackingConfig struct {
	TickInterval time.Duration `validate:"gt=0"`
	Mode         string        `validate:"oneof=auto server simulated"`
	Live         bool
}

// ServerConfig configures cmd/devserver.
type ServerConfig struct {
	Server   HTTPConfig
	Database DatabaseConfig
	JWT      JWTConfig
	NATS     NATSConfig
	Uploads  UploadConfig

	SeedFile string
	LogLevel string
}

type HTTPConfig struct {
	Port         string        `validate:"required"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
}

type DatabaseConfig struct {
	// URL selects the Postgres store; empty keeps everything in memory.
	URL string
}

type JWTConfig struct {
	Secret    []byte        `validate:"required,min=1"`
	ExpiresIn time.Duration `validate:"gt=0"`
}

type NATSConfig struct {
	URL     string
	Subject string `validate:"required"`
}

type UploadConfig struct {
	Dir       string `validate:"required"`
	PublicURL string
}

var validate = validator.New()

// LoadClient reads the client configuration from .env and the environment.
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	cfg := &ClientConfig{
		API: APIConfig{
			BaseURL:   strings.TrimRight(getEnvOrDefault("API_BASE_URL", "http://localhost:8080/api"), "/"),
			SocketURL: getEnvOrDefault("SOCKET_URL", "ws://localhost:8080/ws"),
			Token:     os.Getenv("AUTH_TOKEN"),
		},
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.API.Timeout, err = getDurationOrDefault("HTTP_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Chat.DedupWindow, err = getDurationOrDefault("CHAT_DEDUP_WINDOW", "1s"); err != nil {
		return nil, err
	}
	if cfg.Tracking.TickInterval, err = getDurationOrDefault("TRACKING_TICK_INTERVAL", "2.5s"); err != nil {
		return nil, err
	}
	cfg.Tracking.Mode = strings.ToLower(getEnvOrDefault("TRACKING_MODE", "auto"))
	if cfg.Tracking.Live, err = getBoolOrDefault("LIVE_TRACKING", false); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg.API); err != nil {
		return nil, fmt.Errorf("invalid api config: %w", err)
	}
	if err := validate.Struct(cfg.Chat); err != nil {
		return nil, fmt.Errorf("invalid chat config: %w", err)
	}
	if err := validate.Struct(cfg.Tracking); err != nil {
		return nil, fmt.Errorf("invalid tracking config: %w", err)
	}
	return cfg, nil
}

// LoadServer reads the emulator configuration from .env and the environment.
func LoadServer() (*ServerConfig, error) {
	loadDotEnv()

	cfg := &ServerConfig{
		Server: HTTPConfig{
			Port: getEnvOrDefault("PORT", ":8080"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		JWT: JWTConfig{
			Secret: []byte(os.Getenv("JWT_SECRET")),
		},
		NATS: NATSConfig{
			URL:     os.Getenv("NATS_URL"),
			Subject: getEnvOrDefault("NATS_SUBJECT", ">"),
		},
		Uploads: UploadConfig{
			Dir:       getEnvOrDefault("UPLOAD_DIR", "./uploads"),
			PublicURL: strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		},
		SeedFile: os.Getenv("SEED_FILE"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}
	if !strings.HasPrefix(cfg.Server.Port, ":") && !strings.Contains(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}

	var err error
	if cfg.Server.ReadTimeout, err = getDurationOrDefault("READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationOrDefault("WRITE_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.JWT.ExpiresIn, err = getDurationOrDefault("JWT_EXPIRES_IN", "24h"); err != nil {
		return nil, err
	}

	for name, section := range map[string]interface{}{
		"server":  cfg.Server,
		"jwt":     cfg.JWT,
		"nats":    cfg.NATS,
		"uploads": cfg.Uploads,
	} {
		if err := validate.Struct(section); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", name, err)
		}
	}
	return cfg, nil
}

func loadDotEnv() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded: %v", err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return duration, nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return b, nil
}
