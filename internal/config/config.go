package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr       string
	LogLevel   string
	CORSOrigin string

	DatabaseURL string
	RedisURL    string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	EditorTTL  time.Duration

	// Owner account created or updated at start when both are set.
	AdminEmail    string
	AdminPassword string

	MeiliURL       string
	MeiliMasterKey string

	HistoryDir string

	S3 S3Config
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Load reads the environment, after applying a .env file when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:           getenv("SITE_ADDR", ":8080"),
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		CORSOrigin:     getenv("KC_CORS_ORIGIN", "*"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		RedisURL:       getenv("REDIS_URL", ""),
		JWTSecret:      getenv("KC_JWT_SECRET", "kisscoffee-dev-secret"),
		AccessTTL:      time.Duration(getenvInt("KC_ACCESS_TTL_SECONDS", 3600)) * time.Second,
		RefreshTTL:     time.Duration(getenvInt("KC_REFRESH_TTL_SECONDS", 1209600)) * time.Second,
		EditorTTL:      time.Duration(getenvInt("KC_EDITOR_TTL_SECONDS", 7200)) * time.Second,
		AdminEmail:     strings.TrimSpace(getenv("KC_ADMIN_EMAIL", "")),
		AdminPassword:  getenv("KC_ADMIN_PASSWORD", ""),
		MeiliURL:       strings.TrimSpace(getenv("MEILI_URL", "")),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		HistoryDir:     strings.TrimSpace(getenv("KC_HISTORY_DIR", "")),
		S3: S3Config{
			Endpoint:  strings.TrimSpace(getenv("S3_ENDPOINT", "")),
			AccessKey: getenv("S3_ACCESS_KEY", ""),
			SecretKey: getenv("S3_SECRET_KEY", ""),
			Bucket:    strings.TrimSpace(getenv("S3_BUCKET", "")),
			UseSSL:    getenvBool("S3_USE_SSL", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("SITE_ADDR is required")
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("KC_JWT_SECRET must not be empty")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.EditorTTL <= 0 {
		return fmt.Errorf("token and editor TTLs must be positive")
	}
	if c.RefreshTTL < c.AccessTTL {
		return fmt.Errorf("KC_REFRESH_TTL_SECONDS must not be shorter than KC_ACCESS_TTL_SECONDS")
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return fmt.Errorf("KC_ADMIN_EMAIL and KC_ADMIN_PASSWORD must be set together")
	}
	if (c.S3.Endpoint == "") != (c.S3.Bucket == "") {
		return fmt.Errorf("S3_ENDPOINT and S3_BUCKET must be set together")
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
