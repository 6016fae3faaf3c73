// Package config loads gateway configuration from the environment.
// A .env file is honored when present; database-stored settings override
// these values at runtime for everything the admin surface can edit.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ModelMap is one display-name to internal-name entry used to seed the
// model mapping table on first run.
type ModelMap struct {
	DisplayName  string `yaml:"displayName" json:"displayName"`
	InternalName string `yaml:"internalName" json:"internalName"`
}

// Config carries all startup configuration.
type Config struct {
	Host string
	Port string

	AdminUsername        string
	AdminPassword        string
	AdminTokenSecret     string
	AdminTokenExpiryDays int

	// Seed data, applied only when the corresponding table is empty.
	DefaultCallerKeys  []string
	DefaultCredentials []string
	DefaultModelMaps   []ModelMap

	MaxFailCount      int
	MaxRequestRecords int
	PerKeyRPM         int
	SystemRPM         int

	APIBaseURL  string
	AuthBaseURL string

	DefaultModel string
	DBPath       string
}

// Load reads configuration from the environment, loading .env first when
// one exists in the working directory.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		Host:                 getEnv("HOST", "0.0.0.0"),
		Port:                 getEnv("PORT", "8000"),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:        getEnv("ADMIN_PASSWORD", "admin123"),
		AdminTokenSecret:     getEnv("ADMIN_TOKEN_SECRET", ""),
		AdminTokenExpiryDays: getEnvInt("ADMIN_TOKEN_EXPIRY_DAYS", 30),
		MaxFailCount:         getEnvInt("MAX_FAIL_NUM", 3),
		MaxRequestRecords:    getEnvInt("MAX_REQUEST_RECORD_NUM", 30),
		PerKeyRPM:            getEnvInt("PER_APIKEY_RPM", 30),
		SystemRPM:            getEnvInt("SYSTEM_RPM", 100),
		APIBaseURL:           getEnv("API_BASE_URL", "https://api.enginelabs.ai"),
		AuthBaseURL:          getEnv("AUTH_BASE_URL", "https://clerk.cto.new"),
		DefaultModel:         getEnv("DEFAULT_MODEL", "claude-sonnet-4.5"),
		DBPath:               getEnv("GATEWAY_DB", "gateway.db"),
	}

	if cfg.AdminTokenSecret == "" {
		// Ephemeral secret: admin sessions do not survive a restart unless
		// ADMIN_TOKEN_SECRET is set explicitly.
		cfg.AdminTokenSecret = uuid.New().String()
	}

	cfg.DefaultCallerKeys = splitList(getEnv("DEFAULT_CHAT_APIKEYS", "sk-default,sk-false"))

	if raw := os.Getenv("DEFAULT_SESSION_COOKIES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.DefaultCredentials); err != nil {
			return nil, fmt.Errorf("parse DEFAULT_SESSION_COOKIES: %w", err)
		}
	}

	maps, err := loadModelMaps()
	if err != nil {
		return nil, err
	}
	cfg.DefaultModelMaps = maps

	return cfg, nil
}

func loadModelMaps() ([]ModelMap, error) {
	if path := os.Getenv("MODEL_MAPS_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read MODEL_MAPS_FILE: %w", err)
		}
		var maps []ModelMap
		if err := yaml.Unmarshal(data, &maps); err != nil {
			return nil, fmt.Errorf("parse MODEL_MAPS_FILE: %w", err)
		}
		if len(maps) > 0 {
			return maps, nil
		}
	}
	return []ModelMap{
		{DisplayName: "claude-sonnet-4.5", InternalName: "ClaudeSonnet4_5"},
		{DisplayName: "gpt-5", InternalName: "GPT5"},
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
