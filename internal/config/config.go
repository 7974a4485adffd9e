// Package config loads YAML configuration with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Persistence. Empty databaseURL selects the in-memory gateway,
	// which is only suitable for development and tests.
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SessionSecret string `yaml:"sessionSecret"`
	SessionTTL    string `yaml:"sessionTTL"` // Go duration, e.g. "24h"

	// Vision provider (OpenAI-compatible chat completions).
	VisionBaseURL string `yaml:"visionBaseURL"`
	VisionModel   string `yaml:"visionModel"`
	VisionAPIKey  string `yaml:"visionAPIKey"`

	// APIKeyDir holds per-user vision API key files; empty disables
	// persistence of user-supplied keys.
	APIKeyDir string `yaml:"apiKeyDir"`

	// Photo archive (optional).
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	// Change events (optional).
	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`

	// Per-IP limits over a one-minute window; zero disables the limit.
	AuthRateLimit    int `yaml:"authRateLimit"`
	AnalyzeRateLimit int `yaml:"analyzeRateLimit"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Override with environment variables
func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("CALORIEAI_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("CALORIEAI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("CALORIEAI_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("CALORIEAI_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CALORIEAI_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("CALORIEAI_VISION_BASE_URL"); v != "" {
		cfg.VisionBaseURL = v
	}
	if v := os.Getenv("CALORIEAI_VISION_MODEL"); v != "" {
		cfg.VisionModel = v
	}
	if v := os.Getenv("CALORIEAI_VISION_API_KEY"); v != "" {
		cfg.VisionAPIKey = v
	}
	if v := os.Getenv("CALORIEAI_AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("CALORIEAI_MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("CALORIEAI_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("CALORIEAI_MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("CALORIEAI_AUTH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AuthRateLimit = n
		}
	}
	if v := os.Getenv("CALORIEAI_ANALYZE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AnalyzeRateLimit = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "24h"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "llama-3.2-11b-vision-preview"
	}
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = "calorieai.events"
	}
	if cfg.MinioBucket == "" {
		cfg.MinioBucket = "meal-photos"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml)")
	}
	if cfg.SessionSecret == "" {
		return errors.New("config: sessionSecret is required (set in config.yaml or CALORIEAI_SESSION_SECRET)")
	}
	if cfg.VisionBaseURL == "" {
		return errors.New("config: visionBaseURL is required (set in config.yaml)")
	}
	if _, err := time.ParseDuration(cfg.SessionTTL); err != nil {
		return fmt.Errorf("config: invalid sessionTTL %q: %w", cfg.SessionTTL, err)
	}
	return nil
}

// SessionTTLDuration returns the parsed session TTL. Load validates the
// value, so this never fails after a successful Load.
func (c FileConfig) SessionTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
