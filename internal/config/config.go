package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AWS      AWSConfig      `yaml:"aws"`
	Linking  LinkingConfig  `yaml:"linking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
	// GenerateRatePerMinute limits AI generation requests per owner.
	GenerateRatePerMinute int `yaml:"generate_rate_per_minute"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis and
// content locks fall back to PostgreSQL advisory locks.
type RedisConfig struct {
	URL            string `yaml:"url"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the content lock TTL.
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// AWSConfig holds Bedrock and revision archive settings
type AWSConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	BedrockEnabled bool   `yaml:"bedrock_enabled"`
	BedrockModelID string `yaml:"bedrock_model_id"`

	// BedrockRequestsPerSecond throttles InvokeModel calls; zero disables it.
	BedrockRequestsPerSecond float64 `yaml:"bedrock_requests_per_second"`
	BedrockBurst             int     `yaml:"bedrock_burst"`

	RevisionBucket        string `yaml:"revision_bucket"`
	RevisionPrefix        string `yaml:"revision_prefix"`
	RevisionTable         string `yaml:"revision_table"`
	RevisionRetentionDays int    `yaml:"revision_retention_days"`
}

// RevisionRetention returns the DynamoDB index TTL.
func (c AWSConfig) RevisionRetention() time.Duration {
	return time.Duration(c.RevisionRetentionDays) * 24 * time.Hour
}

// LinkingConfig tunes scanning, generation and rendering
type LinkingConfig struct {
	MaxLinksPerContent     int    `yaml:"max_links_per_content"`
	RuleMatchedConfidence  int    `yaml:"rule_matched_confidence"`
	GenerateTimeoutSeconds int    `yaml:"generate_timeout_seconds"`
	MaxContextChars        int    `yaml:"max_context_chars"`
	MaxAISuggestions       int    `yaml:"max_ai_suggestions"`
	LinkTemplate           string `yaml:"link_template"`
}

// GenerateTimeout returns the AI generation timeout.
func (c LinkingConfig) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}

// WorkerConfig holds background rescan settings
type WorkerConfig struct {
	PollIntervalSeconds int          `yaml:"poll_interval_seconds"`
	Concurrency         int          `yaml:"concurrency"`
	BatchSize           int          `yaml:"batch_size"`
	LookbackMinutes     int          `yaml:"lookback_minutes"`
	MaxAttempts         int          `yaml:"max_attempts"`
	Feeds               []FeedConfig `yaml:"feeds"`
}

// PollInterval returns the rescan tick interval.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Lookback returns how far back the first rescan tick looks.
func (c WorkerConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackMinutes) * time.Minute
}

// FeedConfig names a publisher feed to watch
type FeedConfig struct {
	URL     string `yaml:"url"`
	OwnerID string `yaml:"owner_id"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Redact *bool  `yaml:"redact"`
}

// RedactEnabled defaults to true when unset.
func (c LogConfig) RedactEnabled() bool {
	return c.Redact == nil || *c.Redact
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied. It is used
// when no config file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.GenerateRatePerMinute == 0 {
		cfg.Server.GenerateRatePerMinute = 10
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.LockTTLSeconds == 0 {
		cfg.Redis.LockTTLSeconds = 30
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.AWS.RevisionPrefix == "" {
		cfg.AWS.RevisionPrefix = "revisions/"
	}
	if cfg.AWS.RevisionRetentionDays == 0 {
		cfg.AWS.RevisionRetentionDays = 90
	}
	if cfg.Linking.MaxLinksPerContent == 0 {
		cfg.Linking.MaxLinksPerContent = 20
	}
	if cfg.Linking.RuleMatchedConfidence == 0 {
		cfg.Linking.RuleMatchedConfidence = 75
	}
	if cfg.Linking.GenerateTimeoutSeconds == 0 {
		cfg.Linking.GenerateTimeoutSeconds = 30
	}
	if cfg.Linking.MaxContextChars == 0 {
		cfg.Linking.MaxContextChars = 8000
	}
	if cfg.Linking.MaxAISuggestions == 0 {
		cfg.Linking.MaxAISuggestions = 10
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 60
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 100
	}
	if cfg.Worker.LookbackMinutes == 0 {
		cfg.Worker.LookbackMinutes = 60
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS. A
// missing config file falls back to Default.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_PROFILE"); v != "" {
		cfg.AWS.Profile = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.AWS.BedrockModelID = v
		cfg.AWS.BedrockEnabled = true
	}
	if v := os.Getenv("REVISION_BUCKET"); v != "" {
		cfg.AWS.RevisionBucket = v
	}
	if v := os.Getenv("REVISION_TABLE"); v != "" {
		cfg.AWS.RevisionTable = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
