// Package config provides configuration management for the ingestion and
// retrieval pipeline: environment variables, an optional YAML override
// file, and runtime defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Qdrant     QdrantConfig     `json:"qdrant"`
	Redis      RedisConfig      `json:"redis"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Chunking   ChunkingConfig   `json:"chunking"`
	CostPolicy CostPolicyConfig `json:"cost_policy"`
	Logging    LoggingConfig    `json:"logging"`
	WebSocket  WebSocketConfig  `json:"websocket"`
}

// ServerConfig represents HTTP ingress server configuration.
type ServerConfig struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout_seconds"`
	WriteTimeout int    `json:"write_timeout_seconds"`
}

// DatabaseConfig represents the graph store's backing database. Driver is
// "postgres" or "sqlite3"; the same schema and queries run against either.
type DatabaseConfig struct {
	Driver          string        `json:"driver"`
	DSN             string        `json:"-"` // never serialize, may carry credentials
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"-"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`

	QueryTimeout       time.Duration `json:"query_timeout"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold"`
	EnableQueryLogging bool          `json:"enable_query_logging"`
	EnableMetrics      bool          `json:"enable_metrics"`

	MigrationTimeout  time.Duration `json:"migration_timeout"`
	EnableAutoMigrate bool          `json:"enable_auto_migrate"`
	MigrationsPath    string        `json:"migrations_path"`
}

// BuildDSN returns the driver-appropriate connection string. For sqlite3
// this is a file path (or ":memory:"); for postgres it is a standard
// key=value DSN built from the discrete fields.
func (d *DatabaseConfig) BuildDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite3" {
		if d.Name == "" {
			return ":memory:"
		}
		return d.Name
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// QdrantConfig represents Qdrant vector database configuration.
type QdrantConfig struct {
	Host           string       `json:"host"`
	Port           int          `json:"port"`
	APIKey         string       `json:"-"`
	UseTLS         bool         `json:"use_tls"`
	Collection     string       `json:"collection"`
	Docker         DockerConfig `json:"docker"`
	HealthCheck    bool         `json:"health_check"`
	RetryAttempts  int          `json:"retry_attempts"`
	TimeoutSeconds int          `json:"timeout_seconds"`
}

// DockerConfig represents Docker-specific configuration for local Qdrant.
type DockerConfig struct {
	Enabled       bool   `json:"enabled"`
	ContainerName string `json:"container_name"`
	VolumePath    string `json:"volume_path"`
	Image         string `json:"image"`
}

// RedisConfig represents the optional tier-2 remote cache, and the
// optional cross-instance backing store for C1's token-bucket state.
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Addr         string        `json:"addr"`
	Password     string        `json:"-"`
	DB           int           `json:"db"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix"`
}

// EmbeddingConfig points at the external embedding/rerank HTTP service.
type EmbeddingConfig struct {
	BaseURL        string        `json:"base_url"`
	Model          string        `json:"model"`
	Dimension      int           `json:"dimension"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxBatchSize   int           `json:"max_batch_size"`
	RerankTopK     int           `json:"rerank_top_k"`
}

// RateLimitConfig carries the default token-bucket parameters plus
// per-source-kind overrides for C1.
type RateLimitConfig struct {
	Default   SourceRateLimit            `json:"default"`
	Overrides map[string]SourceRateLimit `json:"overrides,omitempty"`
}

// SourceRateLimit is one (source_type) bucket's configuration.
type SourceRateLimit struct {
	MaxRequests     int           `json:"max_requests"`
	Window          time.Duration `json:"window"`
	AutoBackoff     bool          `json:"auto_backoff"`
	InitialBackoff  time.Duration `json:"initial_backoff"`
	MaxBackoff      time.Duration `json:"max_backoff"`
}

// ChunkingConfig selects the active chunking profile by name. The profiles
// themselves (per-strategy token targets, overlap) are built into
// internal/chunking and are not read from the YAML override file.
type ChunkingConfig struct {
	ActiveProfile string `json:"active_profile"`
}

// CostPolicyConfig selects the active cost-routing policy by name; rules
// come from the built-in policies or a cost-policy overlay file, see
// costpolicy.LoadOverlay.
type CostPolicyConfig struct {
	ActivePolicy string `json:"active_policy"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file,omitempty"`
	MaxSize    int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age_days"`
}

// WebSocketConfig configures the job-progress streaming endpoint.
type WebSocketConfig struct {
	ReadBufferSize    int      `json:"read_buffer_size"`
	WriteBufferSize   int      `json:"write_buffer_size"`
	HandshakeTimeout  int      `json:"handshake_timeout"`
	PingInterval      int      `json:"ping_interval"`
	PongTimeout       int      `json:"pong_timeout"`
	WriteTimeout      int      `json:"write_timeout"`
	EnableCompression bool     `json:"enable_compression"`
	MaxMessageSize    int      `json:"max_message_size"`
	AllowedOrigins    []string `json:"allowed_origins"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Database: DatabaseConfig{
			Driver:             "postgres",
			Host:               "localhost",
			Port:               5432,
			Name:               "conhub_ingest",
			User:               "postgres",
			SSLMode:            "disable",
			MaxOpenConns:       25,
			MaxIdleConns:       5,
			ConnMaxLifetime:    time.Hour,
			ConnMaxIdleTime:    15 * time.Minute,
			QueryTimeout:       30 * time.Second,
			SlowQueryThreshold: 100 * time.Millisecond,
			EnableMetrics:      true,
			MigrationTimeout:   10 * time.Minute,
			MigrationsPath:     "./migrations",
		},
		Qdrant: QdrantConfig{
			Host:           "localhost",
			Port:           6334,
			UseTLS:         false,
			Collection:     "chunks",
			HealthCheck:    true,
			RetryAttempts:  3,
			TimeoutSeconds: 30,
			Docker: DockerConfig{
				Enabled:       true,
				ContainerName: "conhub-qdrant",
				VolumePath:    "./data/qdrant",
				Image:         "qdrant/qdrant:latest",
			},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DB:           0,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
			KeyPrefix:    "conhub:",
		},
		Embedding: EmbeddingConfig{
			BaseURL:        "http://localhost:8081",
			Model:          "default",
			Dimension:      1536,
			RequestTimeout: 30 * time.Second,
			MaxBatchSize:   96,
			RerankTopK:     50,
		},
		RateLimit: RateLimitConfig{
			Default: SourceRateLimit{
				MaxRequests:    60,
				Window:         time.Minute,
				AutoBackoff:    true,
				InitialBackoff: time.Second,
				MaxBackoff:     time.Minute,
			},
			Overrides: make(map[string]SourceRateLimit),
		},
		Chunking: ChunkingConfig{
			ActiveProfile: "default",
		},
		CostPolicy: CostPolicyConfig{
			ActivePolicy: "default",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			HandshakeTimeout:  10,
			PingInterval:      30,
			PongTimeout:       60,
			WriteTimeout:      10,
			EnableCompression: true,
			MaxMessageSize:    65536,
			AllowedOrigins:    []string{"*"},
		},
	}
}

// LoadConfig loads configuration from environment variables, an optional
// .env file, and an optional YAML profile/policy override file, then
// validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := DefaultConfig()
	loadFromEnv(config)

	if overridePath := os.Getenv("CONHUB_CONFIG_FILE"); overridePath != "" {
		if err := applyYAMLOverride(config, overridePath); err != nil {
			return nil, fmt.Errorf("applying config override %s: %w", overridePath, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// applyYAMLOverride decodes a YAML file into a generic map and merges it
// onto config via mapstructure, so operators can override only the keys
// they care about without redeclaring the whole struct.
func applyYAMLOverride(config *Config, path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return fmt.Errorf("read override file: %w", err)
	}
	var overrides map[string]any
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return fmt.Errorf("parse override yaml: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		TagName:          "json",
		WeaklyTypedInput: true,
		ZeroFields:       false,
	})
	if err != nil {
		return fmt.Errorf("build override decoder: %w", err)
	}
	return decoder.Decode(overrides)
}

func loadFromEnv(config *Config) {
	loadServerConfig(config)
	loadDatabaseConfig(config)
	loadQdrantConfig(config)
	loadRedisConfig(config)
	loadEmbeddingConfig(config)
	loadRateLimitConfig(config)
	loadChunkingConfig(config)
	loadCostPolicyConfig(config)
	loadLoggingConfig(config)
	loadWebSocketConfig(config)
}

func loadServerConfig(config *Config) {
	config.Server.Port = getIntEnvWithDefault("CONHUB_PORT", config.Server.Port)
	config.Server.Host = getStringEnvWithDefault("CONHUB_HOST", config.Server.Host)
	config.Server.ReadTimeout = getIntEnvWithDefault("CONHUB_READ_TIMEOUT_SECONDS", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getIntEnvWithDefault("CONHUB_WRITE_TIMEOUT_SECONDS", config.Server.WriteTimeout)
}

func loadDatabaseConfig(config *Config) {
	config.Database.Driver = getStringEnvWithDefault("DB_DRIVER", config.Database.Driver)
	config.Database.DSN = getStringEnvWithDefault("DB_DSN", config.Database.DSN)
	config.Database.Host = getStringEnvWithDefault("DB_HOST", config.Database.Host)
	config.Database.Port = getIntEnvWithDefault("DB_PORT", config.Database.Port)
	config.Database.Name = getStringEnvWithDefault("DB_NAME", config.Database.Name)
	config.Database.User = getStringEnvWithDefault("DB_USER", config.Database.User)
	config.Database.Password = getStringEnvWithDefault("DB_PASSWORD", config.Database.Password)
	config.Database.SSLMode = getStringEnvWithDefault("DB_SSLMODE", config.Database.SSLMode)
	config.Database.MaxOpenConns = getIntEnvWithDefault("DB_MAX_OPEN_CONNS", config.Database.MaxOpenConns)
	config.Database.MaxIdleConns = getIntEnvWithDefault("DB_MAX_IDLE_CONNS", config.Database.MaxIdleConns)
	setDurationFromEnv("DB_CONN_MAX_LIFETIME", &config.Database.ConnMaxLifetime)
	setDurationFromEnv("DB_CONN_MAX_IDLE_TIME", &config.Database.ConnMaxIdleTime)
	setDurationFromEnv("DB_QUERY_TIMEOUT", &config.Database.QueryTimeout)
	setDurationFromEnv("DB_SLOW_QUERY_THRESHOLD", &config.Database.SlowQueryThreshold)
	config.Database.EnableQueryLogging = getBoolEnvWithDefault("DB_ENABLE_QUERY_LOGGING", config.Database.EnableQueryLogging)
	config.Database.EnableMetrics = getBoolEnvWithDefault("DB_ENABLE_METRICS", config.Database.EnableMetrics)
	setDurationFromEnv("DB_MIGRATION_TIMEOUT", &config.Database.MigrationTimeout)
	config.Database.EnableAutoMigrate = getBoolEnvWithDefault("DB_ENABLE_AUTO_MIGRATE", config.Database.EnableAutoMigrate)
	config.Database.MigrationsPath = getStringEnvWithDefault("DB_MIGRATIONS_PATH", config.Database.MigrationsPath)
}

func loadQdrantConfig(config *Config) {
	config.Qdrant.Host = getStringEnvWithFallback("CONHUB_QDRANT_HOST", "QDRANT_HOST", config.Qdrant.Host)
	config.Qdrant.Port = getIntEnvWithFallback("CONHUB_QDRANT_PORT", "QDRANT_PORT", config.Qdrant.Port)
	config.Qdrant.APIKey = getStringEnvWithFallback("CONHUB_QDRANT_API_KEY", "QDRANT_API_KEY", config.Qdrant.APIKey)
	config.Qdrant.UseTLS = getBoolEnvWithFallback("CONHUB_QDRANT_USE_TLS", "QDRANT_USE_TLS", config.Qdrant.UseTLS)
	config.Qdrant.Collection = getStringEnvWithFallback("CONHUB_QDRANT_COLLECTION", "QDRANT_COLLECTION", config.Qdrant.Collection)
	config.Qdrant.HealthCheck = getBoolEnvWithDefault("CONHUB_QDRANT_HEALTH_CHECK", config.Qdrant.HealthCheck)
	config.Qdrant.RetryAttempts = getIntEnvWithDefault("CONHUB_QDRANT_RETRY_ATTEMPTS", config.Qdrant.RetryAttempts)
	config.Qdrant.TimeoutSeconds = getIntEnvWithDefault("CONHUB_QDRANT_TIMEOUT_SECONDS", config.Qdrant.TimeoutSeconds)

	config.Qdrant.Docker.Enabled = getBoolEnvWithDefault("CONHUB_QDRANT_DOCKER_ENABLED", config.Qdrant.Docker.Enabled)
	config.Qdrant.Docker.ContainerName = getStringEnvWithDefault("QDRANT_CONTAINER_NAME", config.Qdrant.Docker.ContainerName)
	config.Qdrant.Docker.VolumePath = getStringEnvWithDefault("QDRANT_VOLUME_PATH", config.Qdrant.Docker.VolumePath)
	config.Qdrant.Docker.Image = getStringEnvWithDefault("CONHUB_QDRANT_IMAGE", config.Qdrant.Docker.Image)
}

func loadRedisConfig(config *Config) {
	config.Redis.Enabled = getBoolEnvWithDefault("REDIS_ENABLED", config.Redis.Enabled)
	config.Redis.Addr = getStringEnvWithDefault("REDIS_ADDR", config.Redis.Addr)
	config.Redis.Password = getStringEnvWithDefault("REDIS_PASSWORD", config.Redis.Password)
	config.Redis.DB = getIntEnvWithDefault("REDIS_DB", config.Redis.DB)
	setDurationFromEnv("REDIS_DIAL_TIMEOUT", &config.Redis.DialTimeout)
	setDurationFromEnv("REDIS_READ_TIMEOUT", &config.Redis.ReadTimeout)
	setDurationFromEnv("REDIS_WRITE_TIMEOUT", &config.Redis.WriteTimeout)
	config.Redis.KeyPrefix = getStringEnvWithDefault("REDIS_KEY_PREFIX", config.Redis.KeyPrefix)
}

func loadEmbeddingConfig(config *Config) {
	config.Embedding.BaseURL = getStringEnvWithDefault("EMBEDDING_BASE_URL", config.Embedding.BaseURL)
	config.Embedding.Model = getStringEnvWithDefault("EMBEDDING_MODEL", config.Embedding.Model)
	config.Embedding.Dimension = getIntEnvWithDefault("EMBEDDING_DIMENSION", config.Embedding.Dimension)
	setDurationFromEnv("EMBEDDING_REQUEST_TIMEOUT", &config.Embedding.RequestTimeout)
	config.Embedding.MaxBatchSize = getIntEnvWithDefault("EMBEDDING_MAX_BATCH_SIZE", config.Embedding.MaxBatchSize)
	config.Embedding.RerankTopK = getIntEnvWithDefault("EMBEDDING_RERANK_TOP_K", config.Embedding.RerankTopK)
}

func loadRateLimitConfig(config *Config) {
	config.RateLimit.Default.MaxRequests = getIntEnvWithDefault("RATE_LIMIT_MAX_REQUESTS", config.RateLimit.Default.MaxRequests)
	setDurationFromEnv("RATE_LIMIT_WINDOW", &config.RateLimit.Default.Window)
	config.RateLimit.Default.AutoBackoff = getBoolEnvWithDefault("RATE_LIMIT_AUTO_BACKOFF", config.RateLimit.Default.AutoBackoff)
	setDurationFromEnv("RATE_LIMIT_INITIAL_BACKOFF", &config.RateLimit.Default.InitialBackoff)
	setDurationFromEnv("RATE_LIMIT_MAX_BACKOFF", &config.RateLimit.Default.MaxBackoff)
}

func loadChunkingConfig(config *Config) {
	config.Chunking.ActiveProfile = getStringEnvWithDefault("CHUNKING_ACTIVE_PROFILE", config.Chunking.ActiveProfile)
}

func loadCostPolicyConfig(config *Config) {
	config.CostPolicy.ActivePolicy = getStringEnvWithDefault("COST_POLICY_ACTIVE", config.CostPolicy.ActivePolicy)
}

func loadLoggingConfig(config *Config) {
	config.Logging.Level = getStringEnvWithDefault("CONHUB_LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getStringEnvWithDefault("CONHUB_LOG_FORMAT", config.Logging.Format)
	config.Logging.File = getStringEnvWithDefault("CONHUB_LOG_FILE", config.Logging.File)
	config.Logging.MaxSize = getIntEnvWithDefault("CONHUB_LOG_MAX_SIZE_MB", config.Logging.MaxSize)
	config.Logging.MaxBackups = getIntEnvWithDefault("CONHUB_LOG_MAX_BACKUPS", config.Logging.MaxBackups)
	config.Logging.MaxAge = getIntEnvWithDefault("CONHUB_LOG_MAX_AGE_DAYS", config.Logging.MaxAge)
}

func loadWebSocketConfig(config *Config) {
	setIntFromEnv("WS_READ_BUFFER_SIZE", &config.WebSocket.ReadBufferSize)
	setIntFromEnv("WS_WRITE_BUFFER_SIZE", &config.WebSocket.WriteBufferSize)
	setIntFromEnv("WS_HANDSHAKE_TIMEOUT", &config.WebSocket.HandshakeTimeout)
	setIntFromEnv("WS_PING_INTERVAL", &config.WebSocket.PingInterval)
	setIntFromEnv("WS_PONG_TIMEOUT", &config.WebSocket.PongTimeout)
	setIntFromEnv("WS_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	setIntFromEnv("WS_MAX_MESSAGE_SIZE", &config.WebSocket.MaxMessageSize)
	setBoolFromEnv("WS_ENABLE_COMPRESSION", &config.WebSocket.EnableCompression)

	if origins := os.Getenv("WS_ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			config.WebSocket.AllowedOrigins = cleaned
		}
	}
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getStringEnvWithFallback(primaryKey, fallbackKey, defaultValue string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(fallbackKey); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithFallback(primaryKey, fallbackKey string, defaultValue int) int {
	if value := os.Getenv(primaryKey); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	if value := os.Getenv(fallbackKey); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnvWithFallback(primaryKey, fallbackKey string, defaultValue bool) bool {
	if value := os.Getenv(primaryKey); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	if value := os.Getenv(fallbackKey); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func setDurationFromEnv(envKey string, target *time.Duration) {
	if value := os.Getenv(envKey); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			*target = duration
		}
	}
}

func setIntFromEnv(envKey string, target *int) {
	if value := os.Getenv(envKey); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*target = n
		}
	}
}

func setBoolFromEnv(envKey string, target *bool) {
	if value := os.Getenv(envKey); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			*target = b
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateServerConfig(); err != nil {
		return err
	}
	if err := c.validateDatabaseConfig(); err != nil {
		return err
	}
	if err := c.validateQdrantConfig(); err != nil {
		return err
	}
	if err := c.validateEmbeddingConfig(); err != nil {
		return err
	}
	if err := c.validateRateLimitConfig(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServerConfig() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return errors.New("server host cannot be empty")
	}
	return nil
}

func (c *Config) validateDatabaseConfig() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite3" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			return errors.New("database host cannot be empty")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
	}
	if c.Database.Name == "" && c.Database.DSN == "" {
		return errors.New("database name or dsn must be set")
	}
	if c.Database.MaxOpenConns <= 0 {
		return errors.New("max open connections must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return errors.New("max idle connections cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return errors.New("max idle connections cannot exceed max open connections")
	}
	return nil
}

func (c *Config) validateQdrantConfig() error {
	if c.Qdrant.Host == "" {
		return errors.New("qdrant host cannot be empty")
	}
	if c.Qdrant.Port <= 0 {
		return errors.New("qdrant port must be greater than 0")
	}
	if c.Qdrant.Collection == "" {
		return errors.New("qdrant collection cannot be empty")
	}
	if c.Qdrant.Docker.Enabled && c.Qdrant.Docker.ContainerName == "" {
		return errors.New("docker container name cannot be empty when docker is enabled")
	}
	return nil
}

func (c *Config) validateEmbeddingConfig() error {
	if c.Embedding.BaseURL == "" {
		return errors.New("embedding base url cannot be empty")
	}
	if c.Embedding.Dimension <= 0 {
		return errors.New("embedding dimension must be positive")
	}
	return nil
}

func (c *Config) validateRateLimitConfig() error {
	if c.RateLimit.Default.MaxRequests <= 0 {
		return errors.New("rate limit max requests must be positive")
	}
	if c.RateLimit.Default.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

// GetDataDir returns the data directory path, creating it if necessary.
func (c *Config) GetDataDir() (string, error) {
	dataDir := c.Qdrant.Docker.VolumePath
	if dataDir == "" {
		dataDir = "./data"
	}
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for data directory: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return absPath, nil
}

// RateLimitFor resolves the effective SourceRateLimit for a source kind,
// falling back to the default bucket when no override is configured.
func (c *Config) RateLimitFor(sourceKind string) SourceRateLimit {
	if override, ok := c.RateLimit.Overrides[sourceKind]; ok {
		return override
	}
	return c.RateLimit.Default
}
