package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30, cfg.Server.ReadTimeout)
	assert.Equal(t, 30, cfg.Server.WriteTimeout)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "conhub_ingest", cfg.Database.Name)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.Equal(t, "chunks", cfg.Qdrant.Collection)
	assert.True(t, cfg.Qdrant.HealthCheck)
	assert.Equal(t, 3, cfg.Qdrant.RetryAttempts)

	assert.True(t, cfg.Qdrant.Docker.Enabled)
	assert.Equal(t, "conhub-qdrant", cfg.Qdrant.Docker.ContainerName)

	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 96, cfg.Embedding.MaxBatchSize)

	assert.Equal(t, 60, cfg.RateLimit.Default.MaxRequests)
	assert.True(t, cfg.RateLimit.Default.AutoBackoff)

	assert.Equal(t, "default", cfg.Chunking.ActiveProfile)
	assert.Equal(t, "default", cfg.CostPolicy.ActivePolicy)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  DefaultConfig,
			wantErr: false,
		},
		{
			name: "invalid server port - too low",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name: "invalid server port - too high",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = 70000
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name: "empty server host",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Host = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "server host cannot be empty",
		},
		{
			name: "unsupported database driver",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Database.Driver = "mysql"
				return cfg
			},
			wantErr: true,
			errMsg:  "unsupported database driver",
		},
		{
			name: "sqlite3 driver only needs a name",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Database.Driver = "sqlite3"
				cfg.Database.Host = ""
				cfg.Database.Name = "./test.db"
				return cfg
			},
			wantErr: false,
		},
		{
			name: "empty qdrant collection",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Qdrant.Collection = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "qdrant collection cannot be empty",
		},
		{
			name: "empty docker container name with docker enabled",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Qdrant.Docker.Enabled = true
				cfg.Qdrant.Docker.ContainerName = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "docker container name cannot be empty when docker is enabled",
		},
		{
			name: "empty embedding base url",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Embedding.BaseURL = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "embedding base url cannot be empty",
		},
		{
			name: "invalid embedding dimension",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Embedding.Dimension = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "embedding dimension must be positive",
		},
		{
			name: "invalid rate limit max requests",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.RateLimit.Default.MaxRequests = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "rate limit max requests must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_WithEnvVars(t *testing.T) {
	envVars := map[string]string{
		"CONHUB_PORT":          "9090",
		"CONHUB_HOST":          "127.0.0.1",
		"CONHUB_QDRANT_COLLECTION": "custom_chunks",
		"EMBEDDING_BASE_URL":   "http://custom-embed:9001",
		"EMBEDDING_DIMENSION":  "768",
		"CONHUB_LOG_LEVEL":     "debug",
		"CONHUB_LOG_FORMAT":    "text",
	}

	for key, value := range envVars {
		_ = os.Setenv(key, value)
	}
	defer func() {
		for key := range envVars {
			_ = os.Unsetenv(key)
		}
	}()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "custom_chunks", cfg.Qdrant.Collection)
	assert.Equal(t, "http://custom-embed:9001", cfg.Embedding.BaseURL)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadConfig_WithInvalidEnvVars(t *testing.T) {
	_ = os.Setenv("CONHUB_PORT", "not-a-number")
	defer func() { _ = os.Unsetenv("CONHUB_PORT") }()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestConfig_GetDataDir(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("default data directory", func(t *testing.T) {
		dataDir, err := cfg.GetDataDir()
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(dataDir))

		_, err = os.Stat(dataDir)
		assert.NoError(t, err)
	})

	t.Run("custom data directory", func(t *testing.T) {
		cfg.Qdrant.Docker.VolumePath = "./test-data"

		dataDir, err := cfg.GetDataDir()
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(dataDir))

		_ = os.RemoveAll(dataDir)
	})
}

func TestConfig_RateLimitFor(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("falls back to default when no override", func(t *testing.T) {
		rl := cfg.RateLimitFor("code_repo")
		assert.Equal(t, cfg.RateLimit.Default.MaxRequests, rl.MaxRequests)
	})

	t.Run("uses configured override", func(t *testing.T) {
		cfg.RateLimit.Overrides["ticketing"] = SourceRateLimit{MaxRequests: 10, Window: cfg.RateLimit.Default.Window}
		rl := cfg.RateLimitFor("ticketing")
		assert.Equal(t, 10, rl.MaxRequests)
	})
}

func TestLoadConfig_MissingEnvFile(t *testing.T) {
	originalWd, _ := os.Getwd()
	tempDir := t.TempDir()
	_ = os.Chdir(tempDir)
	defer func() { _ = os.Chdir(originalWd) }()

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestDatabaseConfig_BuildDSN(t *testing.T) {
	t.Run("explicit dsn wins", func(t *testing.T) {
		d := DatabaseConfig{DSN: "postgres://explicit"}
		assert.Equal(t, "postgres://explicit", d.BuildDSN())
	})

	t.Run("sqlite3 uses name as file path", func(t *testing.T) {
		d := DatabaseConfig{Driver: "sqlite3", Name: "./local.db"}
		assert.Equal(t, "./local.db", d.BuildDSN())
	})

	t.Run("sqlite3 defaults to in-memory", func(t *testing.T) {
		d := DatabaseConfig{Driver: "sqlite3"}
		assert.Equal(t, ":memory:", d.BuildDSN())
	})

	t.Run("postgres builds key=value dsn", func(t *testing.T) {
		d := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Name: "n", User: "u", Password: "p", SSLMode: "disable"}
		dsn := d.BuildDSN()
		assert.Contains(t, dsn, "host=db")
		assert.Contains(t, dsn, "dbname=n")
	})
}
