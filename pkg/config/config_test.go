package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvVarOverrides(t *testing.T) {
	// Create a minimal config file for testing.
	configContent := `
global:
  log_level: info
workspace:
  repo_dir: /work/original
  results_dir: ./original-results
ollama:
  url: http://original:11434
  timeout: 5s
benchmark:
  tasks_dir: ./original-tasks
api:
  server:
    listen: ":9000"
  indexing:
    enabled: false
    interval: 1m
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "/work/original", cfg.Workspace.RepoDir)
				assert.Equal(t, "./original-results", cfg.Workspace.ResultsDir)
				assert.Equal(t, "http://original:11434", cfg.Ollama.URL)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"VIBECHECK_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "string override - results_dir",
			envVars: map[string]string{
				"VIBECHECK_WORKSPACE_RESULTS_DIR": "/tmp/test-results",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/test-results", cfg.Workspace.ResultsDir)
			},
		},
		{
			name: "string override - ollama url",
			envVars: map[string]string{
				"VIBECHECK_OLLAMA_URL": "http://override:11434",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "http://override:11434", cfg.Ollama.URL)
			},
		},
		{
			name: "nested field override - api.server.listen",
			envVars: map[string]string{
				"VIBECHECK_API_SERVER_LISTEN": ":7777",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":7777", cfg.API.Server.Listen)
			},
		},
		{
			name: "boolean override - api.indexing.enabled",
			envVars: map[string]string{
				"VIBECHECK_API_INDEXING_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.API.Indexing.Enabled)
			},
		},
		{
			name: "multiple overrides",
			envVars: map[string]string{
				"VIBECHECK_GLOBAL_LOG_LEVEL":      "trace",
				"VIBECHECK_WORKSPACE_RESULTS_DIR": "/results/multi",
				"VIBECHECK_BENCHMARK_TASKS_DIR":   "/tasks/multi",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "trace", cfg.Global.LogLevel)
				assert.Equal(t, "/results/multi", cfg.Workspace.ResultsDir)
				assert.Equal(t, "/tasks/multi", cfg.Benchmark.TasksDir)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Set environment variables.
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("global: {}\n"), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultRepoDir, cfg.Workspace.RepoDir)
	assert.Equal(t, DefaultResultsDir, cfg.Workspace.ResultsDir)
	assert.Equal(t, DefaultTasksDir, cfg.Benchmark.TasksDir)
	assert.Equal(t, DefaultOllamaURL, cfg.Ollama.URL)
	assert.Equal(t, DefaultAPIListen, cfg.API.Server.Listen)
	assert.Equal(t, DefaultDatabaseDriver, cfg.API.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.API.Database.SQLite.Path)
	assert.Equal(t, DefaultIndexConcurrency, cfg.API.Indexing.Concurrency)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultResultsDir, cfg.Workspace.ResultsDir)
}

func TestLoad_EnvVarOverridesDefaults(t *testing.T) {
	// Env vars apply even without a config file.
	t.Setenv("VIBECHECK_GLOBAL_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Global.LogLevel)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0o644))

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestOllamaConfig_RequestTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, OllamaConfig{}.RequestTimeout())
	assert.Equal(t, 3*time.Second, OllamaConfig{Timeout: "3s"}.RequestTimeout())
	assert.Equal(t, 10*time.Second, OllamaConfig{Timeout: "soon"}.RequestTimeout())
}

func TestConfig_Validate(t *testing.T) {
	tmpDir := t.TempDir()

	catalogPath := filepath.Join(tmpDir, "models.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte("models: []\n"), 0o644))

	occupiedPath := filepath.Join(tmpDir, "results-file")
	require.NoError(t, os.WriteFile(occupiedPath, []byte("x"), 0o644))

	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantErr   bool
		errSubstr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name: "results dir not yet created is valid",
			mutate: func(cfg *Config) {
				cfg.Workspace.ResultsDir = filepath.Join(tmpDir, "missing", "results")
			},
		},
		{
			name: "results path occupied by a file",
			mutate: func(cfg *Config) {
				cfg.Workspace.ResultsDir = occupiedPath
			},
			wantErr:   true,
			errSubstr: "not a directory",
		},
		{
			name: "bad ollama timeout",
			mutate: func(cfg *Config) {
				cfg.Ollama.Timeout = "whenever"
			},
			wantErr:   true,
			errSubstr: "ollama.timeout",
		},
		{
			name: "existing catalog path",
			mutate: func(cfg *Config) {
				cfg.Models.CatalogPath = catalogPath
			},
		},
		{
			name: "missing catalog path",
			mutate: func(cfg *Config) {
				cfg.Models.CatalogPath = filepath.Join(tmpDir, "nope.yaml")
			},
			wantErr:   true,
			errSubstr: "models catalog",
		},
		{
			name: "s3 upload without bucket",
			mutate: func(cfg *Config) {
				cfg.Upload.S3 = &S3UploadConfig{Enabled: true}
			},
			wantErr:   true,
			errSubstr: "upload.s3.bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAPI(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantErr   bool
		errSubstr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name: "unknown driver",
			mutate: func(cfg *Config) {
				cfg.API.Database.Driver = "oracle"
			},
			wantErr:   true,
			errSubstr: "unknown database driver",
		},
		{
			name: "postgres requires connection settings",
			mutate: func(cfg *Config) {
				cfg.API.Database.Driver = "postgres"
			},
			wantErr:   true,
			errSubstr: "postgres driver requires",
		},
		{
			name: "postgres with connection settings",
			mutate: func(cfg *Config) {
				cfg.API.Database.Driver = "postgres"
				cfg.API.Database.Postgres = PostgresConfig{
					Host:     "localhost",
					User:     "vibe",
					Database: "vibe_check",
				}
			},
		},
		{
			name: "rate limit needs positive rpm",
			mutate: func(cfg *Config) {
				cfg.API.Server.RateLimit.Enabled = true
			},
			wantErr:   true,
			errSubstr: "requests_per_minute",
		},
		{
			name: "auth enabled without users",
			mutate: func(cfg *Config) {
				cfg.API.Auth.Enabled = true
			},
			wantErr:   true,
			errSubstr: "no users",
		},
		{
			name: "auth user without password hash",
			mutate: func(cfg *Config) {
				cfg.API.Auth.Enabled = true
				cfg.API.Auth.Users = []BasicAuthUser{{Username: "admin"}}
			},
			wantErr:   true,
			errSubstr: "password_hash",
		},
		{
			name: "duplicate auth user",
			mutate: func(cfg *Config) {
				cfg.API.Auth.Enabled = true
				cfg.API.Auth.Users = []BasicAuthUser{
					{Username: "admin", PasswordHash: "x"},
					{Username: "admin", PasswordHash: "y"},
				}
			},
			wantErr:   true,
			errSubstr: "duplicate username",
		},
		{
			name: "indexing interval must parse",
			mutate: func(cfg *Config) {
				cfg.API.Indexing.Enabled = true
				cfg.API.Indexing.Interval = "sometimes"
			},
			wantErr:   true,
			errSubstr: "indexing.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.ValidateAPI()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_DiscoveryPaths(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultResultsDir}, cfg.DiscoveryPaths())

	cfg.API.Indexing.DiscoveryPaths = []string{"/a", "/b"}
	assert.Equal(t, []string{"/a", "/b"}, cfg.DiscoveryPaths())
}
