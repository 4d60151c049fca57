package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultRepoDir is the default benchmark working repository.
	DefaultRepoDir = "."

	// DefaultResultsDir is the default directory for run records.
	DefaultResultsDir = "./benchmark/results"

	// DefaultTasksDir is the default directory holding task definitions.
	DefaultTasksDir = "./benchmark/tasks"

	// DefaultOllamaURL is the default local Ollama endpoint.
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultOllamaTimeout is the default Ollama request timeout.
	DefaultOllamaTimeout = "10s"

	// DefaultAPIListen is the default API listen address.
	DefaultAPIListen = ":8080"

	// DefaultDatabaseDriver is the default index database driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default SQLite index database path.
	DefaultSQLitePath = "vibe-check-index.db"

	// DefaultIndexInterval is the default index rescan interval.
	DefaultIndexInterval = "5m"

	// DefaultIndexConcurrency is the default number of index workers.
	DefaultIndexConcurrency = 4
)

// envPrefix is the prefix for environment variable overrides, e.g.
// VIBECHECK_GLOBAL_LOG_LEVEL overrides global.log_level.
const envPrefix = "VIBECHECK"

// Config is the root configuration for vibe-check.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Workspace WorkspaceConfig `yaml:"workspace" mapstructure:"workspace"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Models    ModelsConfig    `yaml:"models,omitempty" mapstructure:"models"`
	Benchmark BenchmarkConfig `yaml:"benchmark" mapstructure:"benchmark"`
	API       APIConfig       `yaml:"api,omitempty" mapstructure:"api"`
	Upload    UploadConfig    `yaml:"upload,omitempty" mapstructure:"upload"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// Owner is an optional UID:GID pair applied to files the harness
	// creates, for setups where the tool runs as root.
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// WorkspaceConfig locates the repository under benchmark and where run
// records are written.
type WorkspaceConfig struct {
	RepoDir    string `yaml:"repo_dir" mapstructure:"repo_dir"`
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"`
}

// OllamaConfig contains settings for the local Ollama server.
type OllamaConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Timeout string `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// RequestTimeout returns the parsed Ollama request timeout.
func (o OllamaConfig) RequestTimeout() time.Duration {
	if d, err := time.ParseDuration(o.Timeout); err == nil && d > 0 {
		return d
	}

	d, _ := time.ParseDuration(DefaultOllamaTimeout)

	return d
}

// ModelsConfig contains model catalog settings.
type ModelsConfig struct {
	CatalogPath string `yaml:"catalog_path,omitempty" mapstructure:"catalog_path"`
	// Default is the model list used by batch runs when none are given
	// on the command line.
	Default []string `yaml:"default,omitempty" mapstructure:"default"`
}

// BenchmarkConfig contains benchmark-specific settings.
type BenchmarkConfig struct {
	TasksDir string `yaml:"tasks_dir" mapstructure:"tasks_dir"`
	// SessionImportDir is scanned for editor session logs when a run
	// imports its prompts from a session file.
	SessionImportDir string `yaml:"session_import_dir,omitempty" mapstructure:"session_import_dir"`
}

// UploadConfig contains result upload settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings for uploading
// results.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// Load reads the configuration, layering environment variable overrides on
// top of the file. An empty path loads defaults and environment overrides
// only; an explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every overridable key so environment variables
// apply even when the key is absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("global.owner", "")
	v.SetDefault("workspace.repo_dir", DefaultRepoDir)
	v.SetDefault("workspace.results_dir", DefaultResultsDir)
	v.SetDefault("ollama.url", DefaultOllamaURL)
	v.SetDefault("ollama.timeout", DefaultOllamaTimeout)
	v.SetDefault("models.catalog_path", "")
	v.SetDefault("benchmark.tasks_dir", DefaultTasksDir)
	v.SetDefault("benchmark.session_import_dir", "")
	v.SetDefault("api.server.listen", DefaultAPIListen)
	v.SetDefault("api.database.driver", DefaultDatabaseDriver)
	v.SetDefault("api.database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("api.indexing.enabled", true)
	v.SetDefault("api.indexing.interval", DefaultIndexInterval)
	v.SetDefault("api.indexing.concurrency", DefaultIndexConcurrency)
}

// applyDefaults sets default values for fields explicitly emptied in the
// file.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Workspace.RepoDir == "" {
		c.Workspace.RepoDir = DefaultRepoDir
	}

	if c.Workspace.ResultsDir == "" {
		c.Workspace.ResultsDir = DefaultResultsDir
	}

	if c.Ollama.URL == "" {
		c.Ollama.URL = DefaultOllamaURL
	}

	if c.Benchmark.TasksDir == "" {
		c.Benchmark.TasksDir = DefaultTasksDir
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultAPIListen
	}

	if c.API.Database.Driver == "" {
		c.API.Database.Driver = DefaultDatabaseDriver
	}

	if c.API.Database.SQLite.Path == "" {
		c.API.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.API.Indexing.Interval == "" {
		c.API.Indexing.Interval = DefaultIndexInterval
	}

	if c.API.Indexing.Concurrency == 0 {
		c.API.Indexing.Concurrency = DefaultIndexConcurrency
	}
}

// Validate checks the configuration for errors. The results directory is
// created on first write, so only an existing non-directory is an error.
func (c *Config) Validate() error {
	if c.Workspace.ResultsDir != "" {
		if info, err := os.Stat(c.Workspace.ResultsDir); err == nil && !info.IsDir() {
			return fmt.Errorf("results directory %q is not a directory", c.Workspace.ResultsDir)
		}
	}

	if c.Ollama.Timeout != "" {
		if _, err := time.ParseDuration(c.Ollama.Timeout); err != nil {
			return fmt.Errorf("ollama.timeout: %w", err)
		}
	}

	if c.Models.CatalogPath != "" {
		if _, err := os.Stat(c.Models.CatalogPath); err != nil {
			return fmt.Errorf("models catalog %q: %w", c.Models.CatalogPath, err)
		}
	}

	if c.Upload.S3 != nil && c.Upload.S3.Enabled && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when upload is enabled")
	}

	return nil
}

// DiscoveryPaths returns the directories the indexer scans, defaulting to
// the workspace results directory.
func (c *Config) DiscoveryPaths() []string {
	if len(c.API.Indexing.DiscoveryPaths) > 0 {
		return c.API.Indexing.DiscoveryPaths
	}

	return []string{c.Workspace.ResultsDir}
}
