package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete codegraph configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	Ingestion IngestionConfig `json:"ingestion" mapstructure:"ingestion"`
	Traversal TraversalConfig `json:"traversal" mapstructure:"traversal"`
	Analysis  AnalysisConfig  `json:"analysis" mapstructure:"analysis"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// CacheConfig bounds the in-memory result cache
type CacheConfig struct {
	MaxEntries   int  `json:"maxEntries" mapstructure:"maxEntries"`
	TTLSeconds   int  `json:"ttlSeconds" mapstructure:"ttlSeconds"`
	MaxSizeBytes int  `json:"maxSizeBytes" mapstructure:"maxSizeBytes"`
	Statistics   bool `json:"statistics" mapstructure:"statistics"`
}

// TTL returns the entry time-to-live as a duration
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// IngestionConfig controls batch sizes for store writes
type IngestionConfig struct {
	SymbolBatchSize     int `json:"symbolBatchSize" mapstructure:"symbolBatchSize"`
	DependencyBatchSize int `json:"dependencyBatchSize" mapstructure:"dependencyBatchSize"`
}

// TraversalConfig bounds transitive traversal queries
type TraversalConfig struct {
	MaxDepth         int `json:"maxDepth" mapstructure:"maxDepth"`
	ResultLimit      int `json:"resultLimit" mapstructure:"resultLimit"`
	QueryTimeoutSecs int `json:"queryTimeoutSeconds" mapstructure:"queryTimeoutSeconds"`
}

// QueryTimeout returns the traversal/resolution query timeout
func (c TraversalConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSecs) * time.Second
}

// AnalysisConfig controls the analysis pipeline
type AnalysisConfig struct {
	Workers  int      `json:"workers" mapstructure:"workers"`
	Excludes []string `json:"excludes" mapstructure:"excludes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Cache: CacheConfig{
			MaxEntries:   1000,
			TTLSeconds:   300,
			MaxSizeBytes: 50 * 1024 * 1024,
			Statistics:   true,
		},
		Ingestion: IngestionConfig{
			SymbolBatchSize:     50,
			DependencyBatchSize: 1000,
		},
		Traversal: TraversalConfig{
			MaxDepth:         10,
			ResultLimit:      1000,
			QueryTimeoutSecs: 30,
		},
		Analysis: AnalysisConfig{
			Workers:  10,
			Excludes: []string{"node_modules", "vendor", "dist", "build", ".git", ".codegraph"},
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .codegraph/config.json, layered with
// CODEGRAPH_* environment variables. A missing config file is not an error.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("version", defaults.Version)
	v.SetDefault("repoRoot", repoRoot)
	v.SetDefault("cache.maxEntries", defaults.Cache.MaxEntries)
	v.SetDefault("cache.ttlSeconds", defaults.Cache.TTLSeconds)
	v.SetDefault("cache.maxSizeBytes", defaults.Cache.MaxSizeBytes)
	v.SetDefault("cache.statistics", defaults.Cache.Statistics)
	v.SetDefault("ingestion.symbolBatchSize", defaults.Ingestion.SymbolBatchSize)
	v.SetDefault("ingestion.dependencyBatchSize", defaults.Ingestion.DependencyBatchSize)
	v.SetDefault("traversal.maxDepth", defaults.Traversal.MaxDepth)
	v.SetDefault("traversal.resultLimit", defaults.Traversal.ResultLimit)
	v.SetDefault("traversal.queryTimeoutSeconds", defaults.Traversal.QueryTimeoutSecs)
	v.SetDefault("analysis.workers", defaults.Analysis.Workers)
	v.SetDefault("analysis.excludes", defaults.Analysis.Excludes)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetEnvPrefix("CODEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".codegraph"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to .codegraph/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".codegraph")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Cache.MaxEntries <= 0 {
		return &ConfigError{Field: "cache.maxEntries", Message: "must be positive"}
	}
	if c.Cache.MaxSizeBytes <= 0 {
		return &ConfigError{Field: "cache.maxSizeBytes", Message: "must be positive"}
	}
	if c.Ingestion.SymbolBatchSize <= 0 || c.Ingestion.DependencyBatchSize <= 0 {
		return &ConfigError{Field: "ingestion", Message: "batch sizes must be positive"}
	}
	if c.Traversal.MaxDepth <= 0 {
		return &ConfigError{Field: "traversal.maxDepth", Message: "must be positive"}
	}
	if c.Analysis.Workers <= 0 {
		return &ConfigError{Field: "analysis.workers", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
