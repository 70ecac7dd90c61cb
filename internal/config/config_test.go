package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Cache.TTL() != 5*time.Minute {
		t.Errorf("cache TTL = %v, want 5m", cfg.Cache.TTL())
	}
	if cfg.Traversal.QueryTimeout() != 30*time.Second {
		t.Errorf("query timeout = %v, want 30s", cfg.Traversal.QueryTimeout())
	}
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	repoRoot := t.TempDir()

	cfg, err := LoadConfig(repoRoot)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Cache.MaxEntries != 1000 {
		t.Errorf("cache.maxEntries = %d, want default 1000", cfg.Cache.MaxEntries)
	}
	if cfg.Analysis.Workers != 10 {
		t.Errorf("analysis.workers = %d, want default 10", cfg.Analysis.Workers)
	}
	if cfg.RepoRoot != repoRoot {
		t.Errorf("repoRoot = %q, want %q", cfg.RepoRoot, repoRoot)
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	repoRoot := t.TempDir()
	dir := filepath.Join(repoRoot, ".codegraph")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	content := `{"cache": {"maxEntries": 42}, "traversal": {"maxDepth": 4}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(repoRoot)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Cache.MaxEntries != 42 {
		t.Errorf("cache.maxEntries = %d, want file value 42", cfg.Cache.MaxEntries)
	}
	if cfg.Traversal.MaxDepth != 4 {
		t.Errorf("traversal.maxDepth = %d, want file value 4", cfg.Traversal.MaxDepth)
	}
	// Untouched sections keep their defaults
	if cfg.Ingestion.DependencyBatchSize != 1000 {
		t.Errorf("ingestion.dependencyBatchSize = %d, want default", cfg.Ingestion.DependencyBatchSize)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	repoRoot := t.TempDir()
	t.Setenv("CODEGRAPH_ANALYSIS_WORKERS", "3")

	cfg, err := LoadConfig(repoRoot)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Analysis.Workers != 3 {
		t.Errorf("analysis.workers = %d, want env value 3", cfg.Analysis.Workers)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	repoRoot := t.TempDir()

	cfg := DefaultConfig()
	cfg.RepoRoot = repoRoot
	cfg.Cache.MaxEntries = 77
	if err := cfg.Save(repoRoot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadConfig(repoRoot)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Cache.MaxEntries != 77 {
		t.Errorf("round-tripped maxEntries = %d, want 77", loaded.Cache.MaxEntries)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cache entries", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"negative cache size", func(c *Config) { c.Cache.MaxSizeBytes = -1 }},
		{"zero symbol batch", func(c *Config) { c.Ingestion.SymbolBatchSize = 0 }},
		{"zero depth", func(c *Config) { c.Traversal.MaxDepth = 0 }},
		{"zero workers", func(c *Config) { c.Analysis.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
