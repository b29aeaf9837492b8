package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoadConfigOptional_EmptyPath tests loading when file path is empty
func TestLoadConfigOptional_EmptyPath(t *testing.T) {
	t.Setenv("MODELHUB_BASE_URL", "http://localhost:9999/")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional with empty path should not error: %v", err)
	}
	if cfg.BaseURL != "http://localhost:9999" {
		t.Errorf("Expected BaseURL from env without trailing slash, got %q", cfg.BaseURL)
	}
}

// TestLoadConfigOptional_FileNotExist tests loading when file does not exist
func TestLoadConfigOptional_FileNotExist(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "config-does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigOptional with non-existent file should not error: %v", err)
	}
	if cfg.Name != DefaultProfile {
		t.Errorf("Expected profile %q, got %q", DefaultProfile, cfg.Name)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("Expected default BaseURL, got %q", cfg.BaseURL)
	}
}

// TestLoadConfigOptional_InvalidYAML tests loading when file exists but has invalid YAML
func TestLoadConfigOptional_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
currentProfile: dev
profiles:
  dev:
    baseUrl: "http://x"
   bad: indentation
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := LoadConfigOptional(configPath); err == nil {
		t.Fatal("Expected error when loading invalid YAML, got nil")
	}
}

func TestLoadSelectsProfile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	data := `
currentProfile: staging
profiles:
  staging:
    baseUrl: https://staging.modelhub.ai
    token: tok-staging
    progressIntervalMs: 50
    cache:
      type: redis
      redisAddr: redis:6379
  prod:
    baseUrl: https://api.modelhub.ai
    logFormat: json
`
	if err := os.WriteFile(configPath, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		flag      string
		env       string
		wantName  string
		wantURL   string
		wantToken string
	}{
		{"current profile", "", "", "staging", "https://staging.modelhub.ai", "tok-staging"},
		{"env wins over current", "", "prod", "prod", "https://api.modelhub.ai", ""},
		{"flag wins over env", "staging", "prod", "staging", "https://staging.modelhub.ai", "tok-staging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MODELHUB_PROFILE", tt.env)
			cfg, err := Load(configPath, tt.flag)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Name != tt.wantName || cfg.BaseURL != tt.wantURL || cfg.Token != tt.wantToken {
				t.Fatalf("got %s %s %s", cfg.Name, cfg.BaseURL, cfg.Token)
			}
		})
	}

	t.Setenv("MODELHUB_PROFILE", "")
	cfg, _ := Load(configPath, "staging")
	if cfg.ProgressInterval() != 50*time.Millisecond {
		t.Errorf("ProgressInterval = %v", cfg.ProgressInterval())
	}
	if cfg.Cache.Type != "redis" || cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODELHUB_TOKEN", "env-token")
	t.Setenv("MODELHUB_LOG_LEVEL", "debug")
	t.Setenv("MODELHUB_PROGRESS_INTERVAL_MS", "10")
	t.Setenv("MODELHUB_CACHE", "redis")
	t.Setenv("MODELHUB_CACHE_TTL_SECONDS", "60")
	t.Setenv("MODELHUB_TRACING", "yes")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "env-token" || cfg.LogLevel != "debug" {
		t.Errorf("token/level = %q/%q", cfg.Token, cfg.LogLevel)
	}
	if cfg.ProgressInterval() != 10*time.Millisecond {
		t.Errorf("ProgressInterval = %v", cfg.ProgressInterval())
	}
	if cfg.Cache.RedisAddr != "localhost:6379" || cfg.CacheTTL() != time.Minute {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.Tracing.Enabled {
		t.Error("tracing should be enabled from env")
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ProgressInterval() != DefaultProgressInterval {
		t.Errorf("ProgressInterval = %v", cfg.ProgressInterval())
	}
	if cfg.OutputDir != "." || cfg.Cache.Type != "memory" || cfg.Shell.Addr == "" {
		t.Errorf("defaults = %+v", cfg.Profile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		applyDefaults(c)
		return c
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad url", func(c *Config) { c.BaseURL = "ftp://x" }, "baseUrl"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "logLevel"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "logFormat"},
		{"bad cache", func(c *Config) { c.Cache.Type = "memcached" }, "cache.type"},
		{"bad ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "sampleRatio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestProfileTokensRoundTrip(t *testing.T) {
	t.Setenv("MODELHUB_PROFILE", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	store := NewProfileTokens(path, "work")
	ctx := context.Background()

	if tok, err := store.Load(ctx); err != nil || tok != "" {
		t.Fatalf("Load on missing file = %q, %v", tok, err)
	}
	if err := store.Save(ctx, "abc"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.SetEmail("me@example.com"); err != nil {
		t.Fatalf("SetEmail: %v", err)
	}
	if tok, _ := store.Load(ctx); tok != "abc" {
		t.Fatalf("Load = %q", tok)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config perms = %v", info.Mode().Perm())
	}

	f, _ := LoadFile(path)
	if f.CurrentProfile != "work" || f.Profiles["work"].Email != "me@example.com" {
		t.Fatalf("file = %+v", f)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if tok, _ := store.Load(ctx); tok != "" {
		t.Fatalf("token after Clear = %q", tok)
	}
}
