package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL          = "https://api.modelhub.ai"
	DefaultProfile          = "default"
	DefaultProgressInterval = 1200 * time.Millisecond
)

type CacheConfig struct {
	Type          string `yaml:"type"`
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	TTLSeconds    int    `yaml:"ttlSeconds,omitempty"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Insecure    bool    `yaml:"insecure,omitempty"`
	SampleRatio float64 `yaml:"sampleRatio,omitempty"`
}

type ShellConfig struct {
	Addr         string   `yaml:"addr,omitempty"`
	AllowOrigins []string `yaml:"allowOrigins,omitempty"`
	IdleSeconds  int      `yaml:"idleSeconds,omitempty"`
}

// Profile is one named entry of the config file.
type Profile struct {
	BaseURL            string        `yaml:"baseUrl"`
	Token              string        `yaml:"token,omitempty"`
	Email              string        `yaml:"email,omitempty"`
	OutputDir          string        `yaml:"outputDir,omitempty"`
	LogLevel           string        `yaml:"logLevel,omitempty"`
	LogFormat          string        `yaml:"logFormat,omitempty"`
	ProgressIntervalMs int           `yaml:"progressIntervalMs,omitempty"`
	Cache              CacheConfig   `yaml:"cache,omitempty"`
	Tracing            TracingConfig `yaml:"tracing,omitempty"`
	Shell              ShellConfig   `yaml:"shell,omitempty"`
}

// File is the on-disk layout: a current profile and the profiles map.
type File struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Config is a resolved profile: file values, then env overrides, then
// defaults.
type Config struct {
	Profile
	Name string `yaml:"-"`
	Path string `yaml:"-"`
}

// DefaultPath is ~/.modelhub/config.yaml, or MODELHUB_CONFIG_DIR/config.yaml.
func DefaultPath() string {
	if v := strings.TrimSpace(os.Getenv("MODELHUB_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./config.yaml"
	}
	return filepath.Join(home, ".modelhub", "config.yaml")
}

// LoadFile reads path. A missing file yields an empty File.
func LoadFile(path string) (*File, error) {
	f := &File{Profiles: map[string]Profile{}}
	if strings.TrimSpace(path) == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	return f, nil
}

// Save writes the file with owner-only permissions; it holds tokens.
func (f *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ResolveProfile picks the flag value, then MODELHUB_PROFILE, then the
// file's current profile, then "default".
func (f *File) ResolveProfile(flag string) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("MODELHUB_PROFILE")); v != "" {
		return v
	}
	if f != nil && f.CurrentProfile != "" {
		return f.CurrentProfile
	}
	return DefaultProfile
}

// Load resolves profile (see ResolveProfile) from the file at path.
func Load(path, profile string) (*Config, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	name := f.ResolveProfile(profile)
	c := &Config{Profile: f.Profiles[name], Name: name, Path: path}
	applyEnv(c)
	applyDefaults(c)
	return c, nil
}

// LoadConfigOptional loads the default profile when the file exists and
// falls back to env and defaults otherwise.
func LoadConfigOptional(path string) (*Config, error) {
	return Load(strings.TrimSpace(path), "")
}

func applyEnv(c *Config) {
	if v := os.Getenv("MODELHUB_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("MODELHUB_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("MODELHUB_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("MODELHUB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MODELHUB_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("MODELHUB_PROGRESS_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ProgressIntervalMs = n
		}
	}
	if v := os.Getenv("MODELHUB_CACHE"); v != "" {
		c.Cache.Type = v
	}
	if v := os.Getenv("MODELHUB_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("MODELHUB_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv("MODELHUB_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLSeconds = n
		}
	}
	if v := os.Getenv("MODELHUB_TRACING"); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("MODELHUB_SHELL_ADDR"); v != "" {
		c.Shell.Addr = v
	}
}

func applyDefaults(c *Config) {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.ProgressIntervalMs <= 0 {
		c.ProgressIntervalMs = int(DefaultProgressInterval / time.Millisecond)
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.Type == "redis" && c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "localhost:6379"
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.Shell.Addr == "" {
		c.Shell.Addr = "127.0.0.1:8787"
	}
	if c.Shell.IdleSeconds <= 0 {
		c.Shell.IdleSeconds = 1800
	}
}

// ProgressInterval is the simulated progress tick.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) Validate() error {
	var errs []string
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "baseUrl must be a valid http(s) URL")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logLevel must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, "logFormat must be json or text")
	}
	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Sprintf("cache.type %q is not supported", c.Cache.Type))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be within [0, 1]")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}

// ProfileTokens persists the session token in a profile of the config file.
type ProfileTokens struct {
	Path    string
	Profile string

	mu sync.Mutex
}

func NewProfileTokens(path, profile string) *ProfileTokens {
	return &ProfileTokens{Path: path, Profile: profile}
}

func (p *ProfileTokens) Load(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := LoadFile(p.Path)
	if err != nil {
		return "", err
	}
	return f.Profiles[f.ResolveProfile(p.Profile)].Token, nil
}

// Save stores token and, for a fresh file, makes the profile current.
func (p *ProfileTokens) Save(_ context.Context, token string) error {
	return p.update(func(pr *Profile) { pr.Token = token })
}

func (p *ProfileTokens) Clear(context.Context) error {
	return p.update(func(pr *Profile) { pr.Token = "" })
}

// SetEmail records the signed-in account next to its token.
func (p *ProfileTokens) SetEmail(email string) error {
	return p.update(func(pr *Profile) { pr.Email = email })
}

func (p *ProfileTokens) update(fn func(*Profile)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := LoadFile(p.Path)
	if err != nil {
		return err
	}
	name := f.ResolveProfile(p.Profile)
	pr := f.Profiles[name]
	fn(&pr)
	f.Profiles[name] = pr
	if f.CurrentProfile == "" {
		f.CurrentProfile = name
	}
	return f.Save(p.Path)
}
