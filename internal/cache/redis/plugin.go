package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/osvaldoandrade/modelhub/internal/cache"
	"github.com/osvaldoandrade/modelhub/internal/providers"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

func init() {
	cache.RegisterProvider("redis", NewPlugin)
}

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// Plugin stores descriptors as JSON strings under cache.Key(id) with a TTL.
type Plugin struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPlugin creates a Redis-backed descriptor cache.
func NewPlugin(config cache.PluginConfig) (cache.DescriptorCache, error) {
	var cfg Config
	if len(config.Config) > 0 {
		if err := json.Unmarshal(config.Config, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis cache: addr is required")
	}
	client := providers.NewRedisProvider(cfg.Addr, cfg.Password, cfg.DB)
	return New(client, config.DefaultTTL, config.Logger), nil
}

func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Plugin {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{client: client, ttl: ttl, logger: logger}
}

// Client exposes the connection, e.g. for the metrics collector.
func (p *Plugin) Client() *redis.Client { return p.client }

func (p *Plugin) Get(ctx context.Context, id string) (*domain.Model, error) {
	raw, err := p.client.Get(ctx, cache.Key(id)).Bytes()
	if err == redis.Nil {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get %s: %w", id, err)
	}
	var m domain.Model
	if err := json.Unmarshal(raw, &m); err != nil {
		// A corrupt entry is a miss; drop it so the next fetch rewrites it.
		p.logger.Warn("dropping unreadable cached descriptor", "model", id, "err", err)
		_ = p.client.Del(ctx, cache.Key(id)).Err()
		return nil, cache.ErrMiss
	}
	return &m, nil
}

func (p *Plugin) Put(ctx context.Context, m *domain.Model, ttl time.Duration) error {
	if m == nil || m.ID == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = p.ttl
	}
	raw, err := json.Marshal(encodable(*m))
	if err != nil {
		return err
	}
	return p.client.Set(ctx, cache.Key(m.ID), raw, ttl).Err()
}

func (p *Plugin) Invalidate(ctx context.Context, id string) error {
	return p.client.Del(ctx, cache.Key(id)).Err()
}

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases Redis connection
func (p *Plugin) Close() error {
	return p.client.Close()
}

// encodable restores the wire tags of unknown field types so a cached
// descriptor decodes exactly like a fresh one.
func encodable(m domain.Model) map[string]any {
	inputs := make([]map[string]any, 0, len(m.RequiredInputs))
	for _, f := range m.RequiredInputs {
		typ := string(f.Type)
		if f.Type == domain.FieldUnknown {
			typ = f.RawType
		}
		in := map[string]any{
			"key":         f.Key,
			"type":        typ,
			"displayName": f.DisplayName,
			"required":    f.Required,
		}
		if f.Description != "" {
			in["description"] = f.Description
		}
		if f.Min != nil {
			in["min"] = *f.Min
		}
		if f.Max != nil {
			in["max"] = *f.Max
		}
		if len(f.Options) > 0 {
			in["preDefinedImages"] = f.Options
		}
		inputs = append(inputs, in)
	}
	out := map[string]any{
		"_id":            m.ID,
		"name":           m.Name,
		"creditCost":     m.CreditCost,
		"requiredInputs": inputs,
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.Category != "" {
		out["category"] = m.Category
	}
	if len(m.ExampleOutputs) > 0 {
		out["exampleOutputs"] = m.ExampleOutputs
	}
	if m.MainImage != "" {
		out["mainImage"] = m.MainImage
	}
	return out
}
