package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ProviderConfig selects a backend and carries its raw configuration.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// PluginConfig provides initialization parameters to cache providers.
type PluginConfig struct {
	Config     json.RawMessage
	DefaultTTL time.Duration
	Logger     *slog.Logger
}

// PluginFactory creates a cache from configuration.
type PluginFactory func(config PluginConfig) (DescriptorCache, error)

var (
	registry = make(map[string]PluginFactory)
	mu       sync.RWMutex
)

// RegisterProvider registers a cache factory for a provider type.
func RegisterProvider(providerType string, factory PluginFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[providerType] = factory
}

// New creates a cache from provider configuration. Type "none" disables
// caching.
func New(providerConfig ProviderConfig, pluginConfig PluginConfig) (DescriptorCache, error) {
	if providerConfig.Type == "none" {
		return Nop{}, nil
	}
	mu.RLock()
	factory, ok := registry[providerConfig.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown cache provider type: %s", providerConfig.Type)
	}
	if pluginConfig.Logger == nil {
		pluginConfig.Logger = slog.Default()
	}
	pluginConfig.Config = providerConfig.Config
	return factory(pluginConfig)
}

// ListProviders returns registered provider types, sorted.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}
