package cache

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterProvider(t *testing.T) {
	RegisterProvider("test", func(config PluginConfig) (DescriptorCache, error) {
		return Nop{}, nil
	})

	found := false
	for _, p := range ListProviders() {
		if p == "test" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected to find 'test' provider in list, got: %v", ListProviders())
	}

	c, err := New(ProviderConfig{Type: "test"}, PluginConfig{})
	if err != nil || c == nil {
		t.Fatalf("New(test) = %v, %v", c, err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(ProviderConfig{Type: "unknown_provider", Config: []byte("{}")}, PluginConfig{}); err == nil {
		t.Error("Expected error for unknown provider, got nil")
	}
}

func TestNoneProviderNeverHits(t *testing.T) {
	c, err := New(ProviderConfig{Type: "none"}, PluginConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), "m1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get = %v, want ErrMiss", err)
	}
}

func TestKey(t *testing.T) {
	if got := Key("abc"); got != "modelhub:model:abc" {
		t.Fatalf("Key = %q", got)
	}
}
