package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/osvaldoandrade/modelhub/internal/cache"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

func sampleModel() *domain.Model {
	max := 50.0
	return &domain.Model{
		ID:         "m1",
		Name:       "Upscaler",
		CreditCost: 5,
		RequiredInputs: []domain.FieldDescriptor{
			{Key: "image", Type: domain.FieldImage, Required: true},
			{Key: "steps", Type: domain.FieldNumber, Max: &max},
		},
		ExampleOutputs: []string{"https://cdn/ex.png"},
	}
}

func TestMemoryPlugin(t *testing.T) {
	c, err := cache.New(cache.ProviderConfig{Type: "memory"}, cache.PluginConfig{DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("Failed to create plugin: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Health(ctx); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
	if _, err := c.Get(ctx, "m1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("Get before Put = %v, want ErrMiss", err)
	}

	m := sampleModel()
	if err := c.Put(ctx, m, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := c.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Fatalf("cached model mismatch (-want +got):\n%s", diff)
	}

	// Entries are isolated from caller mutation.
	*m.RequiredInputs[1].Max = 1
	got.RequiredInputs[0].Key = "changed"
	again, _ := c.Get(ctx, "m1")
	if *again.RequiredInputs[1].Max != 50 || again.RequiredInputs[0].Key != "image" {
		t.Fatalf("cache entry was mutated: %+v", again.RequiredInputs)
	}

	if err := c.Invalidate(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "m1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("Get after Invalidate = %v", err)
	}
}

func TestMemoryPluginExpiry(t *testing.T) {
	p := New(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	_ = p.Put(ctx, sampleModel(), 10*time.Second)
	now = now.Add(9 * time.Second)
	if _, err := p.Get(ctx, "m1"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	now = now.Add(time.Second)
	if _, err := p.Get(ctx, "m1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("Get at expiry = %v, want ErrMiss", err)
	}
	if p.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", p.Len())
	}
}

func TestMemoryPluginIgnoresAnonymousModels(t *testing.T) {
	p := New(0)
	_ = p.Put(context.Background(), &domain.Model{Name: "no id"}, 0)
	_ = p.Put(context.Background(), nil, 0)
	if p.Len() != 0 {
		t.Fatalf("len = %d", p.Len())
	}
}
