package cache

import (
	"context"
	"errors"
	"time"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// ErrMiss is returned when no live entry exists for a model.
var ErrMiss = errors.New("cache miss")

// KeyPrefix namespaces descriptor entries in shared backends.
const KeyPrefix = "modelhub:model:"

// Key returns the backend key of model id.
func Key(id string) string { return KeyPrefix + id }

// DescriptorCache stores model descriptors between workflow instances.
// Descriptors are immutable for the lifetime of a workflow, so a cached
// entry is only ever replaced by a fresh fetch after its TTL.
type DescriptorCache interface {
	// Get returns the cached model or ErrMiss.
	Get(ctx context.Context, id string) (*domain.Model, error)

	// Put stores m under m.ID for ttl. A zero ttl uses the provider default.
	Put(ctx context.Context, m *domain.Model, ttl time.Duration) error

	// Invalidate drops the entry for id, if any.
	Invalidate(ctx context.Context, id string) error

	// Health checks if the backend is reachable
	Health(ctx context.Context) error

	// Close releases resources held by the backend
	Close() error
}
