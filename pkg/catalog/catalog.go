package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/osvaldoandrade/modelhub/internal/cache"
	"github.com/osvaldoandrade/modelhub/internal/metrics"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// ModelFetcher loads a descriptor from the API.
type ModelFetcher interface {
	GetModel(ctx context.Context, id string) (*domain.Model, error)
}

// Catalog resolves model descriptors through a cache. Concurrent lookups
// of the same id share one API call.
type Catalog struct {
	fetcher ModelFetcher
	cache   cache.DescriptorCache
	ttl     time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

func New(fetcher ModelFetcher, c cache.DescriptorCache, ttl time.Duration, logger *slog.Logger) *Catalog {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{fetcher: fetcher, cache: c, ttl: ttl, logger: logger}
}

// Model returns the descriptor of id. domain.ErrNotFound is never cached.
func (c *Catalog) Model(ctx context.Context, id string) (*domain.Model, error) {
	m, err := c.cache.Get(ctx, id)
	switch {
	case err == nil:
		metrics.DescriptorFetchTotal.WithLabelValues("cache", "hit").Inc()
		return m, nil
	case errors.Is(err, cache.ErrMiss):
		metrics.DescriptorFetchTotal.WithLabelValues("cache", "miss").Inc()
	default:
		metrics.DescriptorFetchTotal.WithLabelValues("cache", "error").Inc()
		c.logger.Warn("descriptor cache read failed", "model", id, "err", err)
	}

	ch := c.group.DoChan(id, func() (any, error) {
		// The shared fetch outlives any single waiter.
		fctx := context.WithoutCancel(ctx)
		m, err := c.fetcher.GetModel(fctx, id)
		if err != nil {
			outcome := "error"
			if errors.Is(err, domain.ErrNotFound) {
				outcome = "not_found"
			}
			metrics.DescriptorFetchTotal.WithLabelValues("api", outcome).Inc()
			return nil, err
		}
		metrics.DescriptorFetchTotal.WithLabelValues("api", "ok").Inc()
		if err := c.cache.Put(fctx, m, c.ttl); err != nil {
			c.logger.Warn("descriptor cache write failed", "model", id, "err", err)
		}
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Each caller gets its own copy; the workflow treats it as immutable
		// but the cache must never see mutations.
		cp := *res.Val.(*domain.Model)
		cp.RequiredInputs = append([]domain.FieldDescriptor(nil), cp.RequiredInputs...)
		return &cp, nil
	}
}

// Forget drops id from the cache so the next lookup refetches it.
func (c *Catalog) Forget(ctx context.Context, id string) error {
	return c.cache.Invalidate(ctx, id)
}
