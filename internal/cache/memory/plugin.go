package memory

import (
	"context"
	"sync"
	"time"

	"github.com/osvaldoandrade/modelhub/internal/cache"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

func init() {
	cache.RegisterProvider("memory", NewPlugin)
}

type entry struct {
	model   domain.Model
	expires time.Time
}

// Plugin is a process-local DescriptorCache.
type Plugin struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewPlugin creates an in-memory cache. The raw config is ignored.
func NewPlugin(config cache.PluginConfig) (cache.DescriptorCache, error) {
	return New(config.DefaultTTL), nil
}

func New(ttl time.Duration) *Plugin {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Plugin{entries: map[string]entry{}, ttl: ttl, now: time.Now}
}

func (p *Plugin) Get(_ context.Context, id string) (*domain.Model, error) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return nil, cache.ErrMiss
	}
	if !p.now().Before(e.expires) {
		p.mu.Lock()
		if cur, ok := p.entries[id]; ok && cur.expires.Equal(e.expires) {
			delete(p.entries, id)
		}
		p.mu.Unlock()
		return nil, cache.ErrMiss
	}
	m := clone(e.model)
	return &m, nil
}

func (p *Plugin) Put(_ context.Context, m *domain.Model, ttl time.Duration) error {
	if m == nil || m.ID == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = p.ttl
	}
	p.mu.Lock()
	p.entries[m.ID] = entry{model: clone(*m), expires: p.now().Add(ttl)}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) Invalidate(_ context.Context, id string) error {
	p.mu.Lock()
	delete(p.entries, id)
	p.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included.
func (p *Plugin) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

func (p *Plugin) Health(context.Context) error { return nil }

func (p *Plugin) Close() error {
	p.mu.Lock()
	p.entries = map[string]entry{}
	p.mu.Unlock()
	return nil
}

func clone(m domain.Model) domain.Model {
	out := m
	out.ExampleOutputs = append([]string(nil), m.ExampleOutputs...)
	out.RequiredInputs = make([]domain.FieldDescriptor, len(m.RequiredInputs))
	for i, f := range m.RequiredInputs {
		f.Options = append([]string(nil), f.Options...)
		if f.Min != nil {
			v := *f.Min
			f.Min = &v
		}
		if f.Max != nil {
			v := *f.Max
			f.Max = &v
		}
		out.RequiredInputs[i] = f
	}
	return out
}
