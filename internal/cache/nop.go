package cache

import (
	"context"
	"time"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (*domain.Model, error)      { return nil, ErrMiss }
func (Nop) Put(context.Context, *domain.Model, time.Duration) error { return nil }
func (Nop) Invalidate(context.Context, string) error                { return nil }
func (Nop) Health(context.Context) error                            { return nil }
func (Nop) Close() error                                            { return nil }
