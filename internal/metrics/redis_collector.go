package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

const scanLimit = 10000

type redisCollector struct {
	rdb     *redis.Client
	logger  *slog.Logger
	pattern string

	entriesDesc *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, pattern string, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:     rdb,
		logger:  logger,
		pattern: pattern,
		entriesDesc: prometheus.NewDesc(
			"modelhub_descriptor_cache_entries",
			"Model descriptors currently cached in redis.",
			nil,
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entriesDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.pattern, 200).Result()
		if err != nil {
			c.logger.Warn("prometheus redis collector failed", "err", err)
			return
		}
		total += len(keys)
		cursor = next
		if cursor == 0 || total >= scanLimit {
			break
		}
	}
	emitGauge(ch, c.entriesDesc, float64(total))
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

// RegisterRedisCollector exposes the size of the redis descriptor cache.
// pattern is the key glob of cached descriptors.
func RegisterRedisCollector(rdb *redis.Client, pattern string, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, pattern, logger))
	})
}
