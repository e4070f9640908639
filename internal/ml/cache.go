package ml

import (
	"context"
	"strconv"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// CachedModel memoizes successful outputs of a deterministic model keyed by
// the exact feature vector. Failures are never cached.
type CachedModel struct {
	next    Model
	cache   *cache.Cache
	maxSize int
	metrics MetricsInterface
}

func NewCachedModel(next Model, ttl time.Duration, maxSize int, metrics MetricsInterface) *CachedModel {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &CachedModel{
		next:    next,
		cache:   cache.New(ttl, ttl*2),
		maxSize: maxSize,
		metrics: metrics,
	}
}

func (c *CachedModel) Predict(ctx context.Context, features []float64) (float64, error) {
	key := cacheKey(features)
	if v, found := c.cache.Get(key); found {
		if minutes, ok := v.(float64); ok {
			c.metrics.CacheHitsInc()
			return minutes, nil
		}
	}
	c.metrics.CacheMissesInc()

	minutes, err := c.next.Predict(ctx, features)
	if err != nil {
		return 0, err
	}

	// go-cache has no size bound; stop admitting entries once full and let
	// expiry make room again
	if c.cache.ItemCount() < c.maxSize {
		c.cache.SetDefault(key, minutes)
	}
	return minutes, nil
}

// Len returns the number of cached entries, including expired ones not yet
// cleaned up.
func (c *CachedModel) Len() int {
	return c.cache.ItemCount()
}

func cacheKey(features []float64) string {
	var b strings.Builder
	for i, f := range features {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return b.String()
}
