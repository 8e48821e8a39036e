package feed

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/icco/writing/app/origin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

const (
	feedCacheKey    = "feed"
	sitemapCacheKey = "sitemap"
)

var feedCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "writing_feed_cache_total",
		Help: "Feed and sitemap post list lookups, by key and result.",
	},
	[]string{"key", "result"},
)

// Cache wraps a PostSource with a short-lived in-memory copy of each post list.
// Concurrent misses for the same key share one origin call. Failed calls are not cached.
type Cache struct {
	source PostSource
	lru    *expirable.LRU[string, []origin.Post]
	group  singleflight.Group
}

var _ PostSource = (*Cache)(nil)

func NewCache(source PostSource, ttl time.Duration) *Cache {
	return &Cache{
		source: source,
		lru:    expirable.NewLRU[string, []origin.Post](2, nil, ttl),
	}
}

func (c *Cache) RecentPosts(ctx context.Context) ([]origin.Post, error) {
	return c.get(ctx, feedCacheKey, c.source.RecentPosts)
}

func (c *Cache) PostIDs(ctx context.Context) ([]origin.Post, error) {
	return c.get(ctx, sitemapCacheKey, c.source.PostIDs)
}

func (c *Cache) get(ctx context.Context, key string, fetch func(context.Context) ([]origin.Post, error)) ([]origin.Post, error) {
	if posts, ok := c.lru.Get(key); ok {
		feedCacheTotal.WithLabelValues(key, "hit").Inc()
		return posts, nil
	}
	feedCacheTotal.WithLabelValues(key, "miss").Inc()

	// The shared call must outlive any single waiter.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		posts, err := fetch(shared)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, posts)
		return posts, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]origin.Post), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
