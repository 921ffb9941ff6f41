package linqpipe

import (
	"context"
	"strconv"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocachestore "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

// TranslationCache memoizes Build results by the pipeline's printable
// form (see describe.go): re-translating the same query shape is pure
// CPU work a caller building the same handful of query templates on
// every request would otherwise repeat. It is safe for concurrent use.
type TranslationCache struct {
	inner *cache.Cache[[]bson.D]
}

// NewTranslationCache constructs a TranslationCache backed by an
// in-process go-cache store with the given per-entry TTL and cleanup
// interval. Entries leave the store only by expiring; it has no size
// bound. A zero ttl disables expiration.
func NewTranslationCache(ttl, cleanupInterval time.Duration) *TranslationCache {
	client := gocache.New(ttl, cleanupInterval)
	gocacheStore := gocachestore.NewGoCache(client)
	return &TranslationCache{inner: cache.New[[]bson.D](gocacheStore)}
}

// BuildCached behaves like Build, but consults cache first and populates
// it on a miss. The cache key is the pipeline's Describe output plus the
// normalized options, so two pipelines that only differ in guard values
// never collide on a cached stage list built under looser limits.
func (c *TranslationCache) BuildCached(ctx context.Context, p expr.Pipeline, opts TranslateOptions) (Result, error) {
	norm, err := opts.normalize()
	if err != nil {
		return Result{}, err
	}
	key := cacheKey(p, norm)

	if stages, err := c.inner.Get(ctx, key); err == nil {
		return Result{stages: stages, allowDiskUse: norm.AllowDiskUse}, nil
	}

	result, err := Build(p, norm)
	if err != nil {
		return Result{}, err
	}
	_ = c.inner.Set(ctx, key, result.stages, store.WithExpiration(0))
	return result, nil
}

func cacheKey(p expr.Pipeline, opts TranslateOptions) string {
	return Describe(p) + "|" +
		strconv.Itoa(opts.MaxStages) + "," + strconv.Itoa(opts.MaxSortFields) + "," + strconv.Itoa(opts.MaxProjectionFields)
}
