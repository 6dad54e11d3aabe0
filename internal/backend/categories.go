package backend

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/domain"
)

const categoryCacheKey = "adpromo:categories"

// CategoryLister is the raw category source, usually *Client.
type CategoryLister interface {
	ListCategories(ctx context.Context) (map[string]int64, error)
}

// CategoryDirectory resolves category labels to backend ids. Lookups go
// through an optional Redis cache; when the backend cannot be reached the
// directory degrades to the single default category.
type CategoryDirectory struct {
	src    CategoryLister
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCategoryDirectory builds a directory. cache may be nil.
func NewCategoryDirectory(src CategoryLister, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *CategoryDirectory {
	return &CategoryDirectory{src: src, cache: cache, ttl: ttl, logger: logger}
}

// Categories never fails: on any backend error it returns the default mapping.
func (d *CategoryDirectory) Categories(ctx context.Context) map[string]int64 {
	if cats, ok := d.cached(ctx); ok {
		return cats
	}

	cats, err := d.src.ListCategories(ctx)
	if err != nil {
		d.logger.Warn("category listing failed, using default category", zap.Error(err))
		return map[string]int64{domain.DefaultCategoryName: domain.DefaultCategoryID}
	}

	d.store(ctx, cats)
	return cats
}

// Resolve maps a label to its id, falling back to the default category.
func (d *CategoryDirectory) Resolve(ctx context.Context, label string) int64 {
	if id, ok := d.Categories(ctx)[label]; ok {
		return id
	}
	return domain.DefaultCategoryID
}

func (d *CategoryDirectory) cached(ctx context.Context) (map[string]int64, bool) {
	if d.cache == nil {
		return nil, false
	}
	raw, err := d.cache.Get(ctx, categoryCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn("category cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var cats map[string]int64
	if err := json.Unmarshal(raw, &cats); err != nil {
		return nil, false
	}
	return cats, true
}

func (d *CategoryDirectory) store(ctx context.Context, cats map[string]int64) {
	if d.cache == nil {
		return
	}
	raw, err := json.Marshal(cats)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, categoryCacheKey, raw, d.ttl).Err(); err != nil {
		d.logger.Warn("category cache write failed", zap.Error(err))
	}
}
