package rdacache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lemmego/rda"
	"github.com/rs/zerolog"
)

// =====================================
// Cached Repository
// =====================================

// Source is the repository surface the cache sits in front of.
// rda.Repository satisfies it.
type Source[T any] interface {
	Collection() string
	GetByID(ctx context.Context, id string) (*T, error)
	List(ctx context.Context, filter rda.Filter) rda.ListResult[T]
	Create(ctx context.Context, data map[string]interface{}) (*T, error)
	Update(ctx context.Context, id string, data map[string]interface{}) (*T, error)
	Delete(ctx context.Context, id string) (bool, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// Repository caches reads from a Source and invalidates on writes.
// Cache trouble never fails an operation; the source answer wins.
type Repository[T any] struct {
	source Source[T]
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// Option configures a cached repository
type Option func(*options)

type options struct {
	logger    zerolog.Logger
	loggerSet bool
}

// WithLogger attaches a logger for cache-failure warnings
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
		o.loggerSet = true
	}
}

// New wraps a source repository with a cache. The TTL comes from the
// repository config's CacheTime; zero disables caching entirely and
// every call passes straight through.
func New[T any](source Source[T], cache Cache, config rda.RepositoryConfig, opts ...Option) *Repository[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.loggerSet {
		o.logger = zerolog.Nop()
	}

	return &Repository[T]{
		source: source,
		cache:  cache,
		ttl:    config.CacheTime,
		logger: o.logger.With().Str("component", "rda.cache").Str("collection", source.Collection()).Logger(),
	}
}

// Collection reports the wrapped source's collection
func (r *Repository[T]) Collection() string {
	return r.source.Collection()
}

// enabled reports whether caching is active
func (r *Repository[T]) enabled() bool {
	return r.cache != nil && r.ttl > 0
}

// GetByID answers from the cache when it can, otherwise asks the
// source and stores the answer. Misses of the source are not cached.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (*T, error) {
	if !r.enabled() {
		return r.source.GetByID(ctx, id)
	}

	key := idKey(r.Collection(), id)
	if row, ok := r.lookup(ctx, key); ok {
		return row, nil
	}

	row, err := r.source.GetByID(ctx, id)
	if err != nil || row == nil {
		return row, err
	}
	r.store(ctx, key, row)
	return row, nil
}

// List caches envelopes only for condition-free filters; conditions
// carry arbitrary values that have no stable cache key. Failure
// envelopes are never cached.
func (r *Repository[T]) List(ctx context.Context, filter rda.Filter) rda.ListResult[T] {
	if !r.enabled() || len(filter.Conditions) > 0 {
		return r.source.List(ctx, filter)
	}

	key := listKey(r.Collection(), filter)
	if data, ok, err := r.cache.Get(ctx, key); err != nil {
		r.warn("get", key, err)
	} else if ok {
		var result rda.ListResult[T]
		if err := json.Unmarshal(data, &result); err == nil {
			return result
		}
		r.drop(ctx, key)
	}

	result := r.source.List(ctx, filter)
	if result.Success {
		if data, err := json.Marshal(result); err == nil {
			if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
				r.warn("set", key, err)
			}
		}
	}
	return result
}

// Create forwards to the source and, on success, drops the cached
// list windows the new record may appear in.
func (r *Repository[T]) Create(ctx context.Context, data map[string]interface{}) (*T, error) {
	row, err := r.source.Create(ctx, data)
	if err == nil && r.enabled() {
		r.flushLists(ctx)
	}
	return row, err
}

// Update forwards to the source and, on success, invalidates the
// record entry and the cached list windows.
func (r *Repository[T]) Update(ctx context.Context, id string, data map[string]interface{}) (*T, error) {
	row, err := r.source.Update(ctx, id, data)
	if err == nil && r.enabled() {
		r.drop(ctx, idKey(r.Collection(), id))
		r.flushLists(ctx)
	}
	return row, err
}

// Delete forwards to the source and invalidates when a record was
// actually removed.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := r.source.Delete(ctx, id)
	if err == nil && deleted && r.enabled() {
		r.drop(ctx, idKey(r.Collection(), id))
		r.flushLists(ctx)
	}
	return deleted, err
}

// ExistsByID treats a live cache entry as proof of existence and only
// asks the source on a miss. The boolean itself is not cached.
func (r *Repository[T]) ExistsByID(ctx context.Context, id string) (bool, error) {
	if r.enabled() {
		if _, ok, err := r.cache.Get(ctx, idKey(r.Collection(), id)); err == nil && ok {
			return true, nil
		}
	}
	return r.source.ExistsByID(ctx, id)
}

// Invalidate drops every cached entry for the collection
func (r *Repository[T]) Invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Flush(ctx, r.Collection()+":*"); err != nil {
		r.warn("flush", r.Collection()+":*", err)
	}
}

// lookup decodes a cached record, dropping entries that fail to decode
func (r *Repository[T]) lookup(ctx context.Context, key string) (*T, bool) {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.warn("get", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var row T
	if err := json.Unmarshal(data, &row); err != nil {
		r.drop(ctx, key)
		return nil, false
	}
	return &row, true
}

// store writes a record entry, best effort
func (r *Repository[T]) store(ctx context.Context, key string, row *T) {
	data, err := json.Marshal(row)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.warn("set", key, err)
	}
}

func (r *Repository[T]) drop(ctx context.Context, key string) {
	if err := r.cache.Delete(ctx, key); err != nil {
		r.warn("delete", key, err)
	}
}

func (r *Repository[T]) flushLists(ctx context.Context) {
	pattern := listPattern(r.Collection())
	if err := r.cache.Flush(ctx, pattern); err != nil {
		r.warn("flush", pattern, err)
	}
}

func (r *Repository[T]) warn(op, key string, err error) {
	r.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("cache operation failed")
}
