// blobcache.go — LRU-кэш листингов blob-хранилища с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
//
// Кэш используется ТОЛЬКО display-путями (списки моделей в API): repair-функции
// и single-model reconciler читают хранилище напрямую, устаревший листинг
// не должен приводить к удалению живого blob.
package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	blobCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_blob_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш листингов blob-хранилища.",
	})
	blobCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_blob_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша листингов blob-хранилища.",
	})
)

// BlobCache — кэширующая обёртка BlobStore. Ключ — идентификатор тенанта.
// Delete инвалидирует листинг тенанта и проксирует удаление.
type BlobCache struct {
	store BlobStore
	cache *expirable.LRU[string, []model.Blob]
}

// NewBlobCache создаёт кэш листингов.
// maxSize — максимальное количество тенантов в кэше, ttl — время жизни листинга.
func NewBlobCache(store BlobStore, maxSize int, ttl time.Duration) *BlobCache {
	return &BlobCache{
		store: store,
		cache: expirable.NewLRU[string, []model.Blob](maxSize, nil, ttl),
	}
}

// List возвращает листинг контейнера тенанта, при промахе — читает хранилище.
func (c *BlobCache) List(ctx context.Context, tenantID string) ([]model.Blob, error) {
	if blobs, ok := c.cache.Get(tenantID); ok {
		blobCacheHitsTotal.Inc()
		return blobs, nil
	}
	blobCacheMissesTotal.Inc()

	blobs, err := c.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(tenantID, blobs)
	return blobs, nil
}

// Delete удаляет blob и инвалидирует листинг тенанта.
func (c *BlobCache) Delete(ctx context.Context, tenantID, uuid string) error {
	c.cache.Remove(tenantID)
	return c.store.Delete(ctx, tenantID, uuid)
}

// Invalidate сбрасывает кэшированный листинг тенанта (после загрузки файла).
func (c *BlobCache) Invalidate(tenantID string) {
	c.cache.Remove(tenantID)
}
