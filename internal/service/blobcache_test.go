package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

func TestBlobCacheHitAndInvalidate(t *testing.T) {
	store := newFakeBlobStore()
	store.put(model.Blob{UUID: "b1"})
	cache := NewBlobCache(store, 8, time.Minute)
	ctx := context.Background()

	blobs, err := cache.List(ctx, tenant)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(blobs) != 1 {
		t.Fatalf("List() вернул %d blob", len(blobs))
	}

	// Повторный List отдаёт кэшированный листинг, хранилище не трогается
	store.put(model.Blob{UUID: "b2"})
	blobs, _ = cache.List(ctx, tenant)
	if len(blobs) != 1 {
		t.Errorf("кэшированный листинг = %d blob, хотели 1", len(blobs))
	}

	// Инвалидация — следующий List читает хранилище
	cache.Invalidate(tenant)
	blobs, _ = cache.List(ctx, tenant)
	if len(blobs) != 2 {
		t.Errorf("после инвалидации = %d blob, хотели 2", len(blobs))
	}
}

func TestBlobCacheDeleteInvalidates(t *testing.T) {
	store := newFakeBlobStore()
	store.put(model.Blob{UUID: "b1"})
	store.put(model.Blob{UUID: "b2"})
	cache := NewBlobCache(store, 8, time.Minute)
	ctx := context.Background()

	if _, err := cache.List(ctx, tenant); err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if err := cache.Delete(ctx, tenant, "b1"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	blobs, _ := cache.List(ctx, tenant)
	if len(blobs) != 1 || blobs[0].UUID != "b2" {
		t.Errorf("после Delete листинг = %+v", blobs)
	}
}
