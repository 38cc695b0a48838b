package service

import (
	"context"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

// BlobStore — контракт blob-хранилища, который потребляет engine.
// Реализуется blobclient.Client (при включённом кэше — через BlobCache).
type BlobStore interface {
	// List возвращает все blob контейнера тенанта.
	List(ctx context.Context, tenantID string) ([]model.Blob, error)
	// Delete удаляет blob; отсутствующий blob — не ошибка.
	Delete(ctx context.Context, tenantID, uuid string) error
}

// TrainingService — контракт training-сервиса, который потребляет engine.
// Реализуется trainclient.Client. Engine только читает и удаляет ресурсы,
// обучением не управляет.
type TrainingService interface {
	// ListModels возвращает все ресурсы обучения тенанта.
	ListModels(ctx context.Context, tenantID string) ([]model.TrainedModelResource, error)
	// DeleteModel удаляет ресурс обучения; отсутствующий ресурс — не ошибка.
	DeleteModel(ctx context.Context, tenantID, modelID string) error
}
