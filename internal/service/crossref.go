package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
	"github.com/bigkaa/lingstore/model-module/internal/repository"
)

// CrossReference — перекрёстные ссылки всех сущностей тенанта, построенные
// за один проход по четырём хранилищам. Только чтение, хранилища не мутирует.
type CrossReference struct {
	TenantID string
	// Models — все записи моделей тенанта
	Models []*model.ModelRecord
	// BatchesByID — батчи по ID
	BatchesByID map[string]*model.FileBatch
	// BlobsByUUID — blob по UUID объекта
	BlobsByUUID map[string]model.Blob
	// TrainedByID — ресурсы обучения по ID
	TrainedByID map[string]*model.TrainedModelResource
	// ModelsByBatchID — записи, претендующие на батч (детект двойного владения)
	ModelsByBatchID map[string][]*model.ModelRecord
	// ModelsByTrainedID — записи, претендующие на ресурс обучения
	ModelsByTrainedID map[string][]*model.ModelRecord
	// BlobUse — количество ссылок на blob из всех батчей тенанта
	BlobUse map[string]int
}

// BatchOwned возвращает батч модели, если он разрешается.
func (x *CrossReference) BatchOwned(rec *model.ModelRecord) *model.FileBatch {
	if rec.FileBatchID == "" {
		return nil
	}
	return x.BatchesByID[rec.FileBatchID]
}

// FileCount возвращает количество файлов батча модели (0, если батч не разрешился).
func (x *CrossReference) FileCount(rec *model.ModelRecord) int {
	if b := x.BatchOwned(rec); b != nil {
		return len(b.Files)
	}
	return 0
}

// TrainedResource возвращает ресурс обучения модели, если он разрешается.
func (x *CrossReference) TrainedResource(rec *model.ModelRecord) *model.TrainedModelResource {
	if rec.TrainedModelID == "" || rec.TrainedModelID == model.Untrained {
		return nil
	}
	return x.TrainedByID[rec.TrainedModelID]
}

// MissingFiles возвращает UUID файлов батча модели, отсутствующие
// в blob-хранилище.
func (x *CrossReference) MissingFiles(rec *model.ModelRecord) []string {
	b := x.BatchOwned(rec)
	if b == nil {
		return nil
	}
	var missing []string
	for _, f := range b.Files {
		if _, ok := x.BlobsByUUID[f.UUID]; !ok {
			missing = append(missing, f.UUID)
		}
	}
	return missing
}

// CrossRefBuilder строит CrossReference тенанта: четыре чтения выполняются
// параллельно, ошибка любого из них фатальна для прохода (ErrUpstreamUnavailable) —
// это отличает «пустой тенант» от «сломанное хранилище».
type CrossRefBuilder struct {
	models   repository.ModelRepository
	batches  repository.BatchRepository
	blobs    BlobStore
	training TrainingService
	logger   *slog.Logger
}

// NewCrossRefBuilder создаёт построитель перекрёстных ссылок.
func NewCrossRefBuilder(
	models repository.ModelRepository,
	batches repository.BatchRepository,
	blobs BlobStore,
	training TrainingService,
	logger *slog.Logger,
) *CrossRefBuilder {
	return &CrossRefBuilder{
		models:   models,
		batches:  batches,
		blobs:    blobs,
		training: training,
		logger:   logger.With(slog.String("component", "crossref")),
	}
}

// Build читает четыре хранилища тенанта и собирает CrossReference.
func (b *CrossRefBuilder) Build(ctx context.Context, tenantID string) (*CrossReference, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		records []*model.ModelRecord
		batches []*model.FileBatch
		blobs   []model.Blob
		trained []model.TrainedModelResource
	)

	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		v, err := b.models.ListByTenant(ctx, tenantID)
		if err != nil {
			fail(fmt.Errorf("чтение записей моделей: %w", err))
			return
		}
		records = v
	}()
	go func() {
		defer wg.Done()
		v, err := b.batches.ListByTenant(ctx, tenantID)
		if err != nil {
			fail(fmt.Errorf("чтение батчей: %w", err))
			return
		}
		batches = v
	}()
	go func() {
		defer wg.Done()
		v, err := b.blobs.List(ctx, tenantID)
		if err != nil {
			fail(fmt.Errorf("чтение blob-хранилища: %w", err))
			return
		}
		blobs = v
	}()
	go func() {
		defer wg.Done()
		v, err := b.training.ListModels(ctx, tenantID)
		if err != nil {
			fail(fmt.Errorf("чтение training-сервиса: %w", err))
			return
		}
		trained = v
	}()
	wg.Wait()

	if len(errs) > 0 {
		b.logger.Error("Построение перекрёстных ссылок прервано",
			slog.String("tenant_id", tenantID),
			slog.Any("error", errs[0]),
		)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, errs[0])
	}

	x := &CrossReference{
		TenantID:          tenantID,
		Models:            records,
		BatchesByID:       make(map[string]*model.FileBatch, len(batches)),
		BlobsByUUID:       make(map[string]model.Blob, len(blobs)),
		TrainedByID:       make(map[string]*model.TrainedModelResource, len(trained)),
		ModelsByBatchID:   make(map[string][]*model.ModelRecord),
		ModelsByTrainedID: make(map[string][]*model.ModelRecord),
		BlobUse:           make(map[string]int, len(blobs)),
	}

	for _, batch := range batches {
		x.BatchesByID[batch.ID] = batch
	}
	for _, blob := range blobs {
		x.BlobsByUUID[blob.UUID] = blob
	}
	for i := range trained {
		x.TrainedByID[trained[i].ModelID] = &trained[i]
	}

	// Мультикарты претендентов для детекта двойного владения
	for _, rec := range records {
		if rec.FileBatchID != "" {
			x.ModelsByBatchID[rec.FileBatchID] = append(x.ModelsByBatchID[rec.FileBatchID], rec)
		}
		if rec.TrainedModelID != "" && rec.TrainedModelID != model.Untrained {
			x.ModelsByTrainedID[rec.TrainedModelID] = append(x.ModelsByTrainedID[rec.TrainedModelID], rec)
		}
	}

	// Счётчик использования blob по всем батчам тенанта
	for _, batch := range batches {
		for _, f := range batch.Files {
			x.BlobUse[f.UUID]++
		}
	}

	b.logger.Debug("Перекрёстные ссылки построены",
		slog.String("tenant_id", tenantID),
		slog.Int("models", len(records)),
		slog.Int("batches", len(batches)),
		slog.Int("blobs", len(blobs)),
		slog.Int("trained_models", len(trained)),
	)

	return x, nil
}
