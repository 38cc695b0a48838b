package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
	"github.com/bigkaa/lingstore/model-module/internal/repository"
	"github.com/bigkaa/lingstore/model-module/internal/trainclient"
)

// BlobUploader — загрузка содержимого файла в blob-хранилище.
// Реализуется blobclient.Client.
type BlobUploader interface {
	Upload(ctx context.Context, tenantID, uuid, contentType string, data []byte) error
}

// Trainer — запуск обучения у training-сервиса. Реализуется trainclient.Client.
type Trainer interface {
	RequestTraining(ctx context.Context, tenantID string, tr *trainclient.TrainingRequest) (*model.TrainedModelResource, error)
}

// TrainParams — параметры запуска обучения модели.
type TrainParams struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Domain      string `json:"domain,omitempty"`
	BaseModelID string `json:"base_model_id,omitempty"`
}

// ModelService — CRUD записей моделей и сопутствующие операции: загрузка
// файлов, запуск обучения, клонирование, пометка на удаление. Фактическое
// удаление выполняет reconciliation engine.
type ModelService struct {
	models   repository.ModelRepository
	batches  repository.BatchRepository
	uploader BlobUploader
	trainer  Trainer
	logger   *slog.Logger
}

// NewModelService создаёт сервис записей моделей.
func NewModelService(
	models repository.ModelRepository,
	batches repository.BatchRepository,
	uploader BlobUploader,
	trainer Trainer,
	logger *slog.Logger,
) *ModelService {
	return &ModelService{
		models:   models,
		batches:  batches,
		uploader: uploader,
		trainer:  trainer,
		logger:   logger.With(slog.String("component", "models")),
	}
}

// Create создаёт запись модели вместе с пустым батчем.
func (s *ModelService) Create(ctx context.Context, tenantID, name, project string) (*model.ModelRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: имя модели не задано", ErrInvalidInput)
	}
	count, err := s.models.CountByName(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	batch := &model.FileBatch{ID: uuid.New().String(), TenantID: tenantID}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("создание батча: %w", err)
	}

	now := time.Now().UTC()
	rec := &model.ModelRecord{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Name:           name,
		Project:        project,
		Status:         model.StatusCreated,
		TrainedModelID: model.Untrained,
		FileBatchID:    batch.ID,
		StatusDate:     now,
		CreationDate:   &now,
	}
	if err := s.models.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("Модель создана",
		slog.String("tenant_id", tenantID),
		slog.String("model_id", rec.ID),
		slog.String("name", name),
	)
	return rec, nil
}

// List возвращает все записи моделей тенанта.
func (s *ModelService) List(ctx context.Context, tenantID string) ([]*model.ModelRecord, error) {
	return s.models.ListByTenant(ctx, tenantID)
}

// Get возвращает запись модели.
func (s *ModelService) Get(ctx context.Context, tenantID, id string) (*model.ModelRecord, error) {
	rec, err := s.models.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// Update переименовывает модель и меняет проект.
func (s *ModelService) Update(ctx context.Context, tenantID, id, name, project string) (*model.ModelRecord, error) {
	rec, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if name != "" && name != rec.Name {
		count, err := s.models.CountByName(ctx, tenantID, name)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
		}
		rec.Name = name
	}
	if project != "" {
		rec.Project = project
	}

	if err := s.models.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkForDeletion помечает модель на удаление. Каскадное удаление файлов,
// батча и ресурса обучения выполнит engine.
func (s *ModelService) MarkForDeletion(ctx context.Context, tenantID, id string) (*model.ModelRecord, error) {
	rec, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if rec.MarkedForDeletion {
		return rec, nil
	}

	rec.MarkedForDeletion = true
	if err := s.models.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("Модель помечена на удаление",
		slog.String("tenant_id", tenantID),
		slog.String("model_id", id),
	)
	return rec, nil
}

// Clone создаёт копию модели: новый батч с копией списка файлов и новая
// запись с clonedFrom. Blob-объекты не копируются, ссылки разделяются.
func (s *ModelService) Clone(ctx context.Context, tenantID, id, name string) (*model.ModelRecord, error) {
	src, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = src.Name + "_copy"
	}
	count, err := s.models.CountByName(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	var files []model.BatchFile
	if src.FileBatchID != "" {
		srcBatch, err := s.batches.GetByID(ctx, tenantID, src.FileBatchID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if srcBatch != nil {
			files = srcBatch.Files
		}
	}

	batch := &model.FileBatch{ID: uuid.New().String(), TenantID: tenantID, Files: files}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("создание батча: %w", err)
	}

	now := time.Now().UTC()
	rec := &model.ModelRecord{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Name:           name,
		Project:        src.Project,
		Status:         model.DeriveStatus(model.Untrained, len(files), nil),
		TrainedModelID: model.Untrained,
		FileBatchID:    batch.ID,
		StatusDate:     now,
		CreationDate:   &now,
		ClonedFrom:     src.ID,
	}
	if err := s.models.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UploadFile загружает файл обучения: blob в хранилище, запись в батч,
// статус FILESLOADED для необученной модели.
func (s *ModelService) UploadFile(ctx context.Context, tenantID, modelID, fileName, option, contentType string, data []byte) (*model.BatchFile, error) {
	if fileName == "" {
		return nil, fmt.Errorf("%w: имя файла не задано", ErrInvalidInput)
	}
	if option == "" {
		option = "training"
	}

	rec, err := s.Get(ctx, tenantID, modelID)
	if err != nil {
		return nil, err
	}
	if rec.FileBatchID == "" {
		return nil, fmt.Errorf("%w: у модели %s нет батча", ErrBatchNotFound, modelID)
	}
	batch, err := s.batches.GetByID(ctx, tenantID, rec.FileBatchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, rec.FileBatchID)
		}
		return nil, err
	}

	blobUUID := uuid.New().String()
	if err := s.uploader.Upload(ctx, tenantID, blobUUID, contentType, data); err != nil {
		return nil, err
	}

	entry := model.BatchFile{
		FileName:           fileName,
		UUID:               blobUUID,
		LastModified:       time.Now().UTC(),
		TrainingFileOption: option,
	}
	batch.Files = append(batch.Files, entry)
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, err
	}

	if rec.TrainedModelID == model.Untrained && rec.Status != model.StatusFilesLoaded {
		rec.Status = model.StatusFilesLoaded
		rec.StatusDate = time.Now().UTC()
		if err := s.models.Update(ctx, rec); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Файл загружен",
		slog.String("tenant_id", tenantID),
		slog.String("model_id", modelID),
		slog.String("file_name", fileName),
		slog.String("uuid", blobUUID),
	)
	return &entry, nil
}

// Train запускает обучение модели на файлах её батча.
func (s *ModelService) Train(ctx context.Context, tenantID, modelID string, params *TrainParams) (*model.ModelRecord, error) {
	if params.Source == "" || params.Target == "" {
		return nil, fmt.Errorf("%w: не заданы языки source/target", ErrInvalidInput)
	}

	rec, err := s.Get(ctx, tenantID, modelID)
	if err != nil {
		return nil, err
	}
	if rec.TrainedModelID != model.Untrained {
		return nil, fmt.Errorf("%w: обучение уже запущено для модели %s", ErrInvalidInput, modelID)
	}

	batch, err := s.batches.GetByID(ctx, tenantID, rec.FileBatchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, rec.FileBatchID)
		}
		return nil, err
	}
	if len(batch.Files) == 0 {
		return nil, fmt.Errorf("%w: батч модели %s пуст", ErrInvalidInput, modelID)
	}

	res, err := s.trainer.RequestTraining(ctx, tenantID, &trainclient.TrainingRequest{
		Name:        rec.Name,
		Source:      params.Source,
		Target:      params.Target,
		Domain:      params.Domain,
		BaseModelID: params.BaseModelID,
		BatchID:     rec.FileBatchID,
	})
	if err != nil {
		return nil, err
	}

	rec.TrainedModelID = res.ModelID
	rec.Status = model.StatusTraining
	rec.StatusDate = time.Now().UTC()
	if err := s.models.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("Обучение запущено",
		slog.String("tenant_id", tenantID),
		slog.String("model_id", modelID),
		slog.String("trained_model_id", res.ModelID),
	)
	return rec, nil
}
