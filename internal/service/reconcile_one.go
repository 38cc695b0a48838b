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
)

// Действия single-model reconciler.
const (
	singleActionNone        = "none"
	singleActionCreateBatch = "create_batch"
	singleActionReassign    = "reassign_batch"
	singleActionLinkTrained = "link_trained_model"
	singleActionUnlink      = "unlink_trained_model"
	singleActionDropMissing = "drop_missing_files"
	singleActionFixStatus   = "fix_status"
)

// Reconciler — синхронная сверка одной модели (repair-on-read). В отличие
// от tenant-wide прохода работает fail-fast: любая неожиданная ошибка
// поднимается вызывающему.
type Reconciler struct {
	builder    *CrossRefBuilder
	dispatcher *RepairDispatcher
	models     repository.ModelRepository
	batches    repository.BatchRepository
	logger     *slog.Logger
}

// NewReconciler создаёт single-model reconciler.
func NewReconciler(
	builder *CrossRefBuilder,
	dispatcher *RepairDispatcher,
	models repository.ModelRepository,
	batches repository.BatchRepository,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		builder:    builder,
		dispatcher: dispatcher,
		models:     models,
		batches:    batches,
		logger:     logger.With(slog.String("component", "reconcile_one")),
	}
}

// ReconcileModel сверяет одну модель: терминальный автомат, за вызов
// применяется не более одного исправления (следующий вызов продолжит
// с нового состояния). Ветви оцениваются в порядке классификатора.
func (r *Reconciler) ReconcileModel(ctx context.Context, tenantID, modelID string) (*model.ReconcileModelResult, error) {
	x, err := r.builder.Build(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var rec *model.ModelRecord
	for _, m := range x.Models {
		if m.ID == modelID {
			rec = m
			break
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}

	// DELETE-ветка терминальна: каскадно удаляем файлы, батч, ресурс
	// обучения и саму запись.
	if rec.MarkedForDeletion {
		if err := r.dispatcher.deleteModelCascade(ctx, rec); err != nil {
			return nil, err
		}
		r.logger.Info("Модель удалена по пометке",
			slog.String("tenant_id", tenantID),
			slog.String("model_id", modelID),
		)
		return &model.ReconcileModelResult{ID: modelID, OK: true, Deleted: true}, nil
	}

	action, err := r.applyOne(ctx, rec, x)
	if err != nil {
		return nil, err
	}

	// Перечитываем состояние после исправления для итогового представления
	if action != singleActionNone {
		x, err = r.builder.Build(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		rec, err = r.models.GetByID(ctx, tenantID, modelID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
			}
			return nil, err
		}
	}

	view := buildView(rec, x)
	r.logger.Info("Модель сверена",
		slog.String("tenant_id", tenantID),
		slog.String("model_id", modelID),
		slog.String("action", action),
	)
	return &model.ReconcileModelResult{ID: modelID, OK: true, Action: action, Model: &view}, nil
}

// applyOne применяет первое подходящее исправление. Порядок ветвей повторяет
// порядок правил классификатора.
func (r *Reconciler) applyOne(ctx context.Context, rec *model.ModelRecord, x *CrossReference) (string, error) {
	winners := batchWinners(x)

	// Батч не назначен или не разрешается — создаём пустой
	if rec.FileBatchID == "" || x.BatchesByID[rec.FileBatchID] == nil {
		batchID := rec.FileBatchID
		if batchID == "" {
			batchID = uuid.New().String()
		}
		batch := &model.FileBatch{ID: batchID, TenantID: rec.TenantID}
		if err := r.batches.Create(ctx, batch); err != nil && !errors.Is(err, repository.ErrConflict) {
			return "", fmt.Errorf("создание батча: %w", err)
		}
		rec.FileBatchID = batchID
		if rec.TrainedModelID == model.Untrained {
			rec.Status = model.DeriveStatus(model.Untrained, 0, nil)
			rec.StatusDate = time.Now().UTC()
		}
		if err := r.models.Update(ctx, rec); err != nil {
			return "", err
		}
		return singleActionCreateBatch, nil
	}

	// Владение батчем выиграла другая запись — переводим на копию
	if w := winners[rec.FileBatchID]; w != nil && w.ID != rec.ID {
		shared := x.BatchesByID[rec.FileBatchID]
		fresh := &model.FileBatch{
			ID:       uuid.New().String(),
			TenantID: rec.TenantID,
			Files:    shared.Files,
		}
		if err := r.batches.Create(ctx, fresh); err != nil {
			return "", fmt.Errorf("создание батча-копии: %w", err)
		}
		rec.FileBatchID = fresh.ID
		if err := r.models.Update(ctx, rec); err != nil {
			return "", err
		}
		return singleActionReassign, nil
	}

	// Ссылка на отсутствующий ресурс обучения: сначала пытаемся привязать
	// осиротевший ресурс с тем же именем, иначе сбрасываем на UNTRAINED
	if rec.TrainedModelID != "" && rec.TrainedModelID != model.Untrained &&
		x.TrainedByID[rec.TrainedModelID] == nil {
		if orphan := r.findOrphanByName(rec.Name, x); orphan != nil {
			rec.TrainedModelID = orphan.ModelID
			rec.Status = model.DeriveStatus(orphan.ModelID, x.FileCount(rec), orphan)
			rec.StatusDate = time.Now().UTC()
			if err := r.models.Update(ctx, rec); err != nil {
				return "", err
			}
			return singleActionLinkTrained, nil
		}

		rec.TrainedModelID = model.Untrained
		rec.Status = model.DeriveStatus(model.Untrained, x.FileCount(rec), nil)
		rec.StatusDate = time.Now().UTC()
		if err := r.models.Update(ctx, rec); err != nil {
			return "", err
		}
		return singleActionUnlink, nil
	}

	// Статус расходится с выводимым
	derived := model.DeriveStatus(rec.TrainedModelID, x.FileCount(rec), x.TrainedResource(rec))
	if rec.Status != derived {
		rec.Status = derived
		rec.StatusDate = time.Now().UTC()
		if err := r.models.Update(ctx, rec); err != nil {
			return "", err
		}
		return singleActionFixStatus, nil
	}

	// Батч ссылается на отсутствующие blob — выбрасываем записи
	if missing := x.MissingFiles(rec); len(missing) > 0 {
		batch, err := r.batches.GetByID(ctx, rec.TenantID, rec.FileBatchID)
		if err != nil {
			return "", err
		}
		kept := batch.Files[:0]
		for _, f := range batch.Files {
			if _, ok := x.BlobsByUUID[f.UUID]; ok {
				kept = append(kept, f)
			}
		}
		batch.Files = kept
		if err := r.batches.Update(ctx, batch); err != nil {
			return "", err
		}
		return singleActionDropMissing, nil
	}

	return singleActionNone, nil
}

// findOrphanByName ищет осиротевший ресурс обучения с данным именем.
// При нескольких кандидатах берётся первый по ID — выбор детерминирован.
func (r *Reconciler) findOrphanByName(name string, x *CrossReference) *model.TrainedModelResource {
	var found *model.TrainedModelResource
	for id, res := range x.TrainedByID {
		if res.Name != name || len(x.ModelsByTrainedID[id]) > 0 {
			continue
		}
		if found == nil || res.ModelID < found.ModelID {
			found = res
		}
	}
	return found
}
