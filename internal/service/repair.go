package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
	"github.com/bigkaa/lingstore/model-module/internal/repository"
)

// Имена repair-функций. Используются в RepairOutcome.Action и в метриках.
const (
	ActionDeleteFiles               = "delete_files"
	ActionDeleteBatches             = "delete_batches"
	ActionRepairIncompleteBatches   = "repair_incomplete_batches"
	ActionRepairMissingBatches      = "repair_missing_batches"
	ActionRepairDuplicateBatches    = "repair_duplicate_batches"
	ActionRemoveMissingTrainedModel = "remove_missing_trained_models"
	ActionFixStatus                 = "fix_status"
	ActionCreateOrphanModels        = "create_models_for_orphan_trained"
	ActionDeleteModels              = "delete_models"
)

// orphanProject — синтетический префикс проекта для моделей, созданных
// по осиротевшим ресурсам обучения.
const orphanProject = "Orphaned Training Models"

// RepairDispatcher — tenant-wide repair-проход. Группирует аномалии по видам
// и вызывает по одной repair-функции на вид; функции независимы друг от друга,
// сбой одного элемента никогда не прерывает остальные.
type RepairDispatcher struct {
	builder     *CrossRefBuilder
	models      repository.ModelRepository
	batches     repository.BatchRepository
	blobs       BlobStore
	training    TrainingService
	concurrency int
	logger      *slog.Logger
}

// NewRepairDispatcher создаёт repair dispatcher.
// concurrency — предел параллельных операций внутри одной repair-функции.
func NewRepairDispatcher(
	builder *CrossRefBuilder,
	models repository.ModelRepository,
	batches repository.BatchRepository,
	blobs BlobStore,
	training TrainingService,
	concurrency int,
	logger *slog.Logger,
) *RepairDispatcher {
	return &RepairDispatcher{
		builder:     builder,
		models:      models,
		batches:     batches,
		blobs:       blobs,
		training:    training,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "repair")),
	}
}

// Status строит отчёт о состоянии тенанта без единой записи в хранилища.
func (d *RepairDispatcher) Status(ctx context.Context, tenantID string) (*model.TenantReport, error) {
	x, err := d.builder.Build(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return Classify(x), nil
}

// Run выполняет один tenant-wide repair-проход: строит перекрёстные ссылки,
// классифицирует и применяет repair-функции. Частичные сбои элементов
// попадают в сводку, ошибкой прохода не являются; ошибка возвращается только
// если само построение отчёта провалилось.
// trigger — источник запуска ("api", "sweep") для метрик.
func (d *RepairDispatcher) Run(ctx context.Context, tenantID, trigger string) (*model.RepairReport, error) {
	started := time.Now()

	x, err := d.builder.Build(ctx, tenantID)
	if err != nil {
		reconcileRunsTotal.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}
	report := Classify(x)

	for _, view := range report.Unreconciled.CustomModels {
		reconcileAnomaliesTotal.WithLabelValues(string(view.ReconcileProblem)).Inc()
	}

	result := &model.RepairReport{
		TenantID:  tenantID,
		StartedAt: started.UTC(),
	}

	// Группируем аномальные записи по видам
	byProblem := make(map[model.ReconcileProblem][]model.ModelView)
	for _, view := range report.Unreconciled.CustomModels {
		byProblem[view.ReconcileProblem] = append(byProblem[view.ReconcileProblem], view)
	}

	d.deleteModels(ctx, byProblem[model.ProblemDelete], result)
	d.repairMissingBatches(ctx, byProblem[model.ProblemMissingBatch], result)
	d.repairDuplicateBatches(ctx, byProblem[model.ProblemBatchUsedElsewhere], result)
	d.removeMissingTrainedModels(ctx, byProblem[model.ProblemMissingTrainedModel], result)
	d.fixStatus(ctx, byProblem[model.ProblemIncorrectStatus], x, result)
	d.repairIncompleteBatches(ctx, byProblem[model.ProblemMissingFile], result)
	d.deleteBatches(ctx, report.Unreconciled.Batches, result)
	d.deleteFiles(ctx, report.Unreconciled.Files, result)
	d.createOrphanModels(ctx, report.Unreconciled.TrainedModels, result)

	result.CompletedAt = time.Now().UTC()
	reconcileDuration.Observe(time.Since(started).Seconds())
	reconcileRunsTotal.WithLabelValues(trigger, "ok").Inc()

	d.logger.Info("Repair-проход завершён",
		slog.String("tenant_id", tenantID),
		slog.Int("repaired", result.Repaired),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(started)),
	)

	return result, nil
}

// forEach обрабатывает элементы repair-функции с ограниченным fan-out.
// Исход каждого элемента фиксируется независимо: паника или ошибка одного
// элемента не прерывает остальные.
func (d *RepairDispatcher) forEach(
	ctx context.Context,
	action string,
	ids []string,
	result *model.RepairReport,
	fn func(ctx context.Context, id string) (string, error),
) {
	d.forEachLimit(ctx, action, ids, result, d.concurrency, fn)
}

// forEachLimit — forEach с явным пределом параллельности.
func (d *RepairDispatcher) forEachLimit(
	ctx context.Context,
	action string,
	ids []string,
	result *model.RepairReport,
	limit int,
	fn func(ctx context.Context, id string) (string, error),
) {
	if len(ids) == 0 {
		return
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, limit)
	)

	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := model.RepairOutcome{ID: id, Action: action}
			res, err := d.safeRepair(ctx, id, fn)
			switch {
			case err == nil:
				outcome.Result = res
			case errors.Is(err, repository.ErrRevisionConflict):
				// Конкурентный проход уже исправил запись
				outcome.Result = model.RepairResultSkipped
			case errors.Is(err, repository.ErrNotFound):
				// Запись уже отсутствует
				outcome.Result = model.RepairResultSkipped
			default:
				outcome.Result = model.RepairResultFailed
				outcome.Error = err.Error()
				d.logger.Warn("Repair-операция не выполнена",
					slog.String("action", action),
					slog.String("id", id),
					slog.Any("error", err),
				)
			}
			reconcileRepairsTotal.WithLabelValues(action, outcome.Result).Inc()

			mu.Lock()
			result.Add(outcome)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
}

// safeRepair выполняет repair-операцию одного элемента, превращая панику
// в обычную ошибку элемента.
func (d *RepairDispatcher) safeRepair(
	ctx context.Context,
	id string,
	fn func(ctx context.Context, id string) (string, error),
) (res string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в repair-операции: %v", r)
		}
	}()
	return fn(ctx, id)
}

// deleteFiles удаляет осиротевшие blob. Перед удалением счётчик использования
// перепроверяется по БД: гонка с параллельной загрузкой файла решается
// в пользу файла.
func (d *RepairDispatcher) deleteFiles(ctx context.Context, uuids []string, result *model.RepairReport) {
	d.forEach(ctx, ActionDeleteFiles, uuids, result, func(ctx context.Context, blobUUID string) (string, error) {
		use, err := d.batches.CountFileUse(ctx, result.TenantID, blobUUID)
		if err != nil {
			return "", fmt.Errorf("перепроверка использования blob: %w", err)
		}
		if use > 0 {
			return model.RepairResultSkipped, nil
		}
		if err := d.blobs.Delete(ctx, result.TenantID, blobUUID); err != nil {
			return "", err
		}
		return model.RepairResultRepaired, nil
	})
}

// deleteBatches удаляет осиротевшие батчи. Батч перечитывается для получения
// актуального revision; «уже удалён» — не ошибка.
func (d *RepairDispatcher) deleteBatches(ctx context.Context, batchIDs []string, result *model.RepairReport) {
	d.forEach(ctx, ActionDeleteBatches, batchIDs, result, func(ctx context.Context, batchID string) (string, error) {
		batch, err := d.batches.GetByID(ctx, result.TenantID, batchID)
		if err != nil {
			return "", err
		}
		if err := d.batches.Delete(ctx, result.TenantID, batchID, batch.Revision); err != nil {
			return "", err
		}
		return model.RepairResultRepaired, nil
	})
}

// repairIncompleteBatches выбрасывает из батчей записи файлов, отсутствующих
// в blob-хранилище. Листинг blob перечитывается перед правкой: blob,
// загруженный после снимка начала прохода, из батча не выбрасывается.
func (d *RepairDispatcher) repairIncompleteBatches(ctx context.Context, views []model.ModelView, result *model.RepairReport) {
	if len(views) == 0 {
		return
	}

	live, listErr := d.liveBlobSet(ctx, result.TenantID)

	byID := viewsByID(views)
	d.forEach(ctx, ActionRepairIncompleteBatches, ids(views), result, func(ctx context.Context, modelID string) (string, error) {
		if listErr != nil {
			return "", fmt.Errorf("обновление листинга blob: %w", listErr)
		}

		view := byID[modelID]
		batch, err := d.batches.GetByID(ctx, result.TenantID, view.FileBatchID)
		if err != nil {
			return "", err
		}

		kept := batch.Files[:0]
		for _, f := range batch.Files {
			if _, ok := live[f.UUID]; ok {
				kept = append(kept, f)
			}
		}
		if len(kept) == len(batch.Files) {
			// Кто-то уже дозагрузил недостающие файлы
			return model.RepairResultSkipped, nil
		}
		batch.Files = kept

		if err := d.batches.Update(ctx, batch); err != nil {
			return "", err
		}
		return model.RepairResultRepaired, nil
	})
}

// liveBlobSet перечитывает актуальный листинг blob-хранилища тенанта.
func (d *RepairDispatcher) liveBlobSet(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	blobs, err := d.blobs.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(blobs))
	for _, b := range blobs {
		set[b.UUID] = struct{}{}
	}
	return set, nil
}

// repairMissingBatches создаёт пустой батч для записи без разрешимого батча
// и перепроверяет статус.
func (d *RepairDispatcher) repairMissingBatches(ctx context.Context, views []model.ModelView, result *model.RepairReport) {
	d.forEach(ctx, ActionRepairMissingBatches, ids(views), result, func(ctx context.Context, modelID string) (string, error) {
		rec, err := d.models.GetByID(ctx, result.TenantID, modelID)
		if err != nil {
			return "", err
		}

		batchID := rec.FileBatchID
		if batchID == "" {
			batchID = uuid.New().String()
		}
		batch := &model.FileBatch{ID: batchID, TenantID: result.TenantID}
		if err := d.batches.Create(ctx, batch); err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				return "", fmt.Errorf("создание батча: %w", err)
			}
			// Батч успел появиться — используем его
		}

		rec.FileBatchID = batchID
		if derived := model.DeriveStatus(rec.TrainedModelID, 0, nil); rec.TrainedModelID == model.Untrained && rec.Status != derived {
			rec.Status = derived
			rec.StatusDate = time.Now().UTC()
		}
		if err := d.models.Update(ctx, rec); err != nil {
			return "", err
		}
		return model.RepairResultRepaired, nil
	})
}

// repairDuplicateBatches переводит проигравшую запись на новый батч
// с копией текущего списка файлов: файлы, легитимно принадлежавшие записи,
// сохраняются.
func (d *RepairDispatcher) repairDuplicateBatches(ctx context.Context, views []model.ModelView, result *model.RepairReport) {
	d.forEach(ctx, ActionRepairDuplicateBatches, ids(views), result, func(ctx context.Context, modelID string) (string, error) {
		rec, err := d.models.GetByID(ctx, result.TenantID, modelID)
		if err != nil {
			return "", err
		}

		// Текущее содержимое спорного батча — только чтение
		var files []model.BatchFile
		if rec.FileBatchID != "" {
			shared, err := d.batches.GetByID(ctx, result.TenantID, rec.FileBatchID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return "", err
			}
			if shared != nil {
				files = shared.Files
			}
		}

		fresh := &model.FileBatch{
			ID:       uuid.New().String(),
			TenantID: result.TenantID,
			Files:    files,
		}
		if err := d.batches.Create(ctx, fresh); err != nil {
			return "", fmt.Errorf("создание батча-копии: %w", err)
		}

		rec.FileBatchID = fresh.ID
		if err := d.models.Update(ctx, rec); err != nil {
			return "", err
		}
		return model.RepairResultRepaired, nil
	})
}

// removeMissingTrainedModels сбрасывает ссылку на отсутствующий ресурс
// обучения и перевыводит статус.
func (d *RepairDispatcher) removeMissingTrainedModels(ctx context.Context, views []model.ModelView, result *model.RepairReport) {
	d.forEach(ctx, ActionRemoveMissingTrainedModel, ids(views), result, func(ctx context.Context, modelID string) (string, error) {
		rec, err := d.models.GetByID(ctx, result.TenantID, modelID)
		if err != nil {
			return "", err
		}
		if rec.TrainedModelID == model.Untrained {
			return model.RepairResultSkipped, nil
		}

		fileCount := 0
		if rec.FileBatchID != "" {
			if batch, err := d.batches.GetByID(ctx, result.TenantID, rec.FileBatchID); err == nil {
				fileCount = len(batch.Files)
			}
		}

		rec.TrainedModelID = model.Untrained
		rec.Status = model.DeriveStatus(model.Untrained, fileCount, nil)
		rec.StatusDate = time.Now().UTC()
		if err := d.models.Update(ctx, rec); err != nil {
			return "", err
		}
		return model.RepairResultRepaired, nil
	})
}

// fixStatus перевыводит статус записи по инварианту статусов.
func (d *RepairDispatcher) fixStatus(ctx context.Context, views []model.ModelView, x *CrossReference, result *model.RepairReport) {
	d.forEach(ctx, ActionFixStatus, ids(views), result, func(ctx context.Context, modelID string) (string, error) {
		rec, err := d.models.GetByID(ctx, result.TenantID, modelID)
		if err != nil {
			return "", err
		}

		derived := model.DeriveStatus(rec.TrainedModelID, x.FileCount(rec), x.TrainedResource(rec))
		if rec.Status == derived {
			return model.RepairResultSkipped, nil
		}
		rec.Status = derived
		rec.StatusDate = time.Now().UTC()
		if err := d.models.Update(ctx, rec); err != nil {
			return "", err
		}
		return model.RepairResultRepaired, nil
	})
}

// createOrphanModels создаёт записи моделей для осиротевших ресурсов обучения:
// пустой батч + запись в синтетическом проекте со статусом TRAINED.
// Уникальность имени обеспечивается суффиксом _N.
func (d *RepairDispatcher) createOrphanModels(ctx context.Context, orphans []model.TrainedModelResource, result *model.RepairReport) {
	byID := make(map[string]model.TrainedModelResource, len(orphans))
	orphanIDs := make([]string, 0, len(orphans))
	for _, res := range orphans {
		byID[res.ModelID] = res
		orphanIDs = append(orphanIDs, res.ModelID)
	}

	// Единственный вид, создающий записи: выполняется последовательно,
	// иначе два сироты с одинаковым именем обходят проверку uniqueName
	// (count-then-create без уникального индекса в БД).
	d.forEachLimit(ctx, ActionCreateOrphanModels, orphanIDs, result, 1, func(ctx context.Context, trainedID string) (string, error) {
		res := byID[trainedID]

		name, err := d.uniqueName(ctx, result.TenantID, res.Name)
		if err != nil {
			return "", err
		}

		batch := &model.FileBatch{ID: uuid.New().String(), TenantID: result.TenantID}
		if err := d.batches.Create(ctx, batch); err != nil {
			return "", fmt.Errorf("создание батча: %w", err)
		}

		now := time.Now().UTC()
		rec := &model.ModelRecord{
			ID:             uuid.New().String(),
			TenantID:       result.TenantID,
			Name:           name,
			Project:        fmt.Sprintf("%s: %s-%s", orphanProject, res.Source, res.Target),
			Status:         model.StatusTrained,
			TrainedModelID: res.ModelID,
			FileBatchID:    batch.ID,
			StatusDate:     now,
			CreationDate:   &now,
		}
		if err := d.models.Create(ctx, rec); err != nil {
			return "", fmt.Errorf("создание записи модели: %w", err)
		}
		return model.RepairResultRepaired, nil
	})
}

// deleteModels каскадно удаляет записи, помеченные на удаление: файлы
// (если их счётчик использования падает до нуля), батч, ресурс обучения,
// затем саму запись.
func (d *RepairDispatcher) deleteModels(ctx context.Context, views []model.ModelView, result *model.RepairReport) {
	d.forEach(ctx, ActionDeleteModels, ids(views), result, func(ctx context.Context, modelID string) (string, error) {
		rec, err := d.models.GetByID(ctx, result.TenantID, modelID)
		if err != nil {
			return "", err
		}
		if err := d.deleteModelCascade(ctx, rec); err != nil {
			return "", err
		}
		return model.RepairResultRepaired, nil
	})
}

// deleteModelCascade — общая DELETE-ветка tenant-wide прохода и single-model
// reconciler: батч удаляется первым, чтобы счётчик использования файлов
// считался уже без него.
func (d *RepairDispatcher) deleteModelCascade(ctx context.Context, rec *model.ModelRecord) error {
	var files []model.BatchFile
	if rec.FileBatchID != "" {
		batch, err := d.batches.GetByID(ctx, rec.TenantID, rec.FileBatchID)
		switch {
		case err == nil:
			files = batch.Files
			if err := d.batches.Delete(ctx, rec.TenantID, batch.ID, batch.Revision); err != nil &&
				!errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrRevisionConflict) {
				return fmt.Errorf("удаление батча: %w", err)
			}
		case errors.Is(err, repository.ErrNotFound):
			// Батча уже нет
		default:
			return fmt.Errorf("чтение батча: %w", err)
		}
	}

	for _, f := range files {
		use, err := d.batches.CountFileUse(ctx, rec.TenantID, f.UUID)
		if err != nil {
			return fmt.Errorf("перепроверка использования blob: %w", err)
		}
		if use > 0 {
			continue
		}
		if err := d.blobs.Delete(ctx, rec.TenantID, f.UUID); err != nil {
			return fmt.Errorf("удаление blob: %w", err)
		}
	}

	if rec.TrainedModelID != "" && rec.TrainedModelID != model.Untrained {
		if err := d.training.DeleteModel(ctx, rec.TenantID, rec.TrainedModelID); err != nil {
			return fmt.Errorf("удаление ресурса обучения: %w", err)
		}
	}

	if err := d.models.Delete(ctx, rec.TenantID, rec.ID, rec.Revision); err != nil &&
		!errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// uniqueName подбирает свободное имя, добавляя суффикс _N при коллизиях.
func (d *RepairDispatcher) uniqueName(ctx context.Context, tenantID, base string) (string, error) {
	if base == "" {
		base = "Orphan"
	}
	name := base
	for n := 1; ; n++ {
		count, err := d.models.CountByName(ctx, tenantID, name)
		if err != nil {
			return "", fmt.Errorf("проверка имени: %w", err)
		}
		if count == 0 {
			return name, nil
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
}

func ids(views []model.ModelView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func viewsByID(views []model.ModelView) map[string]model.ModelView {
	out := make(map[string]model.ModelView, len(views))
	for _, v := range views {
		out[v.ID] = v
	}
	return out
}
