// trainpoll.go — фоновый опрос статусов обучения.
//
// Poller периодически (MM_POLL_INTERVAL) сверяет записи в статусе TRAINING
// со статусами ресурсов training-сервиса и переводит их в TRAINED или
// WARNING. Engine reconciliation при этом остаётся единственным местом,
// которое чинит рассинхронизацию: poller — лишь быстрый путь для happy case.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
	"github.com/bigkaa/lingstore/model-module/internal/repository"
)

// TrainPollService — фоновый опрос статусов обучения.
type TrainPollService struct {
	models   repository.ModelRepository
	batches  repository.BatchRepository
	training TrainingService
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewTrainPollService создаёт poller статусов обучения.
func NewTrainPollService(
	models repository.ModelRepository,
	batches repository.BatchRepository,
	training TrainingService,
	interval time.Duration,
	logger *slog.Logger,
) *TrainPollService {
	return &TrainPollService{
		models:   models,
		batches:  batches,
		training: training,
		interval: interval,
		logger:   logger.With(slog.String("component", "trainpoll")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (p *TrainPollService) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.run(pollCtx)

	p.logger.Info("Опрос статусов обучения запущен",
		slog.String("interval", p.interval.String()),
	)
}

// Stop останавливает фоновый процесс.
func (p *TrainPollService) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("Опрос статусов обучения остановлен")
}

func (p *TrainPollService) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл опроса: для каждого тенанта сверяет записи
// в статусе TRAINING со статусами ресурсов training-сервиса.
func (p *TrainPollService) RunOnce(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tenants, err := p.models.ListTenants(ctx)
	if err != nil {
		p.logger.Error("Опрос: не удалось получить список тенантов",
			slog.Any("error", err),
		)
		return
	}

	updated := 0
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			break
		}
		updated += p.pollTenant(ctx, tenantID)
	}

	if updated > 0 {
		p.logger.Info("Опрос статусов обучения завершён",
			slog.Int("updated", updated),
		)
	}
}

// pollTenant сверяет записи тенанта в статусе TRAINING.
func (p *TrainPollService) pollTenant(ctx context.Context, tenantID string) int {
	records, err := p.models.ListByTenant(ctx, tenantID)
	if err != nil {
		p.logger.Error("Опрос: чтение записей тенанта провалилось",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		return 0
	}

	training := records[:0:0]
	for _, rec := range records {
		if rec.Status == model.StatusTraining && rec.TrainedModelID != model.Untrained {
			training = append(training, rec)
		}
	}
	if len(training) == 0 {
		return 0
	}

	resources, err := p.training.ListModels(ctx, tenantID)
	if err != nil {
		p.logger.Error("Опрос: чтение training-сервиса провалилось",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		return 0
	}
	byID := make(map[string]*model.TrainedModelResource, len(resources))
	for i := range resources {
		byID[resources[i].ModelID] = &resources[i]
	}

	updated := 0
	for _, rec := range training {
		res := byID[rec.TrainedModelID]
		if res != nil && res.InProgress() {
			continue
		}

		fileCount := 0
		if rec.FileBatchID != "" {
			if batch, err := p.batches.GetByID(ctx, tenantID, rec.FileBatchID); err == nil {
				fileCount = len(batch.Files)
			}
		}

		derived := model.DeriveStatus(rec.TrainedModelID, fileCount, res)
		if rec.Status == derived {
			continue
		}
		rec.Status = derived
		rec.StatusDate = time.Now().UTC()
		if err := p.models.Update(ctx, rec); err != nil {
			// Конфликт revision или пропавшая запись — исправит следующий
			// цикл или reconciliation
			p.logger.Warn("Опрос: обновление статуса не выполнено",
				slog.String("tenant_id", tenantID),
				slog.String("model_id", rec.ID),
				slog.Any("error", err),
			)
			continue
		}

		p.logger.Info("Статус обучения обновлён",
			slog.String("tenant_id", tenantID),
			slog.String("model_id", rec.ID),
			slog.String("status", derived),
		)
		updated++
	}
	return updated
}
