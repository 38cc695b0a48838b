// sweep.go — фоновый reconciliation-проход по всем тенантам.
//
// Sweep периодически (MM_SWEEP_INTERVAL) перебирает тенанты, имеющие записи
// моделей, и для каждого выполняет tenant-wide repair-проход. Сбой одного
// тенанта не прерывает остальные: проходы независимы и идемпотентны.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/repository"
)

// SweepResult — результат одного цикла sweep.
type SweepResult struct {
	// Tenants — количество обработанных тенантов
	Tenants int
	// Repaired — суммарное количество исправленных элементов
	Repaired int
	// Errors — количество тенантов, у которых проход провалился
	Errors int
	// Duration — длительность цикла
	Duration time.Duration
}

// SweepService — фоновый reconciliation-проход.
type SweepService struct {
	dispatcher *RepairDispatcher
	models     repository.ModelRepository
	interval   time.Duration
	logger     *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweepService создаёт sweep-сервис.
func NewSweepService(
	dispatcher *RepairDispatcher,
	models repository.ModelRepository,
	interval time.Duration,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		dispatcher: dispatcher,
		models:     models,
		interval:   interval,
		logger:     logger.With(slog.String("component", "sweep")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *SweepService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Sweep запущен",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс.
func (s *SweepService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Sweep остановлен")
}

// run — основной цикл фоновой горутины.
func (s *SweepService) run(ctx context.Context) {
	// Первый проход — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл sweep по всем тенантам.
// Потокобезопасен: mutex защищает от параллельного запуска.
func (s *SweepService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	tenants, err := s.models.ListTenants(ctx)
	if err != nil {
		s.logger.Error("Sweep: не удалось получить список тенантов",
			slog.Any("error", err),
		)
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			break
		}
		report, err := s.dispatcher.Run(ctx, tenantID, "sweep")
		if err != nil {
			s.logger.Error("Sweep: проход тенанта провалился",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
			result.Errors++
			continue
		}
		result.Tenants++
		result.Repaired += report.Repaired
	}

	result.Duration = time.Since(start)

	s.logger.Info("Sweep завершён",
		slog.Int("tenants", result.Tenants),
		slog.Int("repaired", result.Repaired),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
