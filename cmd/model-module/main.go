// Точка входа Model Module — реестр пользовательских моделей перевода
// системы Lingstore. Загружает конфигурацию, подключается к PostgreSQL,
// применяет миграции, инициализирует клиентов blob-хранилища и
// training-сервиса, собирает reconciliation engine и CRUD-сервис,
// запускает фоновые задачи (sweep, опрос обучения, topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/lingstore/model-module/internal/api/handlers"
	"github.com/bigkaa/lingstore/model-module/internal/api/middleware"
	"github.com/bigkaa/lingstore/model-module/internal/blobclient"
	"github.com/bigkaa/lingstore/model-module/internal/config"
	"github.com/bigkaa/lingstore/model-module/internal/database"
	"github.com/bigkaa/lingstore/model-module/internal/repository"
	"github.com/bigkaa/lingstore/model-module/internal/server"
	"github.com/bigkaa/lingstore/model-module/internal/service"
	"github.com/bigkaa/lingstore/model-module/internal/trainclient"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Model Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if cfg.AuthDisabled {
		logger.Warn("Аутентификация ОТКЛЮЧЕНА (MM_AUTH_DISABLED=true), только для dev-среды")
	}
	if os.Getenv("MM_DEPHEALTH_GROUP") == "" {
		logger.Warn("MM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Провайдер сервисного токена для исходящих запросов
	var tokenProvider blobclient.TokenProvider
	if cfg.ServiceToken != "" {
		token := cfg.ServiceToken
		tokenProvider = func(context.Context) (string, error) { return token, nil }
	}

	// 6. Клиенты blob-хранилища и training-сервиса
	blobClient, err := blobclient.New(cfg.BlobServiceURL, cfg.CACertPath, cfg.BlobTimeout, tokenProvider, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента blob-хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	trainClient := trainclient.New(cfg.TrainingServiceURL, cfg.TrainingTimeout, trainclient.TokenProvider(tokenProvider), logger)

	// 7. Repositories
	modelRepo := repository.NewModelRepository(pool)
	batchRepo := repository.NewBatchRepository(pool)

	// 8. Reconciliation engine.
	// Repair-пути читают blob-хранилище напрямую: устаревший листинг не должен
	// приводить к удалению живого blob. Отчёт о согласованности работает
	// поверх LRU-кэша листингов.
	blobCache := service.NewBlobCache(blobClient, cfg.BlobCacheSize, cfg.BlobCacheTTL)

	repairBuilder := service.NewCrossRefBuilder(modelRepo, batchRepo, blobClient, trainClient, logger)
	dispatcher := service.NewRepairDispatcher(
		repairBuilder, modelRepo, batchRepo, blobClient, trainClient,
		cfg.RepairConcurrency, logger,
	)

	statusBuilder := service.NewCrossRefBuilder(modelRepo, batchRepo, blobCache, trainClient, logger)
	statusDispatcher := service.NewRepairDispatcher(
		statusBuilder, modelRepo, batchRepo, blobCache, trainClient,
		cfg.RepairConcurrency, logger,
	)

	reconciler := service.NewReconciler(repairBuilder, dispatcher, modelRepo, batchRepo, logger)

	// 9. CRUD-сервис записей моделей
	modelsSvc := service.NewModelService(modelRepo, batchRepo, blobClient, trainClient, logger)

	// 10. Фоновые задачи: sweep по всем тенантам и опрос статусов обучения
	sweepSvc := service.NewSweepService(dispatcher, modelRepo, cfg.SweepInterval, logger)
	pollSvc := service.NewTrainPollService(modelRepo, batchRepo, trainClient, cfg.PollInterval, logger)

	// 11. Readiness checkers (PostgreSQL + blob-хранилище + training-сервис)
	pgChecker := database.NewReadinessChecker(pool)
	httpCheckClient := &http.Client{Timeout: 5 * time.Second}
	blobChecker := handlers.NewHTTPReadinessChecker("blob-хранилище", cfg.BlobServiceURL, httpCheckClient)
	trainingChecker := handlers.NewHTTPReadinessChecker("training-сервис", cfg.TrainingServiceURL, httpCheckClient)
	healthHandler := handlers.NewHealthHandler(pgChecker, blobChecker, trainingChecker)

	// 12. OpenAPI-контракт
	specJSON, err := handlers.LoadSpec()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		modelsSvc,
		dispatcher,
		statusDispatcher,
		reconciler,
		specJSON,
		logger,
	)

	// 14. JWT middleware
	var jwtAuth *middleware.JWTAuth
	if !cfg.AuthDisabled {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.CACertPath,
			cfg.JWTIssuer,
			cfg.JWKSRefreshInterval,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer jwtAuth.Close()
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	}

	// 15. Запуск фоновых задач
	sweepSvc.Start(ctx)
	pollSvc.Start(ctx)

	// 15.1 topologymetrics — мониторинг зависимостей
	// (PostgreSQL + blob-хранилище + training-сервис + JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"model-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.BlobServiceURL,
		cfg.TrainingServiceURL,
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 16. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 17. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	sweepSvc.Stop()
	pollSvc.Stop()

	logger.Info("Model Module остановлен")
}
