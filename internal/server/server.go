// Пакет server — HTTP-сервер Model Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/lingstore/model-module/internal/api/handlers"
	"github.com/bigkaa/lingstore/model-module/internal/api/middleware"
	"github.com/bigkaa/lingstore/model-module/internal/config"
)

// Server — HTTP-сервер Model Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (nil при MM_AUTH_DISABLED=true).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// JWT middleware с исключениями для публичных endpoints.
	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth,
			"/health/", "/metrics", "/api/v1/openapi.json",
		))
	}

	// Системные endpoints
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)
	router.Get("/api/v1/openapi.json", handler.GetOpenAPISpec)

	// Tenant guard: проверка scope и доступа к тенанту из URL.
	// При отключённой аутентификации claims отсутствуют — guard не ставим.
	var readGuard, writeGuard func(http.Handler) http.Handler
	if jwtAuth != nil {
		readGuard = middleware.RequireTenantScope(middleware.ScopeModelsRead)
		writeGuard = middleware.RequireTenantScope(middleware.ScopeModelsWrite)
	} else {
		readGuard = passthrough
		writeGuard = passthrough
	}

	// Reconciliation endpoints
	router.Route("/reconcile/{tenantId}", func(r chi.Router) {
		r.With(readGuard).Get("/status", handler.ReconcileStatus)
		r.With(writeGuard).Get("/reconcile", handler.ReconcileTenant)
		r.With(writeGuard).Get("/reconcile/{modelId}", handler.ReconcileModel)
	})

	// CRUD записей моделей
	router.Route("/api/v1/tenants/{tenantId}/models", func(r chi.Router) {
		r.With(readGuard).Get("/", handler.ListModels)
		r.With(writeGuard).Post("/", handler.CreateModel)
		r.With(readGuard).Get("/{modelId}", handler.GetModel)
		r.With(writeGuard).Put("/{modelId}", handler.UpdateModel)
		r.With(writeGuard).Delete("/{modelId}", handler.DeleteModel)
		r.With(writeGuard).Post("/{modelId}/files", handler.UploadModelFile)
		r.With(writeGuard).Post("/{modelId}/train", handler.TrainModel)
		r.With(writeGuard).Post("/{modelId}/clone", handler.CloneModel)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// passthrough — no-op middleware для режима без аутентификации.
func passthrough(next http.Handler) http.Handler {
	return next
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Применяем JWT middleware
			jwtMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
