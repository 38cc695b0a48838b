// handler.go — основной обработчик API Model Module.
// Объединяет все доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bigkaa/lingstore/model-module/internal/service"
)

// APIHandler — основной обработчик API Model Module.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health     *HealthHandler
	models     *service.ModelService
	dispatcher *service.RepairDispatcher
	status     *service.RepairDispatcher
	reconciler *service.Reconciler
	specJSON   []byte
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// dispatcher выполняет repair-проходы и читает blob-хранилище напрямую;
// status строит отчёты о согласованности и может работать поверх
// кэширующего BlobStore — отчёт не выполняет записей.
// specJSON — OpenAPI-контракт в JSON (результат LoadSpec).
func NewAPIHandler(
	health *HealthHandler,
	models *service.ModelService,
	dispatcher *service.RepairDispatcher,
	status *service.RepairDispatcher,
	reconciler *service.Reconciler,
	specJSON []byte,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		models:     models,
		dispatcher: dispatcher,
		status:     status,
		reconciler: reconciler,
		specJSON:   specJSON,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetOpenAPISpec — GET /api/v1/openapi.json, отдаёт OpenAPI-контракт.
func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.specJSON)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
