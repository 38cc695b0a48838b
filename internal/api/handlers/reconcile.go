// reconcile.go — обработчики /reconcile endpoints.
// Отчёт о согласованности тенанта, тенантный repair-проход,
// синхронная сверка одной модели.
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/lingstore/model-module/internal/api/errors"
	"github.com/bigkaa/lingstore/model-module/internal/service"
)

// ReconcileStatus — GET /reconcile/{tenantId}/status.
// Строит перекрёстный снимок четырёх хранилищ и возвращает отчёт
// о согласованности без каких-либо исправлений.
func (h *APIHandler) ReconcileStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		apierrors.ValidationError(w, "Идентификатор тенанта обязателен")
		return
	}

	report, err := h.status.Status(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, service.ErrUpstreamUnavailable) {
			apierrors.UpstreamUnavailable(w, err.Error())
			return
		}
		h.logger.Error("Ошибка построения отчёта о согласованности",
			"tenant_id", tenantID, "error", err)
		apierrors.InternalError(w, "Ошибка построения отчёта о согласованности")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ReconcileTenant — GET /reconcile/{tenantId}/reconcile.
// Запускает полный repair-проход по тенанту и возвращает сводку исходов.
func (h *APIHandler) ReconcileTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		apierrors.ValidationError(w, "Идентификатор тенанта обязателен")
		return
	}

	report, err := h.dispatcher.Run(r.Context(), tenantID, "api")
	if err != nil {
		if errors.Is(err, service.ErrUpstreamUnavailable) {
			apierrors.UpstreamUnavailable(w, err.Error())
			return
		}
		h.logger.Error("Ошибка repair-прохода", "tenant_id", tenantID, "error", err)
		apierrors.InternalError(w, "Ошибка repair-прохода")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ReconcileModel — GET /reconcile/{tenantId}/reconcile/{modelId}.
// Синхронная сверка одной модели: применяет не более одного исправления
// и возвращает итоговое представление.
func (h *APIHandler) ReconcileModel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	modelID := chi.URLParam(r, "modelId")
	if tenantID == "" || modelID == "" {
		apierrors.ValidationError(w, "Идентификаторы тенанта и модели обязательны")
		return
	}

	result, err := h.reconciler.ReconcileModel(r.Context(), tenantID, modelID)
	if err != nil {
		if errors.Is(err, service.ErrModelNotFound) {
			apierrors.NotFound(w, "Модель "+modelID+" не найдена")
			return
		}
		if errors.Is(err, service.ErrUpstreamUnavailable) {
			apierrors.UpstreamUnavailable(w, err.Error())
			return
		}
		h.logger.Error("Ошибка сверки модели",
			"tenant_id", tenantID, "model_id", modelID, "error", err)
		apierrors.InternalError(w, "Ошибка сверки модели")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
