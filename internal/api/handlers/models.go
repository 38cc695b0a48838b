// models.go — обработчики /api/v1/tenants/{tenantId}/models endpoints.
// CRUD записей моделей, загрузка файлов, запуск обучения, клонирование.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/lingstore/model-module/internal/api/errors"
	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
	"github.com/bigkaa/lingstore/model-module/internal/repository"
	"github.com/bigkaa/lingstore/model-module/internal/service"
)

// Максимальный размер загружаемого файла обучения (64 МБ).
const maxUploadSize = 64 << 20

// modelRequest — тело запросов создания и изменения модели.
type modelRequest struct {
	Name    string `json:"name"`
	Project string `json:"project,omitempty"`
}

// modelListResponse — ответ списка моделей.
type modelListResponse struct {
	Items []*model.ModelRecord `json:"items"`
	Total int                  `json:"total"`
}

// CreateModel — POST /api/v1/tenants/{tenantId}/models.
// Создаёт запись модели вместе с пустым батчем.
func (h *APIHandler) CreateModel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Name == "" {
		apierrors.ValidationError(w, "Имя модели обязательно")
		return
	}

	rec, err := h.models.Create(r.Context(), tenantID, req.Name, req.Project)
	if err != nil {
		h.writeModelError(w, "Ошибка создания модели", tenantID, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListModels — GET /api/v1/tenants/{tenantId}/models.
// Возвращает все записи моделей тенанта.
func (h *APIHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	records, err := h.models.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("Ошибка получения списка моделей", "tenant_id", tenantID, "error", err)
		apierrors.InternalError(w, "Ошибка получения списка моделей")
		return
	}

	writeJSON(w, http.StatusOK, modelListResponse{Items: records, Total: len(records)})
}

// GetModel — GET /api/v1/tenants/{tenantId}/models/{modelId}.
func (h *APIHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	modelID := chi.URLParam(r, "modelId")

	rec, err := h.models.Get(r.Context(), tenantID, modelID)
	if err != nil {
		h.writeModelError(w, "Ошибка получения модели", tenantID, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// UpdateModel — PUT /api/v1/tenants/{tenantId}/models/{modelId}.
// Переименование и смена проекта. Пустые поля не изменяются.
func (h *APIHandler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	modelID := chi.URLParam(r, "modelId")

	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	rec, err := h.models.Update(r.Context(), tenantID, modelID, req.Name, req.Project)
	if err != nil {
		h.writeModelError(w, "Ошибка изменения модели", tenantID, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DeleteModel — DELETE /api/v1/tenants/{tenantId}/models/{modelId}.
// Помечает модель на удаление и сразу запускает сверку помеченной записи —
// каскадное удаление файлов, батча и ресурса обучения. Если немедленная
// сверка не удалась, её довершит фоновый sweep. Повторный вызов идемпотентен.
func (h *APIHandler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	modelID := chi.URLParam(r, "modelId")

	rec, err := h.models.MarkForDeletion(r.Context(), tenantID, modelID)
	if err != nil {
		h.writeModelError(w, "Ошибка пометки модели на удаление", tenantID, err)
		return
	}

	if _, rerr := h.reconciler.ReconcileModel(r.Context(), tenantID, modelID); rerr != nil {
		h.logger.Warn("Немедленное каскадное удаление не выполнено, довершит sweep",
			"tenant_id", tenantID, "model_id", modelID, "error", rerr)
	}

	writeJSON(w, http.StatusAccepted, rec)
}

// UploadModelFile — POST /api/v1/tenants/{tenantId}/models/{modelId}/files.
// Загружает файл обучения (multipart/form-data, поле file).
// Опциональное поле option задаёт назначение файла (training, glossary).
func (h *APIHandler) UploadModelFile(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	modelID := chi.URLParam(r, "modelId")

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		apierrors.ValidationError(w, "Некорректный multipart-запрос: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле file обязательно")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения файла: "+err.Error())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	option := r.FormValue("option")

	entry, err := h.models.UploadFile(r.Context(), tenantID, modelID, header.Filename, option, contentType, data)
	if err != nil {
		h.writeModelError(w, "Ошибка загрузки файла", tenantID, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// TrainModel — POST /api/v1/tenants/{tenantId}/models/{modelId}/train.
// Запускает обучение модели на файлах её батча.
func (h *APIHandler) TrainModel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	modelID := chi.URLParam(r, "modelId")

	var params service.TrainParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	rec, err := h.models.Train(r.Context(), tenantID, modelID, &params)
	if err != nil {
		h.writeModelError(w, "Ошибка запуска обучения", tenantID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, rec)
}

// cloneRequest — тело запроса клонирования.
type cloneRequest struct {
	Name string `json:"name,omitempty"`
}

// CloneModel — POST /api/v1/tenants/{tenantId}/models/{modelId}/clone.
// Создаёт копию модели: новый батч с копией списка файлов.
func (h *APIHandler) CloneModel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	modelID := chi.URLParam(r, "modelId")

	var req cloneRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
			return
		}
	}

	rec, err := h.models.Clone(r.Context(), tenantID, modelID, req.Name)
	if err != nil {
		h.writeModelError(w, "Ошибка клонирования модели", tenantID, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// writeModelError транслирует ошибки сервисного слоя в HTTP-ответы.
func (h *APIHandler) writeModelError(w http.ResponseWriter, logMsg, tenantID string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrModelNotFound), errors.Is(err, service.ErrBatchNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrNameTaken):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, repository.ErrRevisionConflict):
		apierrors.Conflict(w, "Запись изменена параллельным запросом, повторите попытку")
	default:
		h.logger.Error(logMsg, "tenant_id", tenantID, "error", err)
		apierrors.InternalError(w, logMsg)
	}
}
