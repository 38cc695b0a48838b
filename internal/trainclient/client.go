// Пакет trainclient — HTTP-клиент training-сервиса.
// Операции: ListModels (GET /tenants/{tenant}/models), GetModel,
// DeleteModel, RequestTraining (POST /tenants/{tenant}/models).
package trainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

// ErrResourceNotFound — ресурс обучения отсутствует у training-сервиса.
var ErrResourceNotFound = errors.New("ресурс обучения не найден")

// TokenProvider — функция, возвращающая JWT для авторизации запросов
// к training-сервису.
type TokenProvider func(ctx context.Context) (string, error)

// TrainingRequest — запрос на запуск обучения.
type TrainingRequest struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	Domain      string `json:"domain,omitempty"`
	BaseModelID string `json:"base_model_id,omitempty"`
	BatchID     string `json:"batch_id"`
}

// modelListResponse — ответ training-сервиса на GET /tenants/{tenant}/models.
type modelListResponse struct {
	Models []model.TrainedModelResource `json:"models"`
}

// Client — HTTP-клиент training-сервиса.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент training-сервиса.
func New(baseURL string, timeout time.Duration, tokenProvider TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "train_client")),
	}
}

// ListModels возвращает все ресурсы обучения тенанта.
// GET /tenants/{tenant}/models.
func (c *Client) ListModels(ctx context.Context, tenantID string) ([]model.TrainedModelResource, error) {
	reqURL := fmt.Sprintf("%s/tenants/%s/models", c.baseURL, tenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса ListModels: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос ListModels к training-сервису: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("training-сервис ListModels вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var listResp modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("декодирование ListModels от training-сервиса: %w", err)
	}

	return listResp.Models, nil
}

// GetModel возвращает один ресурс обучения.
// GET /tenants/{tenant}/models/{id}. 404 — ErrResourceNotFound.
func (c *Client) GetModel(ctx context.Context, tenantID, modelID string) (*model.TrainedModelResource, error) {
	reqURL := fmt.Sprintf("%s/tenants/%s/models/%s", c.baseURL, tenantID, modelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetModel: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос GetModel к training-сервису: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrResourceNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("training-сервис GetModel вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var res model.TrainedModelResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("декодирование GetModel от training-сервиса: %w", err)
	}

	return &res, nil
}

// DeleteModel удаляет ресурс обучения.
// DELETE /tenants/{tenant}/models/{id}. 404 — не ошибка: удаление идемпотентно.
func (c *Client) DeleteModel(ctx context.Context, tenantID, modelID string) error {
	reqURL := fmt.Sprintf("%s/tenants/%s/models/%s", c.baseURL, tenantID, modelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("создание запроса DeleteModel: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос DeleteModel к training-сервису: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("training-сервис DeleteModel вернул статус %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// RequestTraining запускает обучение модели на файлах батча.
// POST /tenants/{tenant}/models. Возвращает созданный ресурс.
func (c *Client) RequestTraining(ctx context.Context, tenantID string, tr *TrainingRequest) (*model.TrainedModelResource, error) {
	payload, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса обучения: %w", err)
	}

	reqURL := fmt.Sprintf("%s/tenants/%s/models", c.baseURL, tenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("создание запроса RequestTraining: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос RequestTraining к training-сервису: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("training-сервис RequestTraining вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var res model.TrainedModelResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("декодирование RequestTraining от training-сервиса: %w", err)
	}

	return &res, nil
}

// authorize добавляет Bearer-токен в запрос.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenProvider == nil {
		return nil
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("получение токена для training-сервиса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
