// Пакет blobclient — HTTP-клиент blob-хранилища файлов обучения.
// Поддерживает TLS с кастомным CA (MM_CA_CERT_PATH).
// Операции: List (GET /containers/{tenant}/blobs), Upload (PUT .../blobs/{uuid}),
// Delete (DELETE .../blobs/{uuid}).
package blobclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

// TokenProvider — функция, возвращающая JWT для авторизации запросов
// к blob-хранилищу.
type TokenProvider func(ctx context.Context) (string, error)

// blobListResponse — ответ хранилища на GET /containers/{tenant}/blobs.
type blobListResponse struct {
	Blobs []model.Blob `json:"blobs"`
}

// Client — HTTP-клиент blob-хранилища.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент blob-хранилища.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// tokenProvider — функция для получения JWT (может быть nil для dev-среды).
func New(baseURL, caCertPath string, timeout time.Duration, tokenProvider TokenProvider, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата blob-хранилища: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат blob-хранилища добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL:       normalizeURL(baseURL),
		httpClient:    httpClient,
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "blob_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// List возвращает все blob контейнера тенанта.
// GET /containers/{tenant}/blobs. Отсутствующий контейнер — пустой список.
func (c *Client) List(ctx context.Context, tenantID string) ([]model.Blob, error) {
	reqURL := fmt.Sprintf("%s/containers/%s/blobs", c.baseURL, tenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса List: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос List к blob-хранилищу: %w", err)
	}
	defer resp.Body.Close()

	// Контейнер тенанта ещё не создан — трактуем как пустой
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("blob-хранилище List вернуло статус %d: %s", resp.StatusCode, string(body))
	}

	var listResp blobListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("декодирование List от blob-хранилища: %w", err)
	}

	return listResp.Blobs, nil
}

// Upload загружает содержимое blob в контейнер тенанта.
// PUT /containers/{tenant}/blobs/{uuid}.
func (c *Client) Upload(ctx context.Context, tenantID, uuid, contentType string, data []byte) error {
	reqURL := fmt.Sprintf("%s/containers/%s/blobs/%s", c.baseURL, tenantID, uuid)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("создание запроса Upload: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос Upload к blob-хранилищу: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("blob-хранилище Upload вернуло статус %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Delete удаляет blob из контейнера тенанта.
// DELETE /containers/{tenant}/blobs/{uuid}. 404 — blob уже отсутствует,
// не ошибка: удаление идемпотентно.
func (c *Client) Delete(ctx context.Context, tenantID, uuid string) error {
	reqURL := fmt.Sprintf("%s/containers/%s/blobs/%s", c.baseURL, tenantID, uuid)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("создание запроса Delete: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос Delete к blob-хранилищу: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("blob-хранилище Delete вернуло статус %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// authorize добавляет Bearer-токен в запрос.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenProvider == nil {
		return nil
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("получение токена для blob-хранилища: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
