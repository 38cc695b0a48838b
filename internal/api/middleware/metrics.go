// metrics.go — Prometheus HTTP метрики для Model Module.
// Регистрирует метрики: mm_http_requests_total, mm_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Model Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Model Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификаторы тенантов и моделей на плейсхолдеры)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет идентификаторы тенантов и моделей на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /reconcile/acme/reconcile/m-1 → /reconcile/{tenantId}/reconcile/{modelId}
// Идентификаторы произвольные (не только UUID), поэтому нормализация идёт
// по сегментам пути, а не по длине.
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/openapi.json":
		return path
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")

	// /reconcile/{tenantId}[/status | /reconcile[/{modelId}]]
	if segments[0] == "reconcile" && len(segments) >= 2 {
		switch {
		case len(segments) == 3 && segments[2] == "status":
			return "/reconcile/{tenantId}/status"
		case len(segments) == 3 && segments[2] == "reconcile":
			return "/reconcile/{tenantId}/reconcile"
		case len(segments) == 4 && segments[2] == "reconcile":
			return "/reconcile/{tenantId}/reconcile/{modelId}"
		}
		return path
	}

	// /api/v1/tenants/{tenantId}/models[/{modelId}[/files | /train | /clone]]
	if len(segments) >= 5 && segments[0] == "api" && segments[1] == "v1" &&
		segments[2] == "tenants" && segments[4] == "models" {
		switch {
		case len(segments) == 5:
			return "/api/v1/tenants/{tenantId}/models"
		case len(segments) == 6:
			return "/api/v1/tenants/{tenantId}/models/{modelId}"
		case len(segments) == 7:
			switch segments[6] {
			case "files", "train", "clone":
				return "/api/v1/tenants/{tenantId}/models/{modelId}/" + segments[6]
			}
		}
	}

	return path
}
