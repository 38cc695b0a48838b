// Пакет config — загрузка и валидация конфигурации Model Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Model Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL (model store + batch store) ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Blob-хранилище ---

	// URL сервиса blob-хранилища (например, https://blobstore:8010)
	BlobServiceURL string
	// Путь к CA-сертификату для TLS-соединений с внешними сервисами (опционально)
	CACertPath string
	// Таймаут HTTP-запросов к blob-хранилищу
	BlobTimeout time.Duration

	// --- Training-сервис ---

	// URL training-сервиса
	TrainingServiceURL string
	// Таймаут HTTP-запросов к training-сервису
	TrainingTimeout time.Duration

	// --- JWT ---

	// URL JWKS endpoint провайдера аутентификации
	JWTJWKSURL string
	// Ожидаемый issuer JWT
	JWTIssuer string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Отключение аутентификации (только для dev-среды)
	AuthDisabled bool
	// Статический сервисный токен для исходящих запросов
	// к blob-хранилищу и training-сервису (опционально)
	ServiceToken string

	// --- Reconciliation ---

	// Интервал фонового reconciliation-прохода по всем тенантам
	SweepInterval time.Duration
	// Интервал опроса статусов обучения
	PollInterval time.Duration
	// Максимальное количество параллельных операций внутри repair-функции
	RepairConcurrency int
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы topologymetrics
	DephealthGroup string

	// --- Кэш blob-листингов (только для display-путей) ---

	// Максимальное количество тенантов в LRU-кэше
	BlobCacheSize int
	// TTL записи кэша
	BlobCacheTTL time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// MM_PORT — порт HTTP-сервера (по умолчанию 8004)
	cfg.Port, err = getEnvInt("MM_PORT", 8004)
	if err != nil {
		return nil, fmt.Errorf("MM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("MM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// MM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MM_LOG_LEVEL: %w", err)
	}

	// MM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// MM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("MM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// MM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("MM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MM_DB_PORT: %w", err)
	}

	// MM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("MM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// MM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("MM_DB_USER")
	if err != nil {
		return nil, err
	}

	// MM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("MM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// MM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("MM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Blob-хранилище ---

	// MM_BLOB_SERVICE_URL — обязательный
	cfg.BlobServiceURL, err = getEnvRequired("MM_BLOB_SERVICE_URL")
	if err != nil {
		return nil, err
	}
	cfg.BlobServiceURL = strings.TrimRight(cfg.BlobServiceURL, "/")

	// MM_CA_CERT_PATH — путь к CA-сертификату (опционально)
	cfg.CACertPath = getEnvDefault("MM_CA_CERT_PATH", "")

	// MM_BLOB_TIMEOUT — таймаут запросов к blob-хранилищу (по умолчанию 30s)
	cfg.BlobTimeout, err = getEnvDuration("MM_BLOB_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_BLOB_TIMEOUT: %w", err)
	}

	// --- Training-сервис ---

	// MM_TRAINING_SERVICE_URL — обязательный
	cfg.TrainingServiceURL, err = getEnvRequired("MM_TRAINING_SERVICE_URL")
	if err != nil {
		return nil, err
	}
	cfg.TrainingServiceURL = strings.TrimRight(cfg.TrainingServiceURL, "/")

	// MM_TRAINING_TIMEOUT — таймаут запросов к training-сервису (по умолчанию 30s)
	cfg.TrainingTimeout, err = getEnvDuration("MM_TRAINING_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_TRAINING_TIMEOUT: %w", err)
	}

	// --- JWT ---

	// MM_AUTH_DISABLED — отключение аутентификации (по умолчанию false)
	cfg.AuthDisabled = getEnvDefault("MM_AUTH_DISABLED", "false") == "true"

	if !cfg.AuthDisabled {
		// MM_JWT_JWKS_URL — обязательный при включённой аутентификации
		cfg.JWTJWKSURL, err = getEnvRequired("MM_JWT_JWKS_URL")
		if err != nil {
			return nil, err
		}
	} else {
		cfg.JWTJWKSURL = getEnvDefault("MM_JWT_JWKS_URL", "")
	}

	// MM_JWT_ISSUER — ожидаемый issuer (опционально)
	cfg.JWTIssuer = getEnvDefault("MM_JWT_ISSUER", "")

	// MM_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("MM_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// MM_SERVICE_TOKEN — токен для исходящих запросов (опционально)
	cfg.ServiceToken = getEnvDefault("MM_SERVICE_TOKEN", "")

	// --- Reconciliation ---

	// MM_SWEEP_INTERVAL — интервал фонового reconciliation-прохода (по умолчанию 1h)
	cfg.SweepInterval, err = getEnvDuration("MM_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MM_SWEEP_INTERVAL: %w", err)
	}

	// MM_POLL_INTERVAL — интервал опроса статусов обучения (по умолчанию 1m)
	cfg.PollInterval, err = getEnvDuration("MM_POLL_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MM_POLL_INTERVAL: %w", err)
	}

	// MM_REPAIR_CONCURRENCY — fan-out repair-функций (по умолчанию 5)
	cfg.RepairConcurrency, err = getEnvInt("MM_REPAIR_CONCURRENCY", 5)
	if err != nil {
		return nil, fmt.Errorf("MM_REPAIR_CONCURRENCY: %w", err)
	}
	if cfg.RepairConcurrency < 1 || cfg.RepairConcurrency > 64 {
		return nil, fmt.Errorf("MM_REPAIR_CONCURRENCY: значение %d вне допустимого диапазона 1-64", cfg.RepairConcurrency)
	}

	// MM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("MM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// MM_DEPHEALTH_GROUP — имя группы topologymetrics (по умолчанию lingstore)
	cfg.DephealthGroup = getEnvDefault("MM_DEPHEALTH_GROUP", "lingstore")

	// --- Кэш blob-листингов ---

	// MM_BLOB_CACHE_SIZE — размер LRU-кэша (по умолчанию 128 тенантов)
	cfg.BlobCacheSize, err = getEnvInt("MM_BLOB_CACHE_SIZE", 128)
	if err != nil {
		return nil, fmt.Errorf("MM_BLOB_CACHE_SIZE: %w", err)
	}
	if cfg.BlobCacheSize < 1 {
		return nil, fmt.Errorf("MM_BLOB_CACHE_SIZE: значение %d должно быть положительным", cfg.BlobCacheSize)
	}

	// MM_BLOB_CACHE_TTL — TTL записи кэша (по умолчанию 30s)
	cfg.BlobCacheTTL, err = getEnvDuration("MM_BLOB_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_BLOB_CACHE_TTL: %w", err)
	}

	// --- Graceful shutdown ---

	// MM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("MM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// MM_HTTP_READ_TIMEOUT / MM_HTTP_WRITE_TIMEOUT / MM_HTTP_IDLE_TIMEOUT
	cfg.HTTPReadTimeout, err = getEnvDuration("MM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("MM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("MM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для метрик topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
