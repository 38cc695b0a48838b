package model

import "time"

// Untrained — sentinel-значение TrainedModelID для модели без обученного ресурса.
const Untrained = "UNTRAINED"

// Статусы модели. Статус выводится из (TrainedModelID, количество файлов батча,
// статус обученного ресурса) — см. DeriveStatus.
const (
	// StatusCreated — модель создана, файлы не загружены.
	StatusCreated = "CREATED"
	// StatusFilesLoaded — файлы загружены, обучение не запущено.
	StatusFilesLoaded = "FILESLOADED"
	// StatusTraining — обучение выполняется training-сервисом.
	StatusTraining = "TRAINING"
	// StatusTrained — обученный ресурс доступен.
	StatusTrained = "TRAINED"
	// StatusWarning — ресурс обучения отсутствует, удалён или в неизвестном состоянии.
	StatusWarning = "WARNING"
)

// ModelRecord — запись кастомной модели перевода.
// Хранится в таблице models. Перезаписывается целиком (read-modify-write
// с revision-токеном), частичных обновлений нет.
type ModelRecord struct {
	// ID — идентификатор модели (UUID)
	ID string
	// TenantID — идентификатор тенанта-владельца
	TenantID string
	// Name — имя модели (уникальность в рамках тенанта не гарантируется хранилищем)
	Name string
	// Project — проект, к которому относится модель
	Project string
	// Status — текущий статус (CREATED, FILESLOADED, TRAINING, TRAINED, WARNING)
	Status string
	// TrainedModelID — идентификатор ресурса training-сервиса или Untrained
	TrainedModelID string
	// FileBatchID — идентификатор батча файлов (пустая строка — батч не назначен)
	FileBatchID string
	// StatusDate — время последней смены статуса
	StatusDate time.Time
	// CreationDate — время создания (у старых записей может отсутствовать)
	CreationDate *time.Time
	// MarkedForDeletion — запись помечена на удаление
	MarkedForDeletion bool
	// ClonedFrom — ID модели-источника при клонировании (опционально)
	ClonedFrom string
	// Revision — revision-токен оптимистической блокировки
	Revision int64
	// CreatedAt — время создания строки в БД
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления строки в БД
	UpdatedAt time.Time
}

// DeriveStatus вычисляет корректный статус модели по инварианту статусов:
// пустой батч + UNTRAINED → CREATED; непустой батч + UNTRAINED → FILESLOADED;
// ресурс в процессе обучения → TRAINING; ресурс доступен → TRAINED;
// ресурс отсутствует/удалён/неизвестен → WARNING.
// resource — nil, если ресурс обучения не найден у training-сервиса.
func DeriveStatus(trainedModelID string, fileCount int, resource *TrainedModelResource) string {
	if trainedModelID == Untrained || trainedModelID == "" {
		if fileCount == 0 {
			return StatusCreated
		}
		return StatusFilesLoaded
	}
	if resource == nil {
		return StatusWarning
	}
	switch resource.Status {
	case TrainedStatusSubmitted, TrainedStatusQueued, TrainedStatusRunning:
		return StatusTraining
	case TrainedStatusAvailable:
		return StatusTrained
	default:
		return StatusWarning
	}
}

// Newer сравнивает две записи по возрасту и возвращает true, если a создана
// позже b (a «моложе»). Единая цепочка сравнения для всех мест, где разрешаются
// дубликаты: CreationDate (если есть у обеих) → StatusDate → ID.
func Newer(a, b *ModelRecord) bool {
	if a.CreationDate != nil && b.CreationDate != nil && !a.CreationDate.Equal(*b.CreationDate) {
		return a.CreationDate.After(*b.CreationDate)
	}
	if !a.StatusDate.Equal(b.StatusDate) {
		return a.StatusDate.After(b.StatusDate)
	}
	return a.ID > b.ID
}
