package model

import "time"

// BatchFile — одна запись файла в батче. Единственное место, где blob
// объявляется «используемым»: счётчик использования blob вычисляется
// сканированием записей всех батчей тенанта.
type BatchFile struct {
	// FileName — оригинальное имя файла
	FileName string `json:"file_name"`
	// UUID — имя объекта в blob-хранилище
	UUID string `json:"uuid"`
	// LastModified — время загрузки файла
	LastModified time.Time `json:"last_modified"`
	// TrainingFileOption — назначение файла (training, tuning, testing)
	TrainingFileOption string `json:"training_file_option"`
}

// FileBatch — батч файлов обучения одной модели.
// Хранится в таблице file_batches, список файлов — jsonb.
type FileBatch struct {
	// ID — идентификатор батча (UUID)
	ID string
	// TenantID — идентификатор тенанта-владельца
	TenantID string
	// Files — упорядоченный список файлов батча
	Files []BatchFile
	// Revision — revision-токен оптимистической блокировки
	Revision int64
	// CreatedAt — время создания строки в БД
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления строки в БД
	UpdatedAt time.Time
}
