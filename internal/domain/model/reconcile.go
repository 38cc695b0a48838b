package model

import "time"

// ReconcileProblem — вид аномалии записи модели. Запись получает не более
// одной аномалии за проход: классификатор применяет правила в фиксированном
// порядке, выигрывает первое совпавшее.
type ReconcileProblem string

const (
	// ProblemDelete — запись помечена на удаление.
	ProblemDelete ReconcileProblem = "delete"
	// ProblemMissingBatch — батч не назначен или не найден в batch store.
	ProblemMissingBatch ReconcileProblem = "missing_batch"
	// ProblemBatchUsedElsewhere — батч принадлежит другой (более новой) записи.
	ProblemBatchUsedElsewhere ReconcileProblem = "batch_used_elsewhere"
	// ProblemMissingTrainedModel — trained_model_id не разрешается в ресурс.
	ProblemMissingTrainedModel ReconcileProblem = "missing_trained_model"
	// ProblemIncorrectStatus — статус не совпадает с выводимым.
	ProblemIncorrectStatus ReconcileProblem = "incorrect_status"
	// ProblemMissingFile — батч ссылается на отсутствующие в хранилище blob.
	ProblemMissingFile ReconcileProblem = "missing_file"
)

// FileDetail — запись файла батча, соединённая с метаданными blob.
type FileDetail struct {
	BatchFile
	// Hash — контрольная сумма blob
	Hash string `json:"hash"`
	// Size — размер blob в байтах
	Size int64 `json:"size"`
	// ContentType — MIME-тип blob
	ContentType string `json:"content_type"`
}

// ModelView — представление записи модели для API: сама запись,
// аномалия (если есть) и разрешённые детали батча/ресурса обучения.
type ModelView struct {
	// ID — идентификатор модели
	ID string `json:"id"`
	// TenantID — идентификатор тенанта
	TenantID string `json:"tenant_id"`
	// Name — имя модели
	Name string `json:"name"`
	// Project — проект модели
	Project string `json:"project"`
	// Status — текущий статус
	Status string `json:"status"`
	// TrainedModelID — идентификатор ресурса обучения или UNTRAINED
	TrainedModelID string `json:"trained_model_id"`
	// FileBatchID — идентификатор батча
	FileBatchID string `json:"file_batch_id,omitempty"`
	// StatusDate — время последней смены статуса
	StatusDate time.Time `json:"status_date"`
	// CreationDate — время создания записи (опционально)
	CreationDate *time.Time `json:"creation_date,omitempty"`
	// ClonedFrom — источник клонирования (опционально)
	ClonedFrom string `json:"cloned_from,omitempty"`
	// ReconcileProblem — вид аномалии; пусто для reconciled-записи
	ReconcileProblem ReconcileProblem `json:"reconcile_problem,omitempty"`
	// FilesMissing — UUID файлов батча, отсутствующих в blob-хранилище
	FilesMissing []string `json:"files_missing,omitempty"`
	// FileBatchDetails — файлы батча, соединённые с метаданными blob
	FileBatchDetails []FileDetail `json:"file_batch_details,omitempty"`
	// TrainedModelDetails — ресурс обучения (если разрешился)
	TrainedModelDetails *TrainedModelResource `json:"trained_model_details,omitempty"`
}

// Unreconciled — сироты и аномальные записи тенанта.
type Unreconciled struct {
	// CustomModels — записи моделей с аномалиями
	CustomModels []ModelView `json:"custom_models,omitempty"`
	// Batches — ID батчей без владельца
	Batches []string `json:"batches,omitempty"`
	// TrainedModels — ресурсы обучения без ссылающейся модели
	TrainedModels []TrainedModelResource `json:"trained_models,omitempty"`
	// Files — UUID blob без единой ссылки из батчей
	Files []string `json:"files,omitempty"`
}

// TenantReport — результат классификации всех сущностей тенанта.
type TenantReport struct {
	// TenantID — идентификатор тенанта
	TenantID string `json:"tenant_id"`
	// Reconciled — записи, у которых все перекрёстные ссылки разрешаются
	Reconciled []ModelView `json:"reconciled"`
	// Unreconciled — аномальные записи и сироты
	Unreconciled Unreconciled `json:"unreconciled"`
}

// Результат обработки одного элемента repair-функцией.
const (
	// RepairResultRepaired — запись исправлена (выполнена запись в хранилище).
	RepairResultRepaired = "repaired"
	// RepairResultSkipped — исправление не требуется или выполнено другим проходом
	// (конфликт revision, запись уже отсутствует, blob снова используется).
	RepairResultSkipped = "skipped"
	// RepairResultFailed — элемент не исправлен; остальные элементы не затронуты.
	RepairResultFailed = "failed"
)

// RepairOutcome — исход обработки одного элемента repair-функцией.
// Сбой одного элемента никогда не прерывает обработку остальных.
type RepairOutcome struct {
	// ID — идентификатор элемента (модель, батч, blob или ресурс обучения)
	ID string `json:"id"`
	// Action — имя repair-функции
	Action string `json:"action"`
	// Result — repaired, skipped или failed
	Result string `json:"result"`
	// Error — текст ошибки для failed-элементов
	Error string `json:"error,omitempty"`
}

// RepairReport — сводка одного тенантного repair-прохода.
type RepairReport struct {
	// TenantID — идентификатор тенанта
	TenantID string `json:"tenant_id"`
	// StartedAt — время начала прохода
	StartedAt time.Time `json:"started_at"`
	// CompletedAt — время завершения прохода
	CompletedAt time.Time `json:"completed_at"`
	// Outcomes — исходы по всем repair-функциям
	Outcomes []RepairOutcome `json:"outcomes,omitempty"`
	// Repaired — количество исправленных элементов
	Repaired int `json:"repaired"`
	// Skipped — количество пропущенных элементов
	Skipped int `json:"skipped"`
	// Failed — количество элементов с ошибками
	Failed int `json:"failed"`
}

// Add добавляет исход в сводку и обновляет счётчики.
func (r *RepairReport) Add(o RepairOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Result {
	case RepairResultRepaired:
		r.Repaired++
	case RepairResultSkipped:
		r.Skipped++
	case RepairResultFailed:
		r.Failed++
	}
}

// ReconcileModelResult — результат синхронной сверки одной модели.
type ReconcileModelResult struct {
	// ID — идентификатор модели
	ID string `json:"id"`
	// OK — сверка завершена успешно
	OK bool `json:"ok"`
	// Deleted — запись и связанные сущности удалены (DELETE-ветка)
	Deleted bool `json:"deleted,omitempty"`
	// Action — применённое исправление (none — запись уже reconciled)
	Action string `json:"action,omitempty"`
	// Model — итоговое представление модели (nil для DELETE-ветки)
	Model *ModelView `json:"model,omitempty"`
}
