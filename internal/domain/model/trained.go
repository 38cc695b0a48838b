package model

// Статусы ресурса training-сервиса.
// submitted/queued/running считаются «в процессе», available — готов,
// всё остальное (failed, deleted, неизвестные токены) трактуется как WARNING.
const (
	TrainedStatusSubmitted = "submitted"
	TrainedStatusQueued    = "queued"
	TrainedStatusRunning   = "running"
	TrainedStatusAvailable = "available"
	TrainedStatusFailed    = "failed"
)

// TrainedModelResource — ресурс обученной модели, принадлежащий внешнему
// training-сервису. Model Module его только читает и удаляет (cleanup сирот),
// обучением не управляет.
type TrainedModelResource struct {
	// ModelID — идентификатор ресурса у training-сервиса
	ModelID string `json:"model_id"`
	// Source — исходный язык
	Source string `json:"source"`
	// Target — целевой язык
	Target string `json:"target"`
	// Domain — предметная область модели
	Domain string `json:"domain"`
	// BaseModelID — идентификатор базовой модели
	BaseModelID string `json:"base_model_id"`
	// Status — статус ресурса (submitted, queued, running, available, failed, ...)
	Status string `json:"status"`
	// Owner — идентификатор тенанта-владельца
	Owner string `json:"owner"`
	// Name — имя, заданное при запуске обучения
	Name string `json:"name"`
}

// InProgress возвращает true, если ресурс находится в процессе обучения.
func (r *TrainedModelResource) InProgress() bool {
	switch r.Status {
	case TrainedStatusSubmitted, TrainedStatusQueued, TrainedStatusRunning:
		return true
	}
	return false
}
