// Пакет service — бизнес-логика Model Module: reconciliation engine
// (cross-reference builder, классификатор аномалий, repair dispatcher,
// single-model reconciler), CRUD моделей и фоновые сервисы.
package service

import "errors"

// Ошибки сервисного слоя.
var (
	// ErrUpstreamUnavailable — одно из четырёх хранилищ недоступно или вернуло
	// некорректные данные. Фатальна для текущего прохода, наружу — 500.
	ErrUpstreamUnavailable = errors.New("хранилище недоступно")
	// ErrModelNotFound — запись модели не найдена.
	ErrModelNotFound = errors.New("модель не найдена")
	// ErrBatchNotFound — батч не найден.
	ErrBatchNotFound = errors.New("батч не найден")
	// ErrNameTaken — имя модели уже используется в тенанте.
	ErrNameTaken = errors.New("имя модели уже используется")
	// ErrInvalidInput — некорректные входные данные запроса.
	ErrInvalidInput = errors.New("некорректные входные данные")
)
