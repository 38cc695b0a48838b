package service

import (
	"sort"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

// classifyRule — одно правило классификации. Правила применяются в порядке
// объявления, выигрывает первое совпавшее: запись получает не более одной
// аномалии за проход.
type classifyRule struct {
	name  string
	match func(rec *model.ModelRecord, x *CrossReference, winners map[string]*model.ModelRecord) (model.ReconcileProblem, bool)
}

// classifyRules — упорядоченный список правил. Порядок — часть контракта:
// каждый repair-проход переоценивает записи с нуля, поэтому за один проход
// у записи ровно одна аномалия.
var classifyRules = []classifyRule{
	{
		// Запись помечена на удаление
		name: "delete",
		match: func(rec *model.ModelRecord, _ *CrossReference, _ map[string]*model.ModelRecord) (model.ReconcileProblem, bool) {
			if rec.MarkedForDeletion {
				return model.ProblemDelete, true
			}
			return "", false
		},
	},
	{
		// Клонированная модель так и не получила батч
		name: "cloned_without_batch",
		match: func(rec *model.ModelRecord, _ *CrossReference, _ map[string]*model.ModelRecord) (model.ReconcileProblem, bool) {
			if rec.FileBatchID == "" && rec.ClonedFrom != "" {
				return model.ProblemMissingBatch, true
			}
			return "", false
		},
	},
	{
		// Батч назначен, но в batch store отсутствует
		name: "batch_unresolved",
		match: func(rec *model.ModelRecord, x *CrossReference, _ map[string]*model.ModelRecord) (model.ReconcileProblem, bool) {
			if rec.FileBatchID != "" && x.BatchesByID[rec.FileBatchID] == nil {
				return model.ProblemMissingBatch, true
			}
			return "", false
		},
	},
	{
		// Батч разрешается, но владение выиграла другая (более новая) запись
		name: "batch_used_elsewhere",
		match: func(rec *model.ModelRecord, x *CrossReference, winners map[string]*model.ModelRecord) (model.ReconcileProblem, bool) {
			if rec.FileBatchID == "" || x.BatchesByID[rec.FileBatchID] == nil {
				return "", false
			}
			if w := winners[rec.FileBatchID]; w != nil && w.ID != rec.ID {
				return model.ProblemBatchUsedElsewhere, true
			}
			return "", false
		},
	},
	{
		// trained_model_id не разрешается в ресурс training-сервиса
		name: "trained_unresolved",
		match: func(rec *model.ModelRecord, x *CrossReference, _ map[string]*model.ModelRecord) (model.ReconcileProblem, bool) {
			if rec.TrainedModelID != "" && rec.TrainedModelID != model.Untrained &&
				x.TrainedByID[rec.TrainedModelID] == nil {
				return model.ProblemMissingTrainedModel, true
			}
			return "", false
		},
	},
	{
		// Статус не совпадает с выводимым по инварианту статусов
		name: "incorrect_status",
		match: func(rec *model.ModelRecord, x *CrossReference, _ map[string]*model.ModelRecord) (model.ReconcileProblem, bool) {
			derived := model.DeriveStatus(rec.TrainedModelID, x.FileCount(rec), x.TrainedResource(rec))
			if rec.Status != derived {
				return model.ProblemIncorrectStatus, true
			}
			return "", false
		},
	},
	{
		// Батч ссылается на blob, отсутствующие в хранилище
		name: "missing_files",
		match: func(rec *model.ModelRecord, x *CrossReference, _ map[string]*model.ModelRecord) (model.ReconcileProblem, bool) {
			if len(x.MissingFiles(rec)) > 0 {
				return model.ProblemMissingFile, true
			}
			return "", false
		},
	},
}

// batchWinners выбирает для каждого батча с несколькими претендентами
// запись-владельца: самая «молодая» запись выигрывает (CreationDate →
// StatusDate → ID, единая цепочка сравнения model.Newer).
func batchWinners(x *CrossReference) map[string]*model.ModelRecord {
	winners := make(map[string]*model.ModelRecord)
	for batchID, claimants := range x.ModelsByBatchID {
		if len(claimants) < 2 {
			continue
		}
		winner := claimants[0]
		for _, rec := range claimants[1:] {
			if model.Newer(rec, winner) {
				winner = rec
			}
		}
		winners[batchID] = winner
	}
	return winners
}

// Classify применяет правила ко всем записям тенанта и собирает сирот.
// Хранилища не мутирует: результат — входные данные для repair dispatcher
// и ответ GET /reconcile/{tenantId}/status.
func Classify(x *CrossReference) *model.TenantReport {
	report := &model.TenantReport{
		TenantID:   x.TenantID,
		Reconciled: []model.ModelView{},
	}
	winners := batchWinners(x)

	for _, rec := range x.Models {
		view := buildView(rec, x)
		classified := false
		for _, rule := range classifyRules {
			if problem, ok := rule.match(rec, x, winners); ok {
				view.ReconcileProblem = problem
				if problem == model.ProblemMissingFile {
					view.FilesMissing = x.MissingFiles(rec)
				}
				report.Unreconciled.CustomModels = append(report.Unreconciled.CustomModels, view)
				classified = true
				break
			}
		}
		if !classified {
			report.Reconciled = append(report.Reconciled, view)
		}
	}

	// Сироты, независимые от записей моделей
	for batchID := range x.BatchesByID {
		if len(x.ModelsByBatchID[batchID]) == 0 {
			report.Unreconciled.Batches = append(report.Unreconciled.Batches, batchID)
		}
	}
	for uuid := range x.BlobsByUUID {
		if x.BlobUse[uuid] == 0 {
			report.Unreconciled.Files = append(report.Unreconciled.Files, uuid)
		}
	}
	for id, res := range x.TrainedByID {
		if len(x.ModelsByTrainedID[id]) == 0 {
			report.Unreconciled.TrainedModels = append(report.Unreconciled.TrainedModels, *res)
		}
	}

	// Детерминированный порядок сирот в ответе
	sort.Strings(report.Unreconciled.Batches)
	sort.Strings(report.Unreconciled.Files)
	sort.Slice(report.Unreconciled.TrainedModels, func(i, j int) bool {
		return report.Unreconciled.TrainedModels[i].ModelID < report.Unreconciled.TrainedModels[j].ModelID
	})

	return report
}

// buildView собирает представление записи: сама запись плюс разрешённые
// детали батча (файлы, соединённые с метаданными blob) и ресурса обучения.
func buildView(rec *model.ModelRecord, x *CrossReference) model.ModelView {
	view := model.ModelView{
		ID:             rec.ID,
		TenantID:       rec.TenantID,
		Name:           rec.Name,
		Project:        rec.Project,
		Status:         rec.Status,
		TrainedModelID: rec.TrainedModelID,
		FileBatchID:    rec.FileBatchID,
		StatusDate:     rec.StatusDate,
		CreationDate:   rec.CreationDate,
		ClonedFrom:     rec.ClonedFrom,
	}

	if batch := x.BatchOwned(rec); batch != nil {
		for _, f := range batch.Files {
			detail := model.FileDetail{BatchFile: f}
			if blob, ok := x.BlobsByUUID[f.UUID]; ok {
				detail.Hash = blob.Hash
				detail.Size = blob.Size
				detail.ContentType = blob.ContentType
			}
			view.FileBatchDetails = append(view.FileBatchDetails, detail)
		}
	}
	if res := x.TrainedResource(rec); res != nil {
		view.TrainedModelDetails = res
	}

	return view
}
