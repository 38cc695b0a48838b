package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

const tenant = "tenant-a"

func buildReport(t *testing.T, f *engineFixture) *model.TenantReport {
	t.Helper()
	x, err := f.builder.Build(context.Background(), tenant)
	if err != nil {
		t.Fatalf("Build() ошибка: %v", err)
	}
	return Classify(x)
}

func soleProblem(t *testing.T, report *model.TenantReport, modelID string) model.ReconcileProblem {
	t.Helper()
	for _, view := range report.Unreconciled.CustomModels {
		if view.ID == modelID {
			return view.ReconcileProblem
		}
	}
	t.Fatalf("модель %s не попала в unreconciled", modelID)
	return ""
}

func TestClassifyReconciled(t *testing.T) {
	f := newEngineFixture()
	f.seedReconciled(tenant, "m1")

	report := buildReport(t, f)
	if len(report.Reconciled) != 1 {
		t.Fatalf("reconciled = %d, хотели 1", len(report.Reconciled))
	}
	if len(report.Unreconciled.CustomModels) != 0 {
		t.Errorf("unreconciled = %+v, хотели пусто", report.Unreconciled.CustomModels)
	}
	view := report.Reconciled[0]
	if len(view.FileBatchDetails) != 1 {
		t.Fatalf("file_batch_details = %d, хотели 1", len(view.FileBatchDetails))
	}
	// Детали файла соединены с метаданными blob
	if view.FileBatchDetails[0].Hash != "sha256:aa" || view.FileBatchDetails[0].Size != 10 {
		t.Errorf("детали файла = %+v", view.FileBatchDetails[0])
	}
}

func TestClassifyDeletePrecedesEverything(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	// Запись одновременно помечена на удаление и имеет неразрешимый батч:
	// выиграть должно правило удаления
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "n", Status: model.StatusCreated,
		TrainedModelID: model.Untrained, FileBatchID: "missing-batch",
		StatusDate: now, MarkedForDeletion: true,
	})

	report := buildReport(t, f)
	if got := soleProblem(t, report, "m1"); got != model.ProblemDelete {
		t.Errorf("problem = %q, хотели %q", got, model.ProblemDelete)
	}
}

func TestClassifyMissingBatch(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	// Назначенный батч отсутствует в batch store
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "n1", Status: model.StatusCreated,
		TrainedModelID: model.Untrained, FileBatchID: "gone",
		StatusDate: now,
	})
	// Клон без батча
	f.models.put(&model.ModelRecord{
		ID: "m2", TenantID: tenant, Name: "n2", Status: model.StatusCreated,
		TrainedModelID: model.Untrained, ClonedFrom: "m1",
		StatusDate: now,
	})

	report := buildReport(t, f)
	if got := soleProblem(t, report, "m1"); got != model.ProblemMissingBatch {
		t.Errorf("m1: problem = %q, хотели %q", got, model.ProblemMissingBatch)
	}
	if got := soleProblem(t, report, "m2"); got != model.ProblemMissingBatch {
		t.Errorf("m2: problem = %q, хотели %q", got, model.ProblemMissingBatch)
	}
}

func TestClassifyBatchUsedElsewhere(t *testing.T) {
	f := newEngineFixture()
	f.batches.put(&model.FileBatch{ID: "shared", TenantID: tenant})

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.models.put(&model.ModelRecord{
		ID: "m-old", TenantID: tenant, Name: "old", Status: model.StatusCreated,
		TrainedModelID: model.Untrained, FileBatchID: "shared",
		StatusDate: older, CreationDate: timePtr(older),
	})
	f.models.put(&model.ModelRecord{
		ID: "m-new", TenantID: tenant, Name: "new", Status: model.StatusCreated,
		TrainedModelID: model.Untrained, FileBatchID: "shared",
		StatusDate: newer, CreationDate: timePtr(newer),
	})

	report := buildReport(t, f)
	// Самая молодая запись оставляет батч за собой, старая проигрывает
	if got := soleProblem(t, report, "m-old"); got != model.ProblemBatchUsedElsewhere {
		t.Errorf("m-old: problem = %q, хотели %q", got, model.ProblemBatchUsedElsewhere)
	}
	for _, view := range report.Unreconciled.CustomModels {
		if view.ID == "m-new" {
			t.Errorf("m-new не должна быть аномальной, получила %q", view.ReconcileProblem)
		}
	}
}

func TestClassifyWinnerFallbackToStatusDate(t *testing.T) {
	f := newEngineFixture()
	f.batches.put(&model.FileBatch{ID: "shared", TenantID: tenant})

	// CreationDate отсутствует у обеих — сравнение по StatusDate
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.models.put(&model.ModelRecord{
		ID: "m-a", TenantID: tenant, Name: "a", Status: model.StatusCreated,
		TrainedModelID: model.Untrained, FileBatchID: "shared", StatusDate: older,
	})
	f.models.put(&model.ModelRecord{
		ID: "m-b", TenantID: tenant, Name: "b", Status: model.StatusCreated,
		TrainedModelID: model.Untrained, FileBatchID: "shared", StatusDate: newer,
	})

	report := buildReport(t, f)
	if got := soleProblem(t, report, "m-a"); got != model.ProblemBatchUsedElsewhere {
		t.Errorf("m-a: problem = %q, хотели %q", got, model.ProblemBatchUsedElsewhere)
	}
}

func TestClassifyMissingTrainedModel(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	f.batches.put(&model.FileBatch{ID: "b1", TenantID: tenant})
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "n", Status: model.StatusTrained,
		TrainedModelID: "tm-gone", FileBatchID: "b1", StatusDate: now,
	})

	report := buildReport(t, f)
	if got := soleProblem(t, report, "m1"); got != model.ProblemMissingTrainedModel {
		t.Errorf("problem = %q, хотели %q", got, model.ProblemMissingTrainedModel)
	}
}

func TestClassifyIncorrectStatus(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	// Пустой батч + UNTRAINED, но статус TRAINED
	f.batches.put(&model.FileBatch{ID: "b1", TenantID: tenant})
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "n", Status: model.StatusTrained,
		TrainedModelID: model.Untrained, FileBatchID: "b1", StatusDate: now,
	})

	report := buildReport(t, f)
	if got := soleProblem(t, report, "m1"); got != model.ProblemIncorrectStatus {
		t.Errorf("problem = %q, хотели %q", got, model.ProblemIncorrectStatus)
	}
}

func TestClassifyMissingFile(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	f.batches.put(&model.FileBatch{
		ID: "b1", TenantID: tenant,
		Files: []model.BatchFile{{FileName: "f.tmx", UUID: "U1", TrainingFileOption: "training"}},
	})
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "n", Status: model.StatusFilesLoaded,
		TrainedModelID: model.Untrained, FileBatchID: "b1", StatusDate: now,
	})

	report := buildReport(t, f)
	view := report.Unreconciled.CustomModels[0]
	if view.ReconcileProblem != model.ProblemMissingFile {
		t.Fatalf("problem = %q, хотели %q", view.ReconcileProblem, model.ProblemMissingFile)
	}
	if len(view.FilesMissing) != 1 || view.FilesMissing[0] != "U1" {
		t.Errorf("files_missing = %v, хотели [U1]", view.FilesMissing)
	}
	// Детали батча сохраняются и для unreconciled-записи
	if len(view.FileBatchDetails) != 1 {
		t.Errorf("file_batch_details = %d, хотели 1", len(view.FileBatchDetails))
	}
}

func TestClassifyOrphans(t *testing.T) {
	f := newEngineFixture()
	f.seedReconciled(tenant, "m1")
	f.batches.put(&model.FileBatch{ID: "orphan-batch", TenantID: tenant})
	f.blobs.put(model.Blob{UUID: "orphan-blob"})
	f.training.put(model.TrainedModelResource{
		ModelID: "tm-orphan", Source: "en", Target: "de",
		Status: model.TrainedStatusAvailable, Owner: tenant, Name: "en-de",
	})

	report := buildReport(t, f)
	if len(report.Unreconciled.Batches) != 1 || report.Unreconciled.Batches[0] != "orphan-batch" {
		t.Errorf("batches = %v", report.Unreconciled.Batches)
	}
	if len(report.Unreconciled.Files) != 1 || report.Unreconciled.Files[0] != "orphan-blob" {
		t.Errorf("files = %v", report.Unreconciled.Files)
	}
	if len(report.Unreconciled.TrainedModels) != 1 || report.Unreconciled.TrainedModels[0].ModelID != "tm-orphan" {
		t.Errorf("trained_models = %+v", report.Unreconciled.TrainedModels)
	}
}

func TestBuildFailsWhenStoreDown(t *testing.T) {
	f := newEngineFixture()
	f.seedReconciled(tenant, "m1")
	f.blobs.listErr = errStoreDown

	_, err := f.builder.Build(context.Background(), tenant)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Build() при лежащем хранилище: ожидали ErrUpstreamUnavailable, получили %v", err)
	}
}
