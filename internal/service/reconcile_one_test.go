package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

func TestReconcileModelNotFound(t *testing.T) {
	f := newEngineFixture()
	f.seedReconciled(tenant, "m1")

	_, err := f.reconciler.ReconcileModel(context.Background(), tenant, "no-such-model")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("ожидали ErrModelNotFound, получили %v", err)
	}
}

func TestReconcileModelAlreadyReconciled(t *testing.T) {
	f := newEngineFixture()
	f.seedReconciled(tenant, "m1")

	res, err := f.reconciler.ReconcileModel(context.Background(), tenant, "m1")
	if err != nil {
		t.Fatalf("ReconcileModel() ошибка: %v", err)
	}
	if !res.OK || res.Deleted {
		t.Errorf("результат = %+v", res)
	}
	if res.Action != "none" {
		t.Errorf("action = %q, хотели none", res.Action)
	}
	if f.totalWrites() != 0 {
		t.Errorf("сверка согласованной модели сделала %d записей", f.totalWrites())
	}
	if res.Model == nil || len(res.Model.FileBatchDetails) != 1 {
		t.Errorf("model = %+v", res.Model)
	}
}

func TestReconcileModelDeleteBranch(t *testing.T) {
	f := newEngineFixture()
	f.seedReconciled(tenant, "m1")
	rec, _ := f.models.GetByID(context.Background(), tenant, "m1")
	rec.MarkedForDeletion = true
	rec.TrainedModelID = "tm-1"
	f.models.put(rec)
	f.training.put(model.TrainedModelResource{
		ModelID: "tm-1", Owner: tenant, Status: model.TrainedStatusAvailable, Name: "n",
	})

	res, err := f.reconciler.ReconcileModel(context.Background(), tenant, "m1")
	if err != nil {
		t.Fatalf("ReconcileModel() ошибка: %v", err)
	}
	if !res.OK || !res.Deleted {
		t.Errorf("результат = %+v, хотели ok+deleted", res)
	}
	if _, err := f.models.GetByID(context.Background(), tenant, "m1"); err == nil {
		t.Error("запись не удалена")
	}
	if _, ok := f.blobs.byUUID["m1-blob"]; ok {
		t.Error("blob не удалён")
	}
	if _, ok := f.training.byID["tm-1"]; ok {
		t.Error("ресурс обучения не удалён")
	}
}

func TestReconcileModelCreatesBatch(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "n", Status: model.StatusCreated,
		TrainedModelID: model.Untrained, FileBatchID: "gone", StatusDate: now,
	})

	res, err := f.reconciler.ReconcileModel(context.Background(), tenant, "m1")
	if err != nil {
		t.Fatalf("ReconcileModel() ошибка: %v", err)
	}
	if res.Action != "create_batch" {
		t.Errorf("action = %q", res.Action)
	}
	if _, err := f.batches.GetByID(context.Background(), tenant, "gone"); err != nil {
		t.Errorf("батч не создан: %v", err)
	}
	if res.Model.Status != model.StatusCreated {
		t.Errorf("status = %q", res.Model.Status)
	}
}

func TestReconcileModelUnlinksMissingTrained(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	f.batches.put(&model.FileBatch{ID: "b1", TenantID: tenant})
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "n", Status: model.StatusTrained,
		TrainedModelID: "tm-gone", FileBatchID: "b1", StatusDate: now,
	})

	res, err := f.reconciler.ReconcileModel(context.Background(), tenant, "m1")
	if err != nil {
		t.Fatalf("ReconcileModel() ошибка: %v", err)
	}
	if res.Action != "unlink_trained_model" {
		t.Errorf("action = %q", res.Action)
	}
	if res.Model.TrainedModelID != model.Untrained {
		t.Errorf("trained_model_id = %q", res.Model.TrainedModelID)
	}
	if res.Model.Status != model.StatusCreated {
		t.Errorf("status = %q", res.Model.Status)
	}
}

func TestReconcileModelLinksOrphanByName(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	f.batches.put(&model.FileBatch{ID: "b1", TenantID: tenant})
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "en-de-legal", Status: model.StatusTrained,
		TrainedModelID: "tm-gone", FileBatchID: "b1", StatusDate: now,
	})
	// Осиротевший ресурс с тем же именем — привязываем его вместо сброса
	f.training.put(model.TrainedModelResource{
		ModelID: "tm-real", Source: "en", Target: "de",
		Status: model.TrainedStatusAvailable, Owner: tenant, Name: "en-de-legal",
	})

	res, err := f.reconciler.ReconcileModel(context.Background(), tenant, "m1")
	if err != nil {
		t.Fatalf("ReconcileModel() ошибка: %v", err)
	}
	if res.Action != "link_trained_model" {
		t.Errorf("action = %q", res.Action)
	}
	if res.Model.TrainedModelID != "tm-real" {
		t.Errorf("trained_model_id = %q", res.Model.TrainedModelID)
	}
	if res.Model.Status != model.StatusTrained {
		t.Errorf("status = %q", res.Model.Status)
	}
}

func TestReconcileModelReassignsSharedBatch(t *testing.T) {
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

	// Сверка проигравшей записи переводит её на батч-копию
	res, err := f.reconciler.ReconcileModel(context.Background(), tenant, "m-old")
	if err != nil {
		t.Fatalf("ReconcileModel() ошибка: %v", err)
	}
	if res.Action != "reassign_batch" {
		t.Errorf("action = %q", res.Action)
	}
	if res.Model.FileBatchID == "shared" {
		t.Error("проигравшая запись осталась на спорном батче")
	}

	// Сверка победителя ничего не меняет
	res2, err := f.reconciler.ReconcileModel(context.Background(), tenant, "m-new")
	if err != nil {
		t.Fatalf("ReconcileModel() победителя ошибка: %v", err)
	}
	if res2.Action != "none" {
		t.Errorf("action победителя = %q", res2.Action)
	}
}

func TestReconcileModelDropsMissingFiles(t *testing.T) {
	f := newEngineFixture()
	now := time.Now().UTC()
	f.blobs.put(model.Blob{UUID: "present"})
	f.batches.put(&model.FileBatch{
		ID: "b1", TenantID: tenant,
		Files: []model.BatchFile{
			{FileName: "ok.tmx", UUID: "present", TrainingFileOption: "training"},
			{FileName: "lost.tmx", UUID: "U1", TrainingFileOption: "training"},
		},
	})
	f.models.put(&model.ModelRecord{
		ID: "m1", TenantID: tenant, Name: "n", Status: model.StatusFilesLoaded,
		TrainedModelID: model.Untrained, FileBatchID: "b1", StatusDate: now,
	})

	res, err := f.reconciler.ReconcileModel(context.Background(), tenant, "m1")
	if err != nil {
		t.Fatalf("ReconcileModel() ошибка: %v", err)
	}
	if res.Action != "drop_missing_files" {
		t.Errorf("action = %q", res.Action)
	}
	if len(res.Model.FileBatchDetails) != 1 {
		t.Errorf("file_batch_details = %+v", res.Model.FileBatchDetails)
	}
}
