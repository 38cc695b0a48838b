package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
)

// seedTraining создаёт запись в статусе TRAINING с батчем и ресурсом обучения
// в заданном статусе. resourceStatus == "" означает пропавший ресурс.
func (f *engineFixture) seedTraining(tenantID, modelID, resourceStatus string) {
	batchID := modelID + "-batch"
	blobUUID := modelID + "-blob"
	trainedID := "tm-" + modelID

	f.blobs.put(model.Blob{UUID: blobUUID})
	f.batches.put(&model.FileBatch{
		ID:       batchID,
		TenantID: tenantID,
		Files: []model.BatchFile{
			{FileName: "corpus.tmx", UUID: blobUUID, TrainingFileOption: "training"},
		},
	})
	if resourceStatus != "" {
		f.training.put(model.TrainedModelResource{
			ModelID: trainedID,
			Owner:   tenantID,
			Name:    "model-" + modelID,
			Status:  resourceStatus,
		})
	}
	now := time.Now().UTC()
	f.models.put(&model.ModelRecord{
		ID:             modelID,
		TenantID:       tenantID,
		Name:           "model-" + modelID,
		Status:         model.StatusTraining,
		TrainedModelID: trainedID,
		FileBatchID:    batchID,
		StatusDate:     now,
		CreationDate:   &now,
	})
}

// TestTrainPollCompleted — обучение завершилось, запись переходит в TRAINED.
func TestTrainPollCompleted(t *testing.T) {
	f := newEngineFixture()
	f.seedTraining("acme", "m-1", model.TrainedStatusAvailable)

	poll := NewTrainPollService(f.models, f.batches, f.training, time.Minute, testLogger())
	poll.RunOnce(context.Background())

	rec, err := f.models.GetByID(context.Background(), "acme", "m-1")
	if err != nil {
		t.Fatalf("чтение записи: %v", err)
	}
	if rec.Status != model.StatusTrained {
		t.Fatalf("статус %q, ожидался %q", rec.Status, model.StatusTrained)
	}
}

// TestTrainPollInProgress — обучение ещё идёт, запись не трогаем.
func TestTrainPollInProgress(t *testing.T) {
	f := newEngineFixture()
	f.seedTraining("acme", "m-1", model.TrainedStatusRunning)

	poll := NewTrainPollService(f.models, f.batches, f.training, time.Minute, testLogger())

	before := f.models.writes
	poll.RunOnce(context.Background())

	rec, _ := f.models.GetByID(context.Background(), "acme", "m-1")
	if rec.Status != model.StatusTraining {
		t.Fatalf("статус %q, ожидался %q", rec.Status, model.StatusTraining)
	}
	if f.models.writes != before {
		t.Fatal("запись обновлена, хотя обучение ещё идёт")
	}
}

// TestTrainPollFailed — обучение провалилось, запись переходит в WARNING.
func TestTrainPollFailed(t *testing.T) {
	f := newEngineFixture()
	f.seedTraining("acme", "m-1", model.TrainedStatusFailed)

	poll := NewTrainPollService(f.models, f.batches, f.training, time.Minute, testLogger())
	poll.RunOnce(context.Background())

	rec, _ := f.models.GetByID(context.Background(), "acme", "m-1")
	if rec.Status != model.StatusWarning {
		t.Fatalf("статус %q, ожидался %q", rec.Status, model.StatusWarning)
	}
}

// TestTrainPollResourceGone — ресурс пропал из training-сервиса,
// запись переходит в WARNING.
func TestTrainPollResourceGone(t *testing.T) {
	f := newEngineFixture()
	f.seedTraining("acme", "m-1", "")

	poll := NewTrainPollService(f.models, f.batches, f.training, time.Minute, testLogger())
	poll.RunOnce(context.Background())

	rec, _ := f.models.GetByID(context.Background(), "acme", "m-1")
	if rec.Status != model.StatusWarning {
		t.Fatalf("статус %q, ожидался %q", rec.Status, model.StatusWarning)
	}
}

// TestTrainPollIgnoresOtherStatuses — записи вне статуса TRAINING
// не сверяются вовсе.
func TestTrainPollIgnoresOtherStatuses(t *testing.T) {
	f := newEngineFixture()
	f.seedReconciled("acme", "m-1")

	poll := NewTrainPollService(f.models, f.batches, f.training, time.Minute, testLogger())

	before := f.totalWrites()
	poll.RunOnce(context.Background())
	if f.totalWrites() != before {
		t.Fatal("опрос выполнил записи для записей вне статуса TRAINING")
	}
}
