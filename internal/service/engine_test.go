package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bigkaa/lingstore/model-module/internal/domain/model"
	"github.com/bigkaa/lingstore/model-module/internal/repository"
)

// In-memory фейки четырёх хранилищ для тестов engine. Повторяют семантику
// revision-токенов реальных репозиториев и считают записи — счётчик Writes
// используется тестами идемпотентности.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- fakeModelRepo ---

type fakeModelRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.ModelRecord
	writes int
	// listErr — имитация недоступного хранилища
	listErr error
}

func newFakeModelRepo() *fakeModelRepo {
	return &fakeModelRepo{byID: make(map[string]*model.ModelRecord)}
}

func (r *fakeModelRepo) put(rec *model.ModelRecord) {
	if rec.Revision == 0 {
		rec.Revision = 1
	}
	clone := *rec
	r.byID[rec.ID] = &clone
}

func (r *fakeModelRepo) Create(_ context.Context, rec *model.ModelRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[rec.ID]; ok {
		return repository.ErrConflict
	}
	r.writes++
	rec.Revision = 1
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	clone := *rec
	r.byID[rec.ID] = &clone
	return nil
}

func (r *fakeModelRepo) GetByID(_ context.Context, tenantID, id string) (*model.ModelRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok || rec.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *fakeModelRepo) ListByTenant(_ context.Context, tenantID string) ([]*model.ModelRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.ModelRecord
	for _, rec := range r.byID {
		if rec.TenantID == tenantID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeModelRepo) Update(_ context.Context, rec *model.ModelRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[rec.ID]
	if !ok || cur.TenantID != rec.TenantID {
		return repository.ErrNotFound
	}
	if cur.Revision != rec.Revision {
		return repository.ErrRevisionConflict
	}
	r.writes++
	rec.Revision++
	rec.UpdatedAt = time.Now().UTC()
	clone := *rec
	r.byID[rec.ID] = &clone
	return nil
}

func (r *fakeModelRepo) Delete(_ context.Context, tenantID, id string, revision int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok || cur.TenantID != tenantID {
		return repository.ErrNotFound
	}
	if cur.Revision != revision {
		return repository.ErrRevisionConflict
	}
	r.writes++
	delete(r.byID, id)
	return nil
}

func (r *fakeModelRepo) CountByName(_ context.Context, tenantID, name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, rec := range r.byID {
		if rec.TenantID == tenantID && rec.Name == name {
			count++
		}
	}
	return count, nil
}

func (r *fakeModelRepo) ListTenants(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, rec := range r.byID {
		if !seen[rec.TenantID] {
			seen[rec.TenantID] = true
			out = append(out, rec.TenantID)
		}
	}
	return out, nil
}

// --- fakeBatchRepo ---

type fakeBatchRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.FileBatch
	writes int
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{byID: make(map[string]*model.FileBatch)}
}

func (r *fakeBatchRepo) put(b *model.FileBatch) {
	if b.Revision == 0 {
		b.Revision = 1
	}
	clone := *b
	r.byID[b.ID] = &clone
}

func (r *fakeBatchRepo) Create(_ context.Context, b *model.FileBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[b.ID]; ok {
		return repository.ErrConflict
	}
	r.writes++
	b.Revision = 1
	clone := *b
	r.byID[b.ID] = &clone
	return nil
}

func (r *fakeBatchRepo) GetByID(_ context.Context, tenantID, id string) (*model.FileBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok || b.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (r *fakeBatchRepo) ListByTenant(_ context.Context, tenantID string) ([]*model.FileBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.FileBatch
	for _, b := range r.byID {
		if b.TenantID == tenantID {
			clone := *b
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) Update(_ context.Context, b *model.FileBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[b.ID]
	if !ok || cur.TenantID != b.TenantID {
		return repository.ErrNotFound
	}
	if cur.Revision != b.Revision {
		return repository.ErrRevisionConflict
	}
	r.writes++
	b.Revision++
	clone := *b
	r.byID[b.ID] = &clone
	return nil
}

func (r *fakeBatchRepo) Delete(_ context.Context, tenantID, id string, revision int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok || cur.TenantID != tenantID {
		return repository.ErrNotFound
	}
	if cur.Revision != revision {
		return repository.ErrRevisionConflict
	}
	r.writes++
	delete(r.byID, id)
	return nil
}

func (r *fakeBatchRepo) CountFileUse(_ context.Context, tenantID, uuid string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, b := range r.byID {
		if b.TenantID != tenantID {
			continue
		}
		for _, f := range b.Files {
			if f.UUID == uuid {
				count++
			}
		}
	}
	return count, nil
}

// --- fakeBlobStore ---

type fakeBlobStore struct {
	mu      sync.Mutex
	byUUID  map[string]model.Blob
	writes  int
	listErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{byUUID: make(map[string]model.Blob)}
}

func (s *fakeBlobStore) put(b model.Blob) {
	s.byUUID[b.UUID] = b
}

func (s *fakeBlobStore) List(_ context.Context, _ string) ([]model.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Blob
	for _, b := range s.byUUID {
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeBlobStore) Delete(_ context.Context, _, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.byUUID, uuid)
	return nil
}

// --- fakeTraining ---

type fakeTraining struct {
	mu     sync.Mutex
	byID   map[string]model.TrainedModelResource
	writes int
}

func newFakeTraining() *fakeTraining {
	return &fakeTraining{byID: make(map[string]model.TrainedModelResource)}
}

func (s *fakeTraining) put(res model.TrainedModelResource) {
	s.byID[res.ModelID] = res
}

func (s *fakeTraining) ListModels(_ context.Context, tenantID string) ([]model.TrainedModelResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TrainedModelResource
	for _, res := range s.byID {
		if res.Owner == tenantID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (s *fakeTraining) DeleteModel(_ context.Context, _, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.byID, modelID)
	return nil
}

// --- сборка engine поверх фейков ---

type engineFixture struct {
	models     *fakeModelRepo
	batches    *fakeBatchRepo
	blobs      *fakeBlobStore
	training   *fakeTraining
	builder    *CrossRefBuilder
	dispatcher *RepairDispatcher
	reconciler *Reconciler
}

func newEngineFixture() *engineFixture {
	logger := testLogger()
	f := &engineFixture{
		models:   newFakeModelRepo(),
		batches:  newFakeBatchRepo(),
		blobs:    newFakeBlobStore(),
		training: newFakeTraining(),
	}
	f.builder = NewCrossRefBuilder(f.models, f.batches, f.blobs, f.training, logger)
	f.dispatcher = NewRepairDispatcher(f.builder, f.models, f.batches, f.blobs, f.training, 4, logger)
	f.reconciler = NewReconciler(f.builder, f.dispatcher, f.models, f.batches, logger)
	return f
}

// totalWrites — суммарное количество записей во все хранилища.
func (f *engineFixture) totalWrites() int {
	return f.models.writes + f.batches.writes + f.blobs.writes + f.training.writes
}

// seedReconciled создаёт полностью согласованную модель тенанта:
// запись + батч с одним файлом + blob.
func (f *engineFixture) seedReconciled(tenantID, modelID string) {
	blobUUID := modelID + "-blob"
	batchID := modelID + "-batch"
	f.blobs.put(model.Blob{UUID: blobUUID, Hash: "sha256:aa", Size: 10})
	f.batches.put(&model.FileBatch{
		ID:       batchID,
		TenantID: tenantID,
		Files: []model.BatchFile{
			{FileName: "corpus.tmx", UUID: blobUUID, TrainingFileOption: "training"},
		},
	})
	now := time.Now().UTC()
	f.models.put(&model.ModelRecord{
		ID:             modelID,
		TenantID:       tenantID,
		Name:           "model-" + modelID,
		Status:         model.StatusFilesLoaded,
		TrainedModelID: model.Untrained,
		FileBatchID:    batchID,
		StatusDate:     now,
		CreationDate:   &now,
	})
}

func timePtr(t time.Time) *time.Time { return &t }

var errStoreDown = fmt.Errorf("хранилище лежит")
