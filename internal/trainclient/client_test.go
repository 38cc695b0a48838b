package trainclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenants/tenant-a/models" {
			t.Errorf("путь запроса = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[
			{"model_id":"tm-1","source":"en","target":"de","status":"available","owner":"tenant-a","name":"en-de-legal"},
			{"model_id":"tm-2","source":"en","target":"fr","status":"running","owner":"tenant-a","name":"en-fr-auto"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil, testLogger())

	models, err := c.ListModels(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("ListModels() ошибка: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("ListModels() вернул %d ресурсов, хотели 2", len(models))
	}
	if models[0].ModelID != "tm-1" || models[0].Status != "available" {
		t.Errorf("models[0] = %+v", models[0])
	}
	if !models[1].InProgress() {
		t.Error("ресурс running должен считаться в процессе обучения")
	}
}

func TestGetModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil, testLogger())

	if _, err := c.GetModel(context.Background(), "tenant-a", "gone"); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("GetModel() при 404: ожидали ErrResourceNotFound, получили %v", err)
	}
}

func TestDeleteModelIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("метод = %q, хотели DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil, testLogger())

	// 404 при удалении — не ошибка
	if err := c.DeleteModel(context.Background(), "tenant-a", "gone"); err != nil {
		t.Fatalf("DeleteModel() ошибка: %v", err)
	}
}

func TestRequestTraining(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("метод = %q, хотели POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req TrainingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("декодирование тела: %v", err)
		}
		if req.Name != "en-de-legal" || req.BatchID != "batch-1" {
			t.Errorf("запрос = %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"model_id":"tm-new","source":"en","target":"de","status":"submitted","owner":"tenant-a","name":"en-de-legal"}`))
	}))
	defer srv.Close()

	provider := func(ctx context.Context) (string, error) { return "test-token", nil }
	c := New(srv.URL, 5*time.Second, provider, testLogger())

	res, err := c.RequestTraining(context.Background(), "tenant-a", &TrainingRequest{
		Name:    "en-de-legal",
		Source:  "en",
		Target:  "de",
		BatchID: "batch-1",
	})
	if err != nil {
		t.Fatalf("RequestTraining() ошибка: %v", err)
	}
	if res.ModelID != "tm-new" || res.Status != "submitted" {
		t.Errorf("результат = %+v", res)
	}
}
