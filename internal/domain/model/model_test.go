package model

import "testing"

// TestDeriveStatus — таблица вывода статуса по инварианту статусов:
// все комбинации ссылки на ресурс обучения, количества файлов и статуса ресурса.
func TestDeriveStatus(t *testing.T) {
	resource := func(status string) *TrainedModelResource {
		return &TrainedModelResource{ModelID: "tm-1", Status: status}
	}

	tests := []struct {
		name           string
		trainedModelID string
		fileCount      int
		resource       *TrainedModelResource
		expected       string
	}{
		{
			name:           "UNTRAINED без файлов",
			trainedModelID: Untrained,
			fileCount:      0,
			expected:       StatusCreated,
		},
		{
			name:           "UNTRAINED с файлами",
			trainedModelID: Untrained,
			fileCount:      2,
			expected:       StatusFilesLoaded,
		},
		{
			name:           "пустая ссылка трактуется как UNTRAINED",
			trainedModelID: "",
			fileCount:      0,
			expected:       StatusCreated,
		},
		{
			name:           "пустая ссылка с файлами",
			trainedModelID: "",
			fileCount:      1,
			expected:       StatusFilesLoaded,
		},
		{
			name:           "ресурс отсутствует",
			trainedModelID: "tm-1",
			fileCount:      2,
			resource:       nil,
			expected:       StatusWarning,
		},
		{
			name:           "ресурс submitted",
			trainedModelID: "tm-1",
			fileCount:      2,
			resource:       resource(TrainedStatusSubmitted),
			expected:       StatusTraining,
		},
		{
			name:           "ресурс queued",
			trainedModelID: "tm-1",
			fileCount:      2,
			resource:       resource(TrainedStatusQueued),
			expected:       StatusTraining,
		},
		{
			name:           "ресурс running",
			trainedModelID: "tm-1",
			fileCount:      2,
			resource:       resource(TrainedStatusRunning),
			expected:       StatusTraining,
		},
		{
			name:           "ресурс available",
			trainedModelID: "tm-1",
			fileCount:      2,
			resource:       resource(TrainedStatusAvailable),
			expected:       StatusTrained,
		},
		{
			name:           "ресурс available без файлов",
			trainedModelID: "tm-1",
			fileCount:      0,
			resource:       resource(TrainedStatusAvailable),
			expected:       StatusTrained,
		},
		{
			name:           "ресурс failed",
			trainedModelID: "tm-1",
			fileCount:      2,
			resource:       resource(TrainedStatusFailed),
			expected:       StatusWarning,
		},
		{
			name:           "неизвестный статус ресурса",
			trainedModelID: "tm-1",
			fileCount:      2,
			resource:       resource("deleted"),
			expected:       StatusWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStatus(tt.trainedModelID, tt.fileCount, tt.resource)
			if got != tt.expected {
				t.Errorf("DeriveStatus(%q, %d, %+v) = %q, ожидалось %q",
					tt.trainedModelID, tt.fileCount, tt.resource, got, tt.expected)
			}
		})
	}
}
