package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/service/history"
	"detectserver/internal/service/websocket"
)

type fakeDetector struct {
	result      *model.DetectionResult
	err         error
	annotated   []byte
	gotConf     float64
	annotateFor []model.Detection
}

func (f *fakeDetector) Process(ctx context.Context, imageBytes []byte, confidence float64) (*model.DetectionResult, error) {
	f.gotConf = confidence
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeDetector) Annotate(imageBytes []byte, detections []model.Detection) ([]byte, error) {
	f.annotateFor = detections
	return f.annotated, nil
}

func (f *fakeDetector) Models() int { return 3 }

type memoryRepository struct {
	records []model.Record
}

func (m *memoryRepository) Insert(rec *model.Record) (int64, error) {
	m.records = append(m.records, *rec)
	return int64(len(m.records)), nil
}

func (m *memoryRepository) InsertBatch(records []model.Record) error {
	m.records = append(m.records, records...)
	return nil
}

func (m *memoryRepository) GetByID(id int64) (*model.Record, error) { return nil, nil }

func (m *memoryRepository) GetRecent(filter *model.RecordFilter) ([]model.Record, error) {
	return m.records, nil
}

func (m *memoryRepository) GetTotalCount(filter *model.RecordFilter) (int, error) {
	return len(m.records), nil
}

func (m *memoryRepository) GetLabelCounts() (map[string]int, error) { return nil, nil }

func (m *memoryRepository) DeleteAll() error { return nil }

func sampleResult() *model.DetectionResult {
	return &model.DetectionResult{
		Detections: []model.Detection{
			{BBox: [4]float64{1, 2, 30, 40}, Confidence: 0.8, Label: "cat", ClassID: 15},
		},
		ImageSize: model.ImageSize{Width: 640, Height: 480},
	}
}

func TestManager_DetectRecordsHistory(t *testing.T) {
	detector := &fakeDetector{result: sampleResult()}
	repo := &memoryRepository{}
	recorder := history.NewRecorder(repo, logger.NewDiscard(), 10, time.Hour)
	manager := NewManager(detector, recorder, websocket.NewHubService(logger.NewDiscard()), logger.NewDiscard())

	step := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	manager.now = func() time.Time {
		step = step.Add(25 * time.Millisecond)
		return step
	}

	result, err := manager.Detect(context.Background(), model.DetectionRequest{
		Filename:   "cat.jpg",
		ImageData:  []byte{1, 2, 3},
		Confidence: 0.4,
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(result.Detections) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(result.Detections))
	}
	if detector.gotConf != 0.4 {
		t.Errorf("Expected confidence 0.4 forwarded, got %v", detector.gotConf)
	}

	recorder.Flush()
	if len(repo.records) != 1 {
		t.Fatalf("Expected 1 stored record, got %d", len(repo.records))
	}
	rec := repo.records[0]
	if rec.Filename != "cat.jpg" || rec.Count != 1 || rec.Width != 640 || rec.Confidence != 0.4 {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if rec.DurationMS != 25 {
		t.Errorf("Expected 25ms duration, got %d", rec.DurationMS)
	}
}

func TestManager_DetectErrorSkipsHistory(t *testing.T) {
	detector := &fakeDetector{err: errors.New("Could not decode image")}
	repo := &memoryRepository{}
	recorder := history.NewRecorder(repo, logger.NewDiscard(), 10, time.Hour)
	manager := NewManager(detector, recorder, nil, logger.NewDiscard())

	if _, err := manager.Detect(context.Background(), model.DetectionRequest{}); err == nil {
		t.Fatal("Expected error")
	}
	if recorder.Pending() != 0 {
		t.Errorf("Failed detections must not be recorded, got %d pending", recorder.Pending())
	}
}

func TestManager_WithoutRecorderOrHub(t *testing.T) {
	manager := NewManager(&fakeDetector{result: sampleResult()}, nil, nil, logger.NewDiscard())

	if _, err := manager.Detect(context.Background(), model.DetectionRequest{Confidence: 0.25}); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if manager.Models() != 3 {
		t.Errorf("Expected 3 models, got %d", manager.Models())
	}
}

func TestManager_Annotate(t *testing.T) {
	detector := &fakeDetector{result: sampleResult(), annotated: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
	manager := NewManager(detector, nil, nil, logger.NewDiscard())

	out, err := manager.Annotate(context.Background(), model.DetectionRequest{ImageData: []byte{1}})
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if len(out) != 4 {
		t.Errorf("Expected annotated bytes, got %v", out)
	}
	if len(detector.annotateFor) != 1 || detector.annotateFor[0].Label != "cat" {
		t.Errorf("Annotate should draw detected boxes, got %+v", detector.annotateFor)
	}
}
