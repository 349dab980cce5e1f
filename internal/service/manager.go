package service

import (
	"context"
	"time"

	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/service/history"
	"detectserver/internal/service/websocket"
)

// ImageDetector is the detection adapter the Manager drives.
type ImageDetector interface {
	Process(ctx context.Context, imageBytes []byte, confidence float64) (*model.DetectionResult, error)
	Annotate(imageBytes []byte, detections []model.Detection) ([]byte, error)
	Models() int
}

// Manager runs detections and fans finished results out to history and live viewers.
type Manager struct {
	detector ImageDetector
	recorder *history.Recorder
	hub      *websocket.HubService
	logger   *logger.Logger
	now      func() time.Time
}

// NewManager wires the detector with the optional recorder and hub; either may be nil.
func NewManager(detector ImageDetector, recorder *history.Recorder, hub *websocket.HubService, logger *logger.Logger) *Manager {
	return &Manager{
		detector: detector,
		recorder: recorder,
		hub:      hub,
		logger:   logger,
		now:      time.Now,
	}
}

// Detect runs one image through the detector synchronously.
func (m *Manager) Detect(ctx context.Context, req model.DetectionRequest) (*model.DetectionResult, error) {
	start := m.now()

	result, err := m.detector.Process(ctx, req.ImageData, req.Confidence)
	if err != nil {
		return nil, err
	}

	finished := m.now()
	rec := model.NewRecord(req, result, finished.Sub(start), finished)
	m.logger.Info("Detected %d object(s) in %q (%dx%d, conf %.2f) in %dms",
		rec.Count, req.Filename, rec.Width, rec.Height, req.Confidence, rec.DurationMS)

	if m.recorder != nil {
		m.recorder.Add(rec)
	}
	if m.hub != nil {
		m.hub.Publish(rec.Event())
	}

	return result, nil
}

// Annotate detects objects and returns the image re-encoded as JPEG with the boxes drawn.
func (m *Manager) Annotate(ctx context.Context, req model.DetectionRequest) ([]byte, error) {
	result, err := m.Detect(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.detector.Annotate(req.ImageData, result.Detections)
}

// Models returns the number of loaded model instances.
func (m *Manager) Models() int {
	return m.detector.Models()
}
