package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"detectserver/internal/logger"
	"detectserver/internal/model"

	"gocv.io/x/gocv"
)

// ErrDecode is returned when the uploaded bytes are not a decodable image.
var ErrDecode = errors.New("Could not decode image")

var palette = []color.RGBA{
	{R: 230, G: 57, B: 70, A: 0},
	{R: 42, G: 157, B: 143, A: 0},
	{R: 233, G: 196, B: 106, A: 0},
	{R: 69, G: 123, B: 157, A: 0},
	{R: 244, G: 162, B: 97, A: 0},
	{R: 131, G: 56, B: 236, A: 0},
}

// DetectorService decodes images and runs them through pooled models.
type DetectorService struct {
	pool   *Pool
	logger *logger.Logger
}

// NewDetectorService creates a detector backed by pool.
func NewDetectorService(pool *Pool, logger *logger.Logger) *DetectorService {
	return &DetectorService{pool: pool, logger: logger}
}

// Process decodes imageBytes, runs one model over it and returns every
// detection scoring at least confidence plus the decoded image size.
func (s *DetectorService) Process(ctx context.Context, imageBytes []byte, confidence float64) (*model.DetectionResult, error) {
	mat, err := decode(imageBytes)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	m, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for model: %w", err)
	}
	defer s.pool.Release(m)

	predictions, err := m.Predict(mat, confidence)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	result := &model.DetectionResult{
		Detections: make([]model.Detection, 0, len(predictions)),
		ImageSize:  model.ImageSize{Width: mat.Cols(), Height: mat.Rows()},
	}
	for _, p := range predictions {
		if p.Confidence < confidence {
			continue
		}
		result.Detections = append(result.Detections, model.Detection{
			BBox:       p.Box,
			Confidence: p.Confidence,
			Label:      m.Label(p.ClassID),
			ClassID:    p.ClassID,
		})
	}

	return result, nil
}

// Models returns the number of loaded model instances.
func (s *DetectorService) Models() int {
	return s.pool.Size()
}

// Annotate draws detections on the image and returns a re-encoded JPEG buffer.
func (s *DetectorService) Annotate(imageBytes []byte, detections []model.Detection) ([]byte, error) {
	mat, err := decode(imageBytes)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	for _, det := range detections {
		col := palette[det.ClassID%len(palette)]
		rect := image.Rect(int(det.BBox[0]), int(det.BBox[1]), int(det.BBox[2]), int(det.BBox[3]))
		if err := gocv.Rectangle(&mat, rect, col, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s (%.2f)", det.Label, det.Confidence)
		pt := image.Pt(rect.Min.X, max(rect.Min.Y-5, 12))
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, col, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		s.logger.Error("Failed to encode image: %v", err)
		return nil, err
	}
	defer buf.Close()

	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// decode returns a BGR Mat owned by the caller, or ErrDecode.
func decode(imageBytes []byte) (gocv.Mat, error) {
	if len(imageBytes) == 0 {
		return gocv.Mat{}, ErrDecode
	}

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, ErrDecode
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, ErrDecode
	}
	return mat, nil
}
