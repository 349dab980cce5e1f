package ai

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const ssdRowSize = 7

// SSDModel runs an SSD MobileNet TensorFlow graph (frozen_inference_graph.pb + pbtxt).
type SSDModel struct {
	net    gocv.Net
	labels []string
}

// NewSSDModel loads the graph from modelPath and its text config.
func NewSSDModel(modelPath, configPath string, labels []string) (*SSDModel, error) {
	net, err := readNet(modelPath, configPath)
	if err != nil {
		return nil, err
	}
	return &SSDModel{net: net, labels: labels}, nil
}

// Predict runs the network with the parameters the SSD COCO graphs expect.
func (m *SSDModel) Predict(img gocv.Mat, confidence float64) ([]Prediction, error) {
	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}

	return decodeSSDOutput(data, confidence, img.Cols(), img.Rows()), nil
}

// decodeSSDOutput maps detection rows of [batch_id, class_id, confidence,
// x1, y1, x2, y2] with normalised coordinates to pixel boxes clamped to the
// image. Rows below threshold and boxes that collapse are dropped.
func decodeSSDOutput(data []float32, threshold float64, width, height int) []Prediction {
	w := float64(width)
	h := float64(height)

	predictions := []Prediction{}
	for i := 0; i+ssdRowSize <= len(data); i += ssdRowSize {
		row := data[i : i+ssdRowSize]

		score := float64(row[2])
		if score < threshold {
			continue
		}

		p := Prediction{
			Box: [4]float64{
				clamp(float64(row[3])*w, 0, w),
				clamp(float64(row[4])*h, 0, h),
				clamp(float64(row[5])*w, 0, w),
				clamp(float64(row[6])*h, 0, h),
			},
			Confidence: score,
			ClassID:    int(row[1]),
		}
		if p.Box[0] >= p.Box[2] || p.Box[1] >= p.Box[3] {
			continue
		}
		predictions = append(predictions, p)
	}
	return predictions
}

// Label maps a COCO category id to its name.
func (m *SSDModel) Label(classID int) string {
	return labelFor(m.labels, classID)
}

// Close releases the network.
func (m *SSDModel) Close() error {
	return m.net.Close()
}
