package ai

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const (
	// classOffset separates boxes of different classes so a single NMS pass
	// only suppresses overlaps within the same class.
	classOffset = 7680
	// letterboxFill is the grey used to pad the letterboxed canvas.
	letterboxFill = 114
)

// YOLOOptions configures a YOLOv8 ONNX model.
type YOLOOptions struct {
	ModelPath     string
	Labels        []string
	InputSize     int
	NMSThreshold  float32
	MaxDetections int
}

// YOLOModel runs an ultralytics YOLOv8 graph exported to ONNX.
type YOLOModel struct {
	net  gocv.Net
	opts YOLOOptions
}

// NewYOLOModel loads the ONNX graph described by opts.
func NewYOLOModel(opts YOLOOptions) (*YOLOModel, error) {
	if opts.InputSize <= 0 {
		opts.InputSize = 640
	}
	if opts.MaxDetections <= 0 {
		opts.MaxDetections = 300
	}

	net, err := readNet(opts.ModelPath, "")
	if err != nil {
		return nil, err
	}
	return &YOLOModel{net: net, opts: opts}, nil
}

// Predict letterboxes img to a square, runs the network and applies
// per-class NMS. Boxes are returned in img pixel coordinates.
func (m *YOLOModel) Predict(img gocv.Mat, confidence float64) ([]Prediction, error) {
	side := max(img.Cols(), img.Rows())

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(letterboxFill, letterboxFill, letterboxFill, 0), side, side, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	roi := canvas.Region(image.Rect(0, 0, img.Cols(), img.Rows()))
	err := img.CopyTo(&roi)
	roi.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to letterbox image: %w", err)
	}

	size := m.opts.InputSize
	blob := gocv.BlobFromImage(canvas, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	// Output layout is [1, 4+classes, anchors].
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected model output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}

	scale := float64(side) / float64(size)
	candidates := decodeYOLOOutput(data, dims[1], dims[2], float32(confidence), scale)
	candidates = clipCandidates(candidates, img.Cols(), img.Rows())

	return suppress(candidates, float32(confidence), m.opts.NMSThreshold, m.opts.MaxDetections), nil
}

// Label maps a class id to its name.
func (m *YOLOModel) Label(classID int) string {
	return labelFor(m.opts.Labels, classID)
}

// Close releases the network.
func (m *YOLOModel) Close() error {
	return m.net.Close()
}

// decodeYOLOOutput turns the attribute-major output tensor into candidate
// predictions. Each anchor holds cx, cy, w, h followed by one score per
// class; the best class wins.
func decodeYOLOOutput(data []float32, attrs, anchors int, threshold float32, scale float64) []Prediction {
	if len(data) < attrs*anchors {
		return nil
	}

	var candidates []Prediction
	for i := 0; i < anchors; i++ {
		bestClass := -1
		var bestScore float32
		for c := 4; c < attrs; c++ {
			if score := data[c*anchors+i]; score > bestScore {
				bestScore = score
				bestClass = c - 4
			}
		}
		if bestClass < 0 || bestScore < threshold {
			continue
		}

		cx := float64(data[i])
		cy := float64(data[anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])

		candidates = append(candidates, Prediction{
			Box: [4]float64{
				(cx - w/2) * scale,
				(cy - h/2) * scale,
				(cx + w/2) * scale,
				(cy + h/2) * scale,
			},
			Confidence: float64(bestScore),
			ClassID:    bestClass,
		})
	}
	return candidates
}

// clipCandidates clamps boxes to the image and drops the ones that collapse.
func clipCandidates(candidates []Prediction, width, height int) []Prediction {
	clipped := candidates[:0]
	for _, p := range candidates {
		p.Box[0] = clamp(p.Box[0], 0, float64(width))
		p.Box[1] = clamp(p.Box[1], 0, float64(height))
		p.Box[2] = clamp(p.Box[2], 0, float64(width))
		p.Box[3] = clamp(p.Box[3], 0, float64(height))
		if p.Box[0] >= p.Box[2] || p.Box[1] >= p.Box[3] {
			continue
		}
		clipped = append(clipped, p)
	}
	return clipped
}

// suppress runs NMS over class-offset boxes and keeps at most limit predictions,
// highest confidence first.
func suppress(candidates []Prediction, scoreThreshold, nmsThreshold float32, limit int) []Prediction {
	if len(candidates) == 0 {
		return []Prediction{}
	}

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, p := range candidates {
		offset := p.ClassID * classOffset
		boxes[i] = image.Rect(
			int(p.Box[0])+offset,
			int(p.Box[1])+offset,
			int(p.Box[2]+0.5)+offset,
			int(p.Box[3]+0.5)+offset,
		)
		scores[i] = float32(p.Confidence)
	}

	indices := gocv.NMSBoxes(boxes, scores, scoreThreshold, nmsThreshold)

	kept := make([]Prediction, 0, len(indices))
	for _, idx := range indices {
		if len(kept) == limit {
			break
		}
		kept = append(kept, candidates[idx])
	}
	return kept
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
