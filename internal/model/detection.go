package model

// Detection is one object found in an image. BBox is x1, y1, x2, y2 in pixels
// of the decoded input.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Label      string     `json:"label"`
	ClassID    int        `json:"class_id"`
}

// ImageSize holds the dimensions of the decoded input image.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectionResult is the response body of a successful detection.
type DetectionResult struct {
	Detections []Detection `json:"detections"`
	ImageSize  ImageSize   `json:"image_size"`
}

// DetectionRequest is a single image submitted for detection.
type DetectionRequest struct {
	Filename   string
	ImageData  []byte
	Confidence float64
}

// Labels returns the label of every detection in result order.
func (r *DetectionResult) Labels() []string {
	labels := make([]string, 0, len(r.Detections))
	for _, det := range r.Detections {
		labels = append(labels, det.Label)
	}
	return labels
}
