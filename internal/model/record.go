package model

import "time"

// Record is the stored summary of one detection request.
type Record struct {
	ID         int64       `json:"id"`
	Filename   string      `json:"filename"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Confidence float64     `json:"confidence"`
	Count      int         `json:"count"`
	DurationMS int64       `json:"duration_ms"`
	CreatedAt  time.Time   `json:"created_at"`
	Detections []Detection `json:"detections"`
}

// RecordFilter contains filtering options for querying records.
type RecordFilter struct {
	Label  string
	Limit  int
	Offset int
}

// Event is broadcast to live viewers after every finished detection.
type Event struct {
	Filename   string   `json:"filename"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Count      int      `json:"count"`
	Labels     []string `json:"labels"`
	DurationMS int64    `json:"duration_ms"`
}

// NewRecord builds a history record from a finished detection.
func NewRecord(req DetectionRequest, result *DetectionResult, took time.Duration, at time.Time) Record {
	return Record{
		Filename:   req.Filename,
		Width:      result.ImageSize.Width,
		Height:     result.ImageSize.Height,
		Confidence: req.Confidence,
		Count:      len(result.Detections),
		DurationMS: took.Milliseconds(),
		CreatedAt:  at,
		Detections: result.Detections,
	}
}

// Event returns the live-viewer summary of the record.
func (r Record) Event() Event {
	labels := (&DetectionResult{Detections: r.Detections}).Labels()
	return Event{
		Filename:   r.Filename,
		Width:      r.Width,
		Height:     r.Height,
		Count:      r.Count,
		Labels:     labels,
		DurationMS: r.DurationMS,
	}
}
