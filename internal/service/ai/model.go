package ai

import (
	"fmt"
	"os"

	"detectserver/internal/config"
	"detectserver/internal/logger"

	"gocv.io/x/gocv"
)

// Prediction is a raw model output: Box is x1, y1, x2, y2 in pixels of the
// image passed to Predict.
type Prediction struct {
	Box        [4]float64
	Confidence float64
	ClassID    int
}

// Model is a loaded detection network. Implementations are not safe for
// concurrent use; share them through a Pool.
type Model interface {
	// Predict runs inference and returns detections scoring at least confidence.
	Predict(img gocv.Mat, confidence float64) ([]Prediction, error)
	// Label maps a class id to its human-readable name.
	Label(classID int) string
	Close() error
}

// LoadModels loads cfg.ProcessingWorkers independent instances of the configured model.
func LoadModels(cfg *config.Config, logger *logger.Logger) ([]Model, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	labels, err := resolveLabels(cfg)
	if err != nil {
		return nil, err
	}

	workers := cfg.ProcessingWorkers
	if workers < 1 {
		workers = 1
	}

	models := make([]Model, 0, workers)
	for i := 0; i < workers; i++ {
		var (
			m   Model
			err error
		)
		switch cfg.ModelFormat {
		case config.FormatYOLOv8:
			m, err = NewYOLOModel(YOLOOptions{
				ModelPath:     cfg.ModelPath,
				Labels:        labels,
				InputSize:     cfg.InputSize,
				NMSThreshold:  float32(cfg.NMSThreshold),
				MaxDetections: cfg.MaxDetections,
			})
		case config.FormatSSD:
			m, err = NewSSDModel(cfg.ModelPath, cfg.ConfigPath, labels)
		default:
			err = fmt.Errorf("unsupported model format: %s", cfg.ModelFormat)
		}
		if err != nil {
			for _, loaded := range models {
				loaded.Close()
			}
			return nil, err
		}
		models = append(models, m)
	}

	logger.Info("Loaded %d %s model instance(s) from %s", len(models), cfg.ModelFormat, cfg.ModelPath)
	return models, nil
}

func resolveLabels(cfg *config.Config) ([]string, error) {
	if cfg.LabelsPath != "" {
		return LoadLabels(cfg.LabelsPath)
	}
	if cfg.ModelFormat == config.FormatSSD {
		return COCO91Labels(), nil
	}
	return COCO80Labels(), nil
}

// readNet loads a network and sets backend/target preferences.
func readNet(modelPath, configPath string) (gocv.Net, error) {
	var net gocv.Net
	if configPath == "" {
		net = gocv.ReadNetFromONNX(modelPath)
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return net, fmt.Errorf("config file not found: %s", configPath)
		}
		net = gocv.ReadNet(modelPath, configPath)
	}

	if net.Empty() {
		return net, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return net, fmt.Errorf("failed to set preferable backend or target")
	}

	return net, nil
}
