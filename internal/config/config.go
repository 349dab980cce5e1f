package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	// FormatYOLOv8 selects an ultralytics YOLOv8 graph exported to ONNX.
	FormatYOLOv8 = "yolov8"
	// FormatSSD selects an SSD MobileNet TensorFlow graph with a pbtxt config.
	FormatSSD = "ssd"

	// HistoryDisabled turns the detection history off.
	HistoryDisabled = "none"
)

type Config struct {
	Port int

	ModelFormat       string
	ModelPath         string
	ConfigPath        string // Only used by the ssd format
	LabelsPath        string // One label per line; built-in COCO names when empty
	InputSize         int
	DefaultConfidence float64
	NMSThreshold      float64
	MaxDetections     int
	ProcessingWorkers int // Number of model instances loaded into the pool

	MaxUploadSize int64 // Bytes
	StaticDir     string
	LogDirectory  string

	HistoryDriver        string // sqlite3, postgres or none
	HistoryDSN           string
	HistoryBufferLimit   int
	HistoryFlushInterval int // Seconds
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	// A missing .env file is fine, the environment alone is enough.
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnvAsInt("PORT", 5000),
		ModelFormat:          getEnv("MODEL_FORMAT", FormatYOLOv8),
		ModelPath:            getEnv("MODEL_PATH", filepath.Join(".", "models", "yolov8m.onnx")),
		ConfigPath:           getEnv("CONFIG_PATH", ""),
		LabelsPath:           getEnv("LABELS_PATH", ""),
		InputSize:            getEnvAsInt("INPUT_SIZE", 640),
		DefaultConfidence:    getEnvAsFloat("DEFAULT_CONFIDENCE", 0.25),
		NMSThreshold:         getEnvAsFloat("NMS_THRESHOLD", 0.7),
		MaxDetections:        getEnvAsInt("MAX_DETECTIONS", 300),
		ProcessingWorkers:    getEnvAsInt("PROCESSING_WORKERS", 2),
		MaxUploadSize:        getEnvAsInt64("MAX_UPLOAD_MB", 32) << 20,
		StaticDir:            getEnv("STATIC_DIR", filepath.Join(".", "static")),
		LogDirectory:         getEnv("LOG_DIR", filepath.Join(".", "logs")),
		HistoryDriver:        getEnv("HISTORY_DRIVER", "sqlite3"),
		HistoryDSN:           getEnv("HISTORY_DSN", filepath.Join(".", "data", "history.db")),
		HistoryBufferLimit:   getEnvAsInt("HISTORY_BUFFER_LIMIT", 100),
		HistoryFlushInterval: getEnvAsInt("HISTORY_FLUSH_INTERVAL", 10),
	}
}

// HistoryEnabled reports whether detection requests should be recorded.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDriver != "" && c.HistoryDriver != HistoryDisabled
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
