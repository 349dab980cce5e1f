package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/repository"
	"detectserver/internal/repository/sqldb"
	"detectserver/internal/service/ai"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true}

type fileResult struct {
	File   string                 `json:"file"`
	ID     int64                  `json:"id,omitempty"`
	Result *model.DetectionResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

func main() {
	cfg := config.Load()

	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Model file")
	flag.StringVar(&cfg.ModelFormat, "format", cfg.ModelFormat, "Model format (yolov8, ssd)")
	flag.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Network config file (ssd only)")
	flag.StringVar(&cfg.LabelsPath, "labels", cfg.LabelsPath, "Labels file, one name per line")
	flag.IntVar(&cfg.InputSize, "size", cfg.InputSize, "Network input size")
	confidence := flag.Float64("conf", cfg.DefaultConfidence, "Confidence threshold")
	record := flag.Bool("record", false, "Store every result in the history database (HISTORY_DRIVER, HISTORY_DSN)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image|dir>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	files, err := collectImages(flag.Args())
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
	if len(files) == 0 {
		log.Fatal("No images found")
	}

	cfg.ProcessingWorkers = 1
	models, err := ai.LoadModels(cfg, logger.NewDiscard())
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	pool, err := ai.NewPool(models)
	if err != nil {
		log.Fatalf("Failed to create model pool: %v", err)
	}

	var (
		db   *sqldb.DB
		repo repository.DetectionRepository
	)
	if *record {
		if !cfg.HistoryEnabled() {
			log.Fatalf("Cannot record results: history is disabled (HISTORY_DRIVER=%s)", cfg.HistoryDriver)
		}
		if db, err = sqldb.New(cfg.HistoryDriver, cfg.HistoryDSN); err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		repo = sqldb.NewDetectionRepository(db)
	}

	detector := ai.NewDetectorService(pool, logger.NewDiscard())
	encoder := json.NewEncoder(os.Stdout)

	failed := 0
	for _, file := range files {
		out := fileResult{File: file}

		data, err := os.ReadFile(file)
		if err == nil {
			start := time.Now()
			out.Result, err = detector.Process(context.Background(), data, *confidence)
			if err == nil && repo != nil {
				out.ID, err = store(repo, file, *confidence, out.Result, time.Since(start))
			}
		}
		if err != nil {
			out.Error = err.Error()
			failed++
		}

		if err := encoder.Encode(out); err != nil {
			log.Fatalf("Failed to write result: %v", err)
		}
	}

	pool.Close()
	if db != nil {
		db.Close()
	}

	if failed > 0 {
		log.Printf("%d of %d image(s) failed", failed, len(files))
		os.Exit(1)
	}
}

// store saves one result as a history record and returns its id.
func store(repo repository.DetectionRepository, file string, confidence float64, result *model.DetectionResult, took time.Duration) (int64, error) {
	rec := model.NewRecord(model.DetectionRequest{
		Filename:   filepath.Base(file),
		Confidence: confidence,
	}, result, took, time.Now())

	id, err := repo.Insert(&rec)
	if err != nil {
		return 0, fmt.Errorf("failed to record result: %w", err)
	}
	return id, nil
}

// collectImages expands directories into the image files they contain.
func collectImages(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
				continue
			}
			files = append(files, filepath.Join(arg, entry.Name()))
		}
	}
	return files, nil
}
