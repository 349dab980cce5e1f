package history

import (
	"context"
	"sync"
	"time"

	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/repository"
)

const (
	// DefaultBufferLimit caps how many records wait in memory between flushes.
	DefaultBufferLimit = 100
	// DefaultFlushInterval defines how often buffered records are written.
	DefaultFlushInterval = 10 * time.Second
)

// Recorder buffers detection records in memory and periodically flushes them to the repository.
type Recorder struct {
	repo          repository.DetectionRepository
	logger        *logger.Logger
	limit         int
	flushInterval time.Duration

	mu      sync.Mutex
	records []model.Record
	dropped int
}

// NewRecorder creates a Recorder; non-positive limit or interval fall back to the defaults.
func NewRecorder(repo repository.DetectionRepository, logger *logger.Logger, limit int, flushInterval time.Duration) *Recorder {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Recorder{
		repo:          repo,
		logger:        logger,
		limit:         limit,
		flushInterval: flushInterval,
		records:       make([]model.Record, 0, limit),
	}
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush()
		case <-ctx.Done():
			r.Flush()
			return
		}
	}
}

// Add buffers a record. Records arriving while the buffer is full are dropped.
func (r *Recorder) Add(rec model.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) >= r.limit {
		r.dropped++
		return
	}
	r.records = append(r.records, rec)
}

// Pending returns the number of buffered records.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Flush writes buffered records in one batch and resets the buffer.
// A batch that fails to insert is discarded.
func (r *Recorder) Flush() {
	r.mu.Lock()
	if len(r.records) == 0 && r.dropped == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.records
	dropped := r.dropped
	r.records = make([]model.Record, 0, r.limit)
	r.dropped = 0
	r.mu.Unlock()

	if dropped > 0 {
		r.logger.Warning("History buffer full: dropped %d record(s)", dropped)
	}
	if len(batch) == 0 {
		return
	}

	if err := r.repo.InsertBatch(batch); err != nil {
		r.logger.Error("Error saving %d history record(s): %v", len(batch), err)
		return
	}
	r.logger.Info("Flushed %d history record(s)", len(batch))
}
