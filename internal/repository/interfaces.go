package repository

import "detectserver/internal/model"

// DetectionRepository defines the storage operations for detection history.
type DetectionRepository interface {
	// Create operations
	Insert(rec *model.Record) (int64, error)
	InsertBatch(records []model.Record) error

	// Read operations
	GetByID(id int64) (*model.Record, error)
	GetRecent(filter *model.RecordFilter) ([]model.Record, error)
	GetTotalCount(filter *model.RecordFilter) (int, error)
	GetLabelCounts() (map[string]int, error)

	// Delete operations
	DeleteAll() error
}
