package sqldb

import (
	"database/sql"
	"fmt"

	"detectserver/internal/model"
)

// DefaultLimit bounds GetRecent when the filter carries no limit.
const DefaultLimit = 50

// DetectionRepository implements repository.DetectionRepository.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new detection history repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Insert adds a record and its detections, returning the new record id.
func (r *DetectionRepository) Insert(rec *model.Record) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := r.insert(tx, rec)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit record: %w", err)
	}
	return id, nil
}

// InsertBatch adds multiple records in a single transaction.
func (r *DetectionRepository) InsertBatch(records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range records {
		if _, err := r.insert(tx, &records[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *DetectionRepository) insert(tx execer, rec *model.Record) (int64, error) {
	var id int64
	err := tx.QueryRow(r.db.Rebind(`
		INSERT INTO requests (filename, width, height, confidence, detection_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), rec.Filename, rec.Width, rec.Height, rec.Confidence, len(rec.Detections), rec.DurationMS, rec.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}

	insertDetection := r.db.Rebind(`
		INSERT INTO detections (request_id, label, class_id, confidence, x1, y1, x2, y2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for _, det := range rec.Detections {
		if _, err := tx.Exec(insertDetection, id, det.Label, det.ClassID, det.Confidence,
			det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3]); err != nil {
			return 0, fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	rec.ID = id
	rec.Count = len(rec.Detections)
	return id, nil
}

// GetByID retrieves a record with its detections, or nil when it does not exist.
func (r *DetectionRepository) GetByID(id int64) (*model.Record, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var rec model.Record
	err := r.db.Conn().QueryRow(r.db.Rebind(`
		SELECT id, filename, width, height, confidence, detection_count, duration_ms, created_at
		FROM requests WHERE id = ?
	`), id).Scan(&rec.ID, &rec.Filename, &rec.Width, &rec.Height, &rec.Confidence, &rec.Count, &rec.DurationMS, &rec.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	if rec.Detections, err = r.detectionsFor(rec.ID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRecent retrieves records newest first, optionally limited to those
// containing a given label.
func (r *DetectionRepository) GetRecent(filter *model.RecordFilter) ([]model.Record, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := whereClause(`
		SELECT id, filename, width, height, confidence, detection_count, duration_ms, created_at
		FROM requests
	`, filter)

	limit := DefaultLimit
	if filter != nil && filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	if filter != nil && filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Conn().Query(r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		var rec model.Record
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Width, &rec.Height, &rec.Confidence, &rec.Count, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	rows.Close()

	for i := range records {
		if records[i].Detections, err = r.detectionsFor(records[i].ID); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// GetTotalCount returns the number of records matching the filter.
func (r *DetectionRepository) GetTotalCount(filter *model.RecordFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := whereClause(`SELECT COUNT(*) FROM requests`, filter)

	var count int
	if err := r.db.Conn().QueryRow(r.db.Rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// GetLabelCounts returns how many times each label was detected.
func (r *DetectionRepository) GetLabelCounts() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT label, COUNT(*) FROM detections GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		counts[label] = count
	}
	return counts, rows.Err()
}

// DeleteAll removes all records and their detections in one transaction.
func (r *DetectionRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM detections`); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM requests`); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}

	return tx.Commit()
}

// detectionsFor loads the detections of one record in insertion order.
// Callers hold the read lock.
func (r *DetectionRepository) detectionsFor(requestID int64) ([]model.Detection, error) {
	rows, err := r.db.Conn().Query(r.db.Rebind(`
		SELECT label, class_id, confidence, x1, y1, x2, y2
		FROM detections WHERE request_id = ? ORDER BY id
	`), requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections := []model.Detection{}
	for rows.Next() {
		var det model.Detection
		if err := rows.Scan(&det.Label, &det.ClassID, &det.Confidence, &det.BBox[0], &det.BBox[1], &det.BBox[2], &det.BBox[3]); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, det)
	}
	return detections, rows.Err()
}

func whereClause(query string, filter *model.RecordFilter) (string, []interface{}) {
	args := []interface{}{}
	if filter != nil && filter.Label != "" {
		query += " WHERE id IN (SELECT request_id FROM detections WHERE label = ?)"
		args = append(args, filter.Label)
	}
	return query, args
}
