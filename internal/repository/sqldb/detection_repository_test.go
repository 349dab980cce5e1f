package sqldb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"detectserver/internal/model"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "data", "test.db")
	db, err := New(DriverSQLite, dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func testRecord(filename string, at time.Time, labels ...string) model.Record {
	rec := model.Record{
		Filename:   filename,
		Width:      640,
		Height:     480,
		Confidence: 0.25,
		DurationMS: 42,
		CreatedAt:  at,
	}
	for i, label := range labels {
		rec.Detections = append(rec.Detections, model.Detection{
			BBox:       [4]float64{float64(i), 10, float64(i) + 100.5, 200.25},
			Confidence: 0.9 - float64(i)/10,
			Label:      label,
			ClassID:    i,
		})
	}
	return rec
}

func TestNew_CreatesDatabaseFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	db, err := New(DriverSQLite, dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New("mysql", "whatever"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM requests WHERE id = ? AND label = ? LIMIT ?"

	sqlite := &DB{driver: DriverSQLite}
	if got := sqlite.Rebind(query); got != query {
		t.Errorf("sqlite query should be unchanged, got %q", got)
	}

	pg := &DB{driver: DriverPostgres}
	expected := "SELECT * FROM requests WHERE id = $1 AND label = $2 LIMIT $3"
	if got := pg.Rebind(query); got != expected {
		t.Errorf("Rebind() = %q, expected %q", got, expected)
	}
}

func TestDetectionRepository_InsertAndGetByID(t *testing.T) {
	repo := NewDetectionRepository(setupTestDB(t))

	at := time.Now().Truncate(time.Second)
	rec := testRecord("street.jpg", at, "person", "car")

	id, err := repo.Insert(&rec)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id <= 0 || rec.ID != id {
		t.Errorf("Expected positive id set on record, got %d / %d", id, rec.ID)
	}

	got, err := repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected record, got nil")
	}

	if got.Filename != "street.jpg" || got.Width != 640 || got.Height != 480 {
		t.Errorf("Unexpected record: %+v", got)
	}
	if got.Count != 2 || len(got.Detections) != 2 {
		t.Fatalf("Expected 2 detections, got count=%d len=%d", got.Count, len(got.Detections))
	}
	if got.Detections[0].Label != "person" || got.Detections[1].Label != "car" {
		t.Errorf("Detections out of order: %+v", got.Detections)
	}
	if got.Detections[1].BBox != rec.Detections[1].BBox {
		t.Errorf("BBox mismatch: %v vs %v", got.Detections[1].BBox, rec.Detections[1].BBox)
	}
	if !got.CreatedAt.Equal(at) {
		t.Errorf("Expected timestamp %v, got %v", at, got.CreatedAt)
	}
}

func TestDetectionRepository_GetByID_NotFound(t *testing.T) {
	repo := NewDetectionRepository(setupTestDB(t))

	got, err := repo.GetByID(999)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing record, got %+v", got)
	}
}

func TestDetectionRepository_InsertBatch(t *testing.T) {
	repo := NewDetectionRepository(setupTestDB(t))

	now := time.Now()
	records := []model.Record{
		testRecord("a.jpg", now.Add(-2*time.Minute), "dog"),
		testRecord("b.jpg", now.Add(-time.Minute)),
		testRecord("c.jpg", now, "dog", "cat"),
	}

	if err := repo.InsertBatch(records); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	count, err := repo.GetTotalCount(&model.RecordFilter{})
	if err != nil {
		t.Fatalf("GetTotalCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 records, got %d", count)
	}

	if err := repo.InsertBatch(nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}
}

func TestDetectionRepository_GetRecent(t *testing.T) {
	repo := NewDetectionRepository(setupTestDB(t))

	now := time.Now()
	if err := repo.InsertBatch([]model.Record{
		testRecord("old.jpg", now.Add(-time.Hour), "dog"),
		testRecord("mid.jpg", now.Add(-time.Minute), "cat"),
		testRecord("new.jpg", now, "dog"),
	}); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	recent, err := repo.GetRecent(&model.RecordFilter{})
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 3 || recent[0].Filename != "new.jpg" || recent[2].Filename != "old.jpg" {
		t.Fatalf("Expected newest first, got %+v", recent)
	}

	dogs, err := repo.GetRecent(&model.RecordFilter{Label: "dog"})
	if err != nil {
		t.Fatalf("GetRecent by label failed: %v", err)
	}
	if len(dogs) != 2 {
		t.Errorf("Expected 2 records with dogs, got %d", len(dogs))
	}

	page, err := repo.GetRecent(&model.RecordFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("GetRecent with paging failed: %v", err)
	}
	if len(page) != 1 || page[0].Filename != "mid.jpg" {
		t.Errorf("Expected mid.jpg on page 2, got %+v", page)
	}

	dogCount, err := repo.GetTotalCount(&model.RecordFilter{Label: "dog"})
	if err != nil {
		t.Fatalf("GetTotalCount failed: %v", err)
	}
	if dogCount != 2 {
		t.Errorf("Expected 2 dog records, got %d", dogCount)
	}
}

func TestDetectionRepository_GetRecent_Empty(t *testing.T) {
	repo := NewDetectionRepository(setupTestDB(t))

	recent, err := repo.GetRecent(nil)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if recent == nil || len(recent) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", recent)
	}
}

func TestDetectionRepository_GetLabelCounts(t *testing.T) {
	repo := NewDetectionRepository(setupTestDB(t))

	now := time.Now()
	if err := repo.InsertBatch([]model.Record{
		testRecord("a.jpg", now, "person", "person", "car"),
		testRecord("b.jpg", now, "person"),
	}); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	counts, err := repo.GetLabelCounts()
	if err != nil {
		t.Fatalf("GetLabelCounts failed: %v", err)
	}
	if counts["person"] != 3 || counts["car"] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestDetectionRepository_DeleteAll(t *testing.T) {
	repo := NewDetectionRepository(setupTestDB(t))

	rec := testRecord("a.jpg", time.Now(), "person")
	if _, err := repo.Insert(&rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := repo.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	count, _ := repo.GetTotalCount(nil)
	if count != 0 {
		t.Errorf("Expected 0 records after DeleteAll, got %d", count)
	}
	counts, _ := repo.GetLabelCounts()
	if len(counts) != 0 {
		t.Errorf("Expected no labels after DeleteAll, got %v", counts)
	}
}

func TestDetectionRepository_DeleteAll_RollsBackOnFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDetectionRepository(db)

	rec := testRecord("a.jpg", time.Now(), "person", "car")
	if _, err := repo.Insert(&rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Detections delete first; make the second statement fail.
	if _, err := db.Conn().Exec(`ALTER TABLE requests RENAME TO requests_archived`); err != nil {
		t.Fatalf("Failed to rename table: %v", err)
	}

	if err := repo.DeleteAll(); err == nil {
		t.Fatal("Expected DeleteAll to fail")
	}

	var count int
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&count); err != nil {
		t.Fatalf("Failed to count detections: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected detections to survive the failed delete, got %d", count)
	}
}
