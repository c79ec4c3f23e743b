package history

import (
	"database/sql"
	"time"
)

const StatusCompleted = "completed"

// Record is one completed download.
type Record struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Kind        string    `json:"kind"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedTime time.Time `json:"created_time"`
	Status      string    `json:"status"`
}

// Repository persists download records in SQLite.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.initTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) initTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		kind TEXT NOT NULL,
		path TEXT NOT NULL,
		size_bytes INTEGER,
		created_time DATETIME,
		status TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_created ON downloads(created_time);
	`
	_, err := r.db.Exec(query)
	return err
}

// Create inserts or replaces a download record. Re-downloading a key after
// its file disappeared overwrites the stale row.
func (r *Repository) Create(rec Record) error {
	query := `INSERT OR REPLACE INTO downloads (id, url, kind, path, size_bytes, created_time, status) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query, rec.ID, rec.URL, rec.Kind, rec.Path, rec.SizeBytes, rec.CreatedTime, rec.Status)
	return err
}

func (r *Repository) Get(id string) (*Record, error) {
	query := `SELECT id, url, kind, path, size_bytes, created_time, status FROM downloads WHERE id = ?`
	row := r.db.QueryRow(query, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.URL, &rec.Kind, &rec.Path, &rec.SizeBytes, &rec.CreatedTime, &rec.Status); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) List() ([]Record, error) {
	query := `SELECT id, url, kind, path, size_bytes, created_time, status FROM downloads ORDER BY created_time DESC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.Kind, &rec.Path, &rec.SizeBytes, &rec.CreatedTime, &rec.Status); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) Delete(id string) error {
	query := `DELETE FROM downloads WHERE id = ?`
	_, err := r.db.Exec(query, id)
	return err
}

// TotalSize returns the cumulative size of all recorded downloads.
func (r *Repository) TotalSize() (int64, error) {
	var total int64
	err := r.db.QueryRow(`SELECT COALESCE(SUM(size_bytes), 0) FROM downloads`).Scan(&total)
	return total, err
}
