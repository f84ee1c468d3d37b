package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jgoulah/submeter/pkg/models"
)

// ErrReportNotFound indicates no saved report matched the lookup
var ErrReportNotFound = errors.New("report not found")

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SavedReport is a computed usage result recorded in the history
type SavedReport struct {
	ID        string
	CreatedAt time.Time
	Result    models.UsageResult
	Published bool
}

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_reports (
		id TEXT PRIMARY KEY,
		range_start TEXT NOT NULL,
		range_end TEXT NOT NULL,
		to_date INTEGER NOT NULL DEFAULT 0,
		start_time TEXT NOT NULL,
		start_kwh REAL NOT NULL,
		start_entry INTEGER NOT NULL DEFAULT 0,
		end_time TEXT NOT NULL,
		end_kwh REAL NOT NULL,
		end_entry INTEGER NOT NULL DEFAULT 0,
		usage_kwh REAL NOT NULL,
		created_at TEXT NOT NULL,
		published INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON usage_reports(created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_range ON usage_reports(range_start, range_end);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveReport records a usage result and returns it with its new id
func (db *DB) SaveReport(result models.UsageResult) (*SavedReport, error) {
	query := `
	INSERT INTO usage_reports (id, range_start, range_end, to_date, start_time, start_kwh, start_entry,
		end_time, end_kwh, end_entry, usage_kwh, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	saved := &SavedReport{
		ID:        uuid.NewString(),
		CreatedAt: db.now().UTC(),
		Result:    result,
	}

	_, err := db.conn.Exec(query,
		saved.ID,
		result.Range.Start,
		result.Range.End,
		boolToInt(result.Range.ToDate),
		result.StartSample.Timestamp.UTC().Format(timeLayout),
		result.StartSample.Value,
		result.StartSample.EntryID,
		result.EndSample.Timestamp.UTC().Format(timeLayout),
		result.EndSample.Value,
		result.EndSample.EntryID,
		result.UsageKWh,
		saved.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting usage report: %w", err)
	}

	return saved, nil
}

const selectReport = `
	SELECT id, range_start, range_end, to_date, start_time, start_kwh, start_entry,
		end_time, end_kwh, end_entry, usage_kwh, created_at, published
	FROM usage_reports
`

// GetReport retrieves a saved report by id
func (db *DB) GetReport(id string) (*SavedReport, error) {
	row := db.conn.QueryRow(selectReport+` WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying usage report: %w", err)
	}
	return r, nil
}

// LatestReport retrieves the most recently saved report
func (db *DB) LatestReport() (*SavedReport, error) {
	row := db.conn.QueryRow(selectReport + ` ORDER BY created_at DESC LIMIT 1`)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest usage report: %w", err)
	}
	return r, nil
}

// ListReports retrieves saved reports, newest first. limit <= 0 means no limit.
func (db *DB) ListReports(limit int) ([]SavedReport, error) {
	query := selectReport + ` ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage reports: %w", err)
	}
	defer rows.Close()

	var results []SavedReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, *r)
	}

	return results, rows.Err()
}

// MarkPublished marks a saved report as published
func (db *DB) MarkPublished(id string) error {
	query := `UPDATE usage_reports SET published = 1 WHERE id = ?`
	_, err := db.conn.Exec(query, id)
	if err != nil {
		return fmt.Errorf("marking report as published: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*SavedReport, error) {
	var r SavedReport
	var toDate, published int
	var startTime, endTime, createdAt string

	err := s.Scan(
		&r.ID,
		&r.Result.Range.Start,
		&r.Result.Range.End,
		&toDate,
		&startTime,
		&r.Result.StartSample.Value,
		&r.Result.StartSample.EntryID,
		&endTime,
		&r.Result.EndSample.Value,
		&r.Result.EndSample.EntryID,
		&r.Result.UsageKWh,
		&createdAt,
		&published,
	)
	if err != nil {
		return nil, err
	}

	r.Result.Range.ToDate = toDate != 0
	r.Published = published != 0

	if r.Result.StartSample.Timestamp, err = time.Parse(timeLayout, startTime); err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	if r.Result.EndSample.Timestamp, err = time.Parse(timeLayout, endTime); err != nil {
		return nil, fmt.Errorf("parsing end_time: %w", err)
	}
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
