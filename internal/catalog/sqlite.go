package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite catalog store. A nil logger is
// replaced with a discard logger.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the SQLite database at path. Use ":memory:" for tests.
func (s *SQLiteStore) Open(path string) error {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying connection for read-only inspection (REPL, UI).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func generateID() string {
	return uuid.New().String()
}

// --- Runs ---

// CreateRun creates a new ingest run in running state.
func (s *SQLiteStore) CreateRun(kind string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:        generateID(),
		Kind:      kind,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Kind, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, kind, status, started_at, completed_at, error FROM runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.Kind, &run.Status, &run.StartedAt, &completedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

// RecentRuns returns the latest runs, newest first.
func (s *SQLiteStore) RecentRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, kind, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.Kind, &run.Status, &run.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Dataset runs ---

// CreateDatasetRun records the start of one dataset load within a run.
func (s *SQLiteStore) CreateDatasetRun(runID, ds, monthRef, sourceURL string) (*DatasetRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	dr := &DatasetRun{
		ID:        generateID(),
		RunID:     runID,
		Dataset:   ds,
		MonthRef:  monthRef,
		SourceURL: sourceURL,
		Status:    DatasetRunStatusRunning,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO dataset_runs (id, run_id, dataset, month_ref, source_url, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dr.ID, dr.RunID, dr.Dataset, dr.MonthRef, dr.SourceURL, dr.Status, dr.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset run: %w", err)
	}
	return dr, nil
}

// UpdateDatasetRun records the outcome of a dataset load.
func (s *SQLiteStore) UpdateDatasetRun(id string, status DatasetRunStatus, message string, rowsLoaded, durationMS int64) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE dataset_runs SET status = ?, message = ?, rows_loaded = ?, duration_ms = ? WHERE id = ?`,
		status, message, rowsLoaded, durationMS, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update dataset run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset run not found: %s", id)
	}
	return nil
}

// DatasetRunsForRun lists a run's per-dataset outcomes in creation order.
func (s *SQLiteStore) DatasetRunsForRun(runID string) ([]*DatasetRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, dataset, month_ref, source_url, status, message, rows_loaded, duration_ms, created_at
		 FROM dataset_runs WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*DatasetRun
	for rows.Next() {
		dr := &DatasetRun{}
		var monthRef, sourceURL, message sql.NullString
		if err := rows.Scan(&dr.ID, &dr.RunID, &dr.Dataset, &monthRef, &sourceURL,
			&dr.Status, &message, &dr.RowsLoaded, &dr.DurationMS, &dr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset run: %w", err)
		}
		dr.MonthRef = monthRef.String
		dr.SourceURL = sourceURL.String
		dr.Message = message.String
		out = append(out, dr)
	}
	return out, rows.Err()
}

// --- Catalog records ---

// UpsertRecord inserts or replaces the catalog entry for a dataset.
func (s *SQLiteStore) UpsertRecord(rec *Record) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if rec.PreparedAt.IsZero() {
		rec.PreparedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO catalog (dataset, month_ref, source, source_url, parquet_path, row_count, prepared_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dataset) DO UPDATE SET
			month_ref = excluded.month_ref,
			source = excluded.source,
			source_url = excluded.source_url,
			parquet_path = excluded.parquet_path,
			row_count = excluded.row_count,
			prepared_at = excluded.prepared_at`,
		rec.Dataset, rec.MonthRef, rec.Source, rec.SourceURL, rec.ParquetPath, rec.RowCount, rec.PreparedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert catalog record: %w", err)
	}
	return nil
}

// GetRecord retrieves the catalog entry for a dataset, or nil when the
// dataset was never prepared.
func (s *SQLiteStore) GetRecord(dataset string) (*Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rec := &Record{}
	var monthRef, sourceURL, parquetPath sql.NullString
	err := s.db.QueryRow(
		`SELECT dataset, month_ref, source, source_url, parquet_path, row_count, prepared_at
		 FROM catalog WHERE dataset = ?`, dataset,
	).Scan(&rec.Dataset, &monthRef, &rec.Source, &sourceURL, &parquetPath, &rec.RowCount, &rec.PreparedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog record: %w", err)
	}
	rec.MonthRef = monthRef.String
	rec.SourceURL = sourceURL.String
	rec.ParquetPath = parquetPath.String
	return rec, nil
}

// ListRecords lists catalog entries matching the filter, ordered by dataset.
func (s *SQLiteStore) ListRecords(filter ListFilter) ([]*Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT dataset, month_ref, source, source_url, parquet_path, row_count, prepared_at
		 FROM catalog WHERE 1=1`
	var args []any

	if filter.Dataset != "" {
		query += " AND dataset = ?"
		args = append(args, filter.Dataset)
	}
	if filter.MonthRef != "" {
		query += " AND month_ref = ?"
		args = append(args, filter.MonthRef)
	}
	if filter.Search != "" {
		query += " AND (LOWER(parquet_path) LIKE ? OR LOWER(source_url) LIKE ?)"
		term := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, term, term)
	}
	query += " ORDER BY dataset"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		var monthRef, sourceURL, parquetPath sql.NullString
		if err := rows.Scan(&rec.Dataset, &monthRef, &rec.Source, &sourceURL, &parquetPath, &rec.RowCount, &rec.PreparedAt); err != nil {
			return nil, fmt.Errorf("failed to scan catalog record: %w", err)
		}
		rec.MonthRef = monthRef.String
		rec.SourceURL = sourceURL.String
		rec.ParquetPath = parquetPath.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
