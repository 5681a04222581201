// Package catalog tracks what has been loaded into the warehouse: one
// record per dataset plus the history of ingest runs. State lives in a
// SQLite database next to the data directory.
package catalog

import "time"

// RunStatus is the lifecycle status of an ingest run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// DatasetRunStatus is the outcome of a single dataset within a run.
type DatasetRunStatus string

const (
	DatasetRunStatusRunning DatasetRunStatus = "running"
	DatasetRunStatusSuccess DatasetRunStatus = "success"
	DatasetRunStatusSkipped DatasetRunStatus = "skipped"
	DatasetRunStatusFailed  DatasetRunStatus = "failed"
)

// Run is one invocation of the ingest pipeline (a single prepare or a
// wizard sweep).
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"` // "prepare" or "wizard"
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// DatasetRun is the per-dataset outcome inside a run.
type DatasetRun struct {
	ID         string           `json:"id"`
	RunID      string           `json:"run_id"`
	Dataset    string           `json:"dataset"`
	MonthRef   string           `json:"month_ref,omitempty"`
	SourceURL  string           `json:"source_url,omitempty"`
	Status     DatasetRunStatus `json:"status"`
	Message    string           `json:"message,omitempty"`
	RowsLoaded int64            `json:"rows_loaded"`
	DurationMS int64            `json:"duration_ms"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Record is the catalog entry for a prepared dataset. Re-preparing a
// dataset replaces its record (latest load wins).
type Record struct {
	Dataset     string    `json:"dataset"`
	MonthRef    string    `json:"month_ref,omitempty"`
	Source      string    `json:"source"` // "url", "zip" or "csv"
	SourceURL   string    `json:"source_url,omitempty"`
	ParquetPath string    `json:"parquet_path,omitempty"`
	RowCount    int64     `json:"row_count"`
	PreparedAt  time.Time `json:"prepared_at"`
}

// ListFilter narrows ListRecords. Zero values match everything.
type ListFilter struct {
	Dataset  string
	MonthRef string
	// Search matches parquet path or source URL, case-insensitive.
	Search string
}

// Store is the catalog persistence contract.
type Store interface {
	Close() error

	CreateRun(kind string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetRun(id string) (*Run, error)
	RecentRuns(limit int) ([]*Run, error)

	CreateDatasetRun(runID, dataset, monthRef, sourceURL string) (*DatasetRun, error)
	UpdateDatasetRun(id string, status DatasetRunStatus, message string, rowsLoaded, durationMS int64) error
	DatasetRunsForRun(runID string) ([]*DatasetRun, error)

	UpsertRecord(rec *Record) error
	GetRecord(dataset string) (*Record, error)
	ListRecords(filter ListFilter) ([]*Record, error)
}
