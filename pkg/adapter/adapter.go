// Package adapter defines the warehouse adapter contract for cnpjkit.
//
// Concrete adapter implementations live in pkg/adapters/ subdirectories and
// register themselves with the registry in their init() functions. Import an
// implementation with a blank identifier to make it available.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds connection settings for a warehouse target.
type Config struct {
	// Type selects the registered adapter (e.g. "duckdb", "postgres").
	Type string

	// Path is the database file for file-based targets. Empty means
	// in-memory for DuckDB.
	Path string

	// Database is the database name for network targets.
	Database string

	// Schema is the default schema for unqualified table names.
	Schema string

	Host     string
	Port     int
	Username string
	Password string

	// Options holds driver-specific string options (e.g. sslmode).
	Options map[string]string

	// Params holds adapter-specific configuration decoded by the adapter
	// itself (e.g. DuckDB extensions and settings).
	Params map[string]any
}

// Column describes a single table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Position int    `json:"position"`
}

// Metadata describes a warehouse table.
type Metadata struct {
	Schema   string   `json:"schema"`
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
	RowCount int64    `json:"row_count"`
}

// Rows wraps sql.Rows so callers don't import database/sql directly.
type Rows struct {
	*sql.Rows
}

// CSVOptions controls how delimited source files are interpreted.
type CSVOptions struct {
	// Delimiter is the field separator. RFB drops use ';'.
	Delimiter rune
	// Header indicates the first row carries column names.
	Header bool
	// AllVarchar forces every column to be read as text, skipping type
	// inference. RFB columns are zero-padded codes, so inference mangles
	// them.
	AllVarchar bool
}

// Adapter is implemented by every warehouse backend.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection and all resources.
	Close() error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) error

	// Query runs a statement that returns rows. Callers must close the
	// result and check Rows.Err after iteration.
	Query(ctx context.Context, query string, args ...any) (*Rows, error)

	// GetTableMetadata returns columns and row count for a table, which
	// may be schema-qualified ("main.empresas").
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// LoadCSV creates or replaces a table from a delimited file.
	LoadCSV(ctx context.Context, table, path string, opts CSVOptions) error

	// Dialect returns the SQL dialect for this adapter.
	Dialect() Dialect
}

// ParquetMaterializer is implemented by adapters that can convert delimited
// files to Parquet and build tables from Parquet files. The ingest pipeline
// prefers this path and falls back to LoadCSV when it is unavailable.
type ParquetMaterializer interface {
	// CopyCSVToParquet converts a delimited file into a Parquet file and
	// returns the number of data rows written.
	CopyCSVToParquet(ctx context.Context, csvPath, parquetPath string, opts CSVOptions) (int64, error)

	// CreateTableFromParquet creates or replaces a table from a Parquet
	// file.
	CreateTableFromParquet(ctx context.Context, table, parquetPath string) error
}
