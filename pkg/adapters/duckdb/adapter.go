// Package duckdb provides the DuckDB warehouse adapter for cnpjkit.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/brdatalab/cnpjkit/pkg/adapter"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements adapter.Adapter for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance. A nil logger is replaced with
// a discard logger.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the DuckDB SQL dialect.
func (a *Adapter) Dialect() adapter.Dialect {
	return adapter.Dialect{Name: "duckdb", DefaultSchema: "main"}
}

// Connect opens the DuckDB database. Use an empty path or ":memory:" for an
// in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg

	params, err := parseParams(cfg.Params)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("invalid duckdb params: %w", err)
	}
	if err := a.applyParams(ctx, params); err != nil {
		_ = db.Close()
		return err
	}

	return nil
}

// applyParams installs extensions and applies session settings.
func (a *Adapter) applyParams(ctx context.Context, p Params) error {
	for _, ext := range p.Extensions {
		if !isIdentifier(ext) {
			return fmt.Errorf("invalid extension name %q", ext)
		}
		if err := a.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}
	for key, value := range p.Settings {
		if !isIdentifier(key) {
			return fmt.Errorf("invalid setting name %q", key)
		}
		if err := a.Exec(ctx, fmt.Sprintf("SET %s = ?", key), value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// GetTableMetadata retrieves metadata for a table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return a.TableMetadataCommon(ctx, table, a.Dialect())
}

// LoadCSV creates or replaces a table from a delimited file.
func (a *Adapter) LoadCSV(ctx context.Context, table, path string, opts adapter.CSVOptions) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if !isIdentifier(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM %s",
		table, readCSVExpr(absPath, opts),
	)

	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV into %s: %w", table, err)
	}
	return nil
}

// CopyCSVToParquet converts a delimited file into a Parquet file and returns
// the number of data rows written.
func (a *Adapter) CopyCSVToParquet(ctx context.Context, csvPath, parquetPath string, opts adapter.CSVOptions) (int64, error) {
	if a.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}

	absCSV, err := filepath.Abs(csvPath)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}
	absParquet, err := filepath.Abs(parquetPath)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}

	query := fmt.Sprintf(
		"COPY (SELECT * FROM %s) TO '%s' (FORMAT PARQUET)",
		readCSVExpr(absCSV, opts), escapeLiteral(absParquet),
	)
	if err := a.Exec(ctx, query); err != nil {
		return 0, fmt.Errorf("failed to write parquet: %w", err)
	}

	var rows int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM parquet_scan('%s')", escapeLiteral(absParquet))
	if err := a.DB.QueryRowContext(ctx, countQuery).Scan(&rows); err != nil {
		return 0, fmt.Errorf("failed to count parquet rows: %w", err)
	}
	return rows, nil
}

// CreateTableFromParquet creates or replaces a table from a Parquet file.
func (a *Adapter) CreateTableFromParquet(ctx context.Context, table, parquetPath string) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if !isIdentifier(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	absPath, err := filepath.Abs(parquetPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM parquet_scan('%s')",
		table, escapeLiteral(absPath),
	)
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table from parquet: %w", err)
	}
	return nil
}

// readCSVExpr builds a read_csv() table expression for the given options.
func readCSVExpr(absPath string, opts adapter.CSVOptions) string {
	delim := string(opts.Delimiter)
	if delim == "" || delim == "\x00" {
		delim = ","
	}
	parts := []string{
		fmt.Sprintf("'%s'", escapeLiteral(absPath)),
		fmt.Sprintf("delim='%s'", escapeLiteral(delim)),
		fmt.Sprintf("header=%t", opts.Header),
	}
	if opts.AllVarchar {
		parts = append(parts, "all_varchar=true")
	}
	return fmt.Sprintf("read_csv(%s)", strings.Join(parts, ", "))
}

// escapeLiteral doubles single quotes for embedding in a SQL string literal.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// isIdentifier reports whether s is a safe unquoted SQL identifier.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Ensure the adapter satisfies both contracts.
var (
	_ adapter.Adapter             = (*Adapter)(nil)
	_ adapter.ParquetMaterializer = (*Adapter)(nil)
)
