// Package postgres provides the PostgreSQL warehouse adapter for cnpjkit.
package postgres

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brdatalab/cnpjkit/pkg/adapter"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

// Adapter implements adapter.Adapter for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance. A nil logger is replaced
// with a discard logger.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the PostgreSQL SQL dialect.
func (a *Adapter) Dialect() adapter.Dialect {
	return adapter.Dialect{Name: "postgres", DefaultSchema: "public", PositionalPlaceholders: true}
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildDSN(cfg)

	a.Logger.Debug("connecting to postgres",
		slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildDSN constructs a key=value PostgreSQL connection string.
func buildDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

// GetTableMetadata retrieves metadata for a table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return a.TableMetadataCommon(ctx, table, a.Dialect())
}

// LoadCSV creates an all-TEXT table from the file header and inserts the
// rows. Postgres has no Parquet path, so the ingest pipeline falls back to
// this for postgres targets.
func (a *Adapter) LoadCSV(ctx context.Context, table, path string, opts adapter.CSVOptions) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	file, err := os.Open(absPath) //nolint:gosec // path comes from the ingest pipeline
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	if !opts.Header {
		return fmt.Errorf("postgres target requires a header row")
	}

	if err := a.createTextTable(ctx, table, headers); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if err := a.insertRows(ctx, table, len(headers), reader); err != nil {
		return fmt.Errorf("failed to insert rows: %w", err)
	}
	return nil
}

// createTextTable drops and recreates a table with all TEXT columns.
func (a *Adapter) createTextTable(ctx context.Context, table string, columns []string) error {
	safeTable := quoteIdentifier(table)
	if _, err := a.DB.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", safeTable)); err != nil {
		return err
	}

	colDefs := make([]string, 0, len(columns))
	for _, col := range columns {
		colDefs = append(colDefs, fmt.Sprintf("%s TEXT", quoteIdentifier(col)))
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", safeTable, strings.Join(colDefs, ", "))
	_, err := a.DB.ExecContext(ctx, createSQL)
	return err
}

// insertRows streams the remaining CSV records in batched multi-row inserts.
func (a *Adapter) insertRows(ctx context.Context, table string, colCount int, reader *csv.Reader) error {
	const batchSize = 500

	placeholderRow := func(base int) string {
		ph := make([]string, colCount)
		for i := range ph {
			ph[i] = fmt.Sprintf("$%d", base+i+1)
		}
		return "(" + strings.Join(ph, ", ") + ")"
	}

	batch := make([]any, 0, batchSize*colCount)
	rowsInBatch := 0

	flush := func() error {
		if rowsInBatch == 0 {
			return nil
		}
		valueRows := make([]string, rowsInBatch)
		for i := range valueRows {
			valueRows[i] = placeholderRow(i * colCount)
		}
		//nolint:gosec // identifier is quoted, values are bound
		insertSQL := fmt.Sprintf("INSERT INTO %s VALUES %s",
			quoteIdentifier(table), strings.Join(valueRows, ", "))
		if _, err := a.DB.ExecContext(ctx, insertSQL, batch...); err != nil {
			return err
		}
		batch = batch[:0]
		rowsInBatch = 0
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}
		for i := 0; i < colCount; i++ {
			if i < len(record) {
				batch = append(batch, record[i])
			} else {
				batch = append(batch, nil)
			}
		}
		rowsInBatch++
		if rowsInBatch >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// quoteIdentifier double-quotes an identifier, escaping embedded quotes.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var _ adapter.Adapter = (*Adapter)(nil)
