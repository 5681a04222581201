package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brdatalab/cnpjkit/internal/archive"
	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/dataset"
	"github.com/brdatalab/cnpjkit/internal/rfb"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// DefaultMaxSourceBytes caps individual source files at 500 MB.
const DefaultMaxSourceBytes = 500 * 1024 * 1024

// SourceKind identifies where a dataset load comes from.
type SourceKind string

const (
	SourceURL SourceKind = "url" // download from the RFB file server
	SourceZip SourceKind = "zip" // local ZIP package
	SourceCSV SourceKind = "csv" // local delimited file
)

// Source describes the input of one dataset load.
type Source struct {
	Kind SourceKind

	// Year and Month select the RFB monthly directory (Kind == SourceURL).
	Year  int
	Month int

	// Path is the local file (Kind == SourceZip or SourceCSV).
	Path string

	// Delimiter overrides the field separator. Zero means ';'.
	Delimiter rune
}

// Result summarizes a successful dataset load.
type Result struct {
	Dataset     string        `json:"dataset"`
	Table       string        `json:"table"`
	MonthRef    string        `json:"month_ref,omitempty"`
	SourceURL   string        `json:"source_url,omitempty"`
	ParquetPath string        `json:"parquet_path,omitempty"`
	RowsLoaded  int64         `json:"rows_loaded"`
	Duration    time.Duration `json:"duration"`
}

// Options configures a Pipeline.
type Options struct {
	Adapter adapter.Adapter
	Store   catalog.Store
	Client  *rfb.Client

	// DataDir is where downloads, extracted files and Parquet output live.
	DataDir string

	// MaxSourceBytes caps each source file. Zero means DefaultMaxSourceBytes.
	MaxSourceBytes int64

	Logger *slog.Logger
}

// Pipeline runs dataset loads end to end and records them in the catalog.
type Pipeline struct {
	adapter        adapter.Adapter
	store          catalog.Store
	client         *rfb.Client
	dataDir        string
	maxSourceBytes int64
	logger         *slog.Logger
}

// New creates a Pipeline. Adapter, Store and DataDir are required; Client
// is only needed for SourceURL loads.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxBytes := opts.MaxSourceBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSourceBytes
	}
	return &Pipeline{
		adapter:        opts.Adapter,
		store:          opts.Store,
		client:         opts.Client,
		dataDir:        opts.DataDir,
		maxSourceBytes: maxBytes,
		logger:         logger,
	}
}

// Prepare loads one dataset from the given source into the warehouse,
// recording the outcome under runID. Progress may be nil.
func (p *Pipeline) Prepare(ctx context.Context, runID string, ds dataset.Dataset, src Source, progress rfb.ProgressFunc) (*Result, error) {
	start := time.Now()

	monthRef := ""
	if src.Kind == SourceURL {
		if err := rfb.ValidateMonth(src.Year, src.Month); err != nil {
			return nil, err
		}
		monthRef = rfb.MonthRef(src.Year, src.Month)
	}

	dr, err := p.store.CreateDatasetRun(runID, ds.Name, monthRef, "")
	if err != nil {
		return nil, err
	}

	res, sourceURL, err := p.run(ctx, ds, src, monthRef, progress)
	elapsed := time.Since(start)
	if err != nil {
		status := catalog.DatasetRunStatusFailed
		if errors.Is(err, rfb.ErrNotFound) {
			status = catalog.DatasetRunStatusSkipped
		}
		if trackErr := p.store.UpdateDatasetRun(dr.ID, status, err.Error(), 0, elapsed.Milliseconds()); trackErr != nil {
			p.logger.Warn("failed to record dataset run outcome", "dataset", ds.Name, "error", trackErr)
		}
		return nil, err
	}

	res.Duration = elapsed
	res.SourceURL = sourceURL
	if err := p.store.UpdateDatasetRun(dr.ID, catalog.DatasetRunStatusSuccess, "", res.RowsLoaded, elapsed.Milliseconds()); err != nil {
		p.logger.Warn("failed to record dataset run outcome", "dataset", ds.Name, "error", err)
	}

	rec := &catalog.Record{
		Dataset:     ds.Name,
		MonthRef:    monthRef,
		Source:      string(src.Kind),
		SourceURL:   sourceURL,
		ParquetPath: res.ParquetPath,
		RowCount:    res.RowsLoaded,
		PreparedAt:  time.Now().UTC(),
	}
	if err := p.store.UpsertRecord(rec); err != nil {
		return nil, fmt.Errorf("failed to update catalog for %s: %w", ds.Name, err)
	}

	p.logger.Info("dataset prepared",
		"dataset", ds.Name,
		"rows", res.RowsLoaded,
		"duration", elapsed.Round(time.Millisecond))
	return res, nil
}

// run does the actual download/extract/transcode/materialize work and
// returns the result plus the source URL used (empty for local sources).
func (p *Pipeline) run(ctx context.Context, ds dataset.Dataset, src Source, monthRef string, progress rfb.ProgressFunc) (*Result, string, error) {
	workDir, err := p.makeWorkDir(ds.Name)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	var csvPaths []string
	var sourceURL string

	switch src.Kind {
	case SourceURL:
		if p.client == nil {
			return nil, "", fmt.Errorf("no download client configured")
		}
		urls, err := p.client.ListParts(ctx, src.Year, src.Month, ds)
		if err != nil {
			return nil, "", err
		}
		if len(urls) == 0 {
			return nil, "", fmt.Errorf("dataset %s not published for %s: %w", ds.Name, monthRef, rfb.ErrNotFound)
		}
		sourceURL = urls[0]
		for i, url := range urls {
			zipPath := filepath.Join(workDir, fmt.Sprintf("%s-%d.zip", ds.Name, i))
			if err := p.client.Download(ctx, url, zipPath, progress); err != nil {
				return nil, "", err
			}
			path, err := p.extractAndTranscode(zipPath, workDir, ds, i)
			if err != nil {
				return nil, "", fmt.Errorf("%s: %w", url, err)
			}
			csvPaths = append(csvPaths, path)
		}

	case SourceZip:
		path, err := p.extractAndTranscode(src.Path, workDir, ds, 0)
		if err != nil {
			return nil, "", err
		}
		csvPaths = append(csvPaths, path)

	case SourceCSV:
		if err := p.checkSize(src.Path); err != nil {
			return nil, "", err
		}
		utf8Path := filepath.Join(workDir, ds.Name+"-0.utf8.csv")
		if err := TranscodeFile(src.Path, utf8Path); err != nil {
			return nil, "", err
		}
		csvPaths = append(csvPaths, utf8Path)

	default:
		return nil, "", fmt.Errorf("unknown source kind %q", src.Kind)
	}

	csvPath := csvPaths[0]
	if len(csvPaths) > 1 {
		csvPath = filepath.Join(workDir, ds.Name+".utf8.csv")
		if err := mergeCSV(csvPaths, csvPath); err != nil {
			return nil, "", err
		}
	}

	res, err := p.materialize(ctx, ds, src, csvPath)
	if err != nil {
		return nil, "", err
	}
	res.MonthRef = monthRef
	return res, sourceURL, nil
}

// extractAndTranscode pulls the tabular member out of a ZIP and writes a
// UTF-8 copy of it in workDir.
func (p *Pipeline) extractAndTranscode(zipPath, workDir string, ds dataset.Dataset, part int) (string, error) {
	if err := p.checkSize(zipPath); err != nil {
		return "", err
	}
	member, err := archive.ExtractTabular(zipPath, workDir, ds.Keywords)
	if err != nil {
		return "", err
	}
	utf8Path := filepath.Join(workDir, fmt.Sprintf("%s-%d.utf8.csv", ds.Name, part))
	if err := TranscodeFile(member, utf8Path); err != nil {
		return "", err
	}
	_ = os.Remove(member)
	return utf8Path, nil
}

// materialize converts the delimited file to Parquet and builds the table,
// falling back to a direct CSV load when the adapter cannot write Parquet.
func (p *Pipeline) materialize(ctx context.Context, ds dataset.Dataset, src Source, csvPath string) (*Result, error) {
	opts := adapter.CSVOptions{
		Delimiter:  src.Delimiter,
		Header:     true,
		AllVarchar: true,
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ';'
	}

	res := &Result{Dataset: ds.Name, Table: ds.Name}

	if pm, ok := p.adapter.(adapter.ParquetMaterializer); ok {
		parquetDir := filepath.Join(p.dataDir, "parquet")
		if err := os.MkdirAll(parquetDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create parquet directory: %w", err)
		}
		parquetPath := filepath.Join(parquetDir, ds.Name+".parquet")

		rows, err := pm.CopyCSVToParquet(ctx, csvPath, parquetPath, opts)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, fmt.Errorf("no rows loaded for dataset %s", ds.Name)
		}
		if err := pm.CreateTableFromParquet(ctx, ds.Name, parquetPath); err != nil {
			return nil, err
		}
		res.ParquetPath = parquetPath
		res.RowsLoaded = rows
		return res, nil
	}

	if err := p.adapter.LoadCSV(ctx, ds.Name, csvPath, opts); err != nil {
		return nil, err
	}
	meta, err := p.adapter.GetTableMetadata(ctx, ds.Name)
	if err != nil {
		return nil, err
	}
	if meta.RowCount == 0 {
		return nil, fmt.Errorf("no rows loaded for dataset %s", ds.Name)
	}
	res.RowsLoaded = meta.RowCount
	return res, nil
}

func (p *Pipeline) makeWorkDir(name string) (string, error) {
	tmpRoot := filepath.Join(p.dataDir, "tmp")
	if err := os.MkdirAll(tmpRoot, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	workDir, err := os.MkdirTemp(tmpRoot, name+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	return workDir, nil
}

func (p *Pipeline) checkSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > p.maxSourceBytes {
		return fmt.Errorf("source file %s is %d bytes, exceeds the %d byte limit",
			filepath.Base(path), info.Size(), p.maxSourceBytes)
	}
	return nil
}

// mergeCSV concatenates part files into dst, keeping only the first part's
// header row.
func mergeCSV(paths []string, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	for i, path := range paths {
		if err := appendCSV(out, path, i > 0); err != nil {
			_ = out.Close()
			return err
		}
	}
	return out.Close()
}

func appendCSV(out io.Writer, path string, skipHeader bool) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = in.Close() }()

	var reader io.Reader = in
	if skipHeader {
		if err := discardLine(in); err != nil {
			return fmt.Errorf("failed to skip header in %s: %w", path, err)
		}
		reader = in
	}
	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("failed to append %s: %w", path, err)
	}
	return nil
}

func discardLine(f *os.File) error {
	buf := make([]byte, 4096)
	offset := int64(0)
	for {
		n, err := f.ReadAt(buf, offset)
		for i := range n {
			if buf[i] == '\n' {
				_, err := f.Seek(offset+int64(i)+1, io.SeekStart)
				return err
			}
		}
		offset += int64(n)
		if err == io.EOF {
			_, serr := f.Seek(0, io.SeekEnd)
			return serr
		}
		if err != nil {
			return err
		}
	}
}
