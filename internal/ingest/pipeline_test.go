package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/dataset"
	"github.com/brdatalab/cnpjkit/internal/rfb"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// fakeAdapter loads CSVs into memory. It does not speak Parquet, so the
// pipeline takes the LoadCSV fallback.
type fakeAdapter struct {
	tables   map[string]int64 // table -> row count
	failLoad bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{tables: make(map[string]int64)}
}

func (f *fakeAdapter) Connect(ctx context.Context, cfg adapter.Config) error { return nil }
func (f *fakeAdapter) Close() error                                          { return nil }
func (f *fakeAdapter) Exec(ctx context.Context, query string, args ...any) error {
	return nil
}
func (f *fakeAdapter) Query(ctx context.Context, query string, args ...any) (*adapter.Rows, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeAdapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	count, ok := f.tables[table]
	if !ok {
		return nil, &adapter.TableNotFoundError{Table: table}
	}
	return &adapter.Metadata{Name: table, RowCount: count}, nil
}
func (f *fakeAdapter) LoadCSV(ctx context.Context, table, path string, opts adapter.CSVOptions) error {
	if f.failLoad {
		return fmt.Errorf("load rejected")
	}
	rows, err := countDataRows(path)
	if err != nil {
		return err
	}
	f.tables[table] = rows
	return nil
}
func (f *fakeAdapter) Dialect() adapter.Dialect {
	return adapter.Dialect{Name: "fake", DefaultSchema: "main"}
}

// fakeParquetAdapter adds the Parquet path on top of fakeAdapter.
type fakeParquetAdapter struct {
	*fakeAdapter
	parquetFiles map[string]string // table -> parquet path
}

func newFakeParquetAdapter() *fakeParquetAdapter {
	return &fakeParquetAdapter{
		fakeAdapter:  newFakeAdapter(),
		parquetFiles: make(map[string]string),
	}
}

func (f *fakeParquetAdapter) CopyCSVToParquet(ctx context.Context, csvPath, parquetPath string, opts adapter.CSVOptions) (int64, error) {
	rows, err := countDataRows(csvPath)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(parquetPath, []byte("parquet-stub"), 0o644); err != nil {
		return 0, err
	}
	return rows, nil
}

func (f *fakeParquetAdapter) CreateTableFromParquet(ctx context.Context, table, parquetPath string) error {
	f.parquetFiles[table] = parquetPath
	f.tables[table] = 1 // presence marker
	return nil
}

func countDataRows(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	lines := strings.Count(string(data), "\n")
	if lines > 0 {
		lines-- // header
	}
	return int64(lines), nil
}

func buildZip(t *testing.T, member string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(member)
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func setupPipeline(t *testing.T, a adapter.Adapter, client *rfb.Client) (*Pipeline, catalog.Store) {
	t.Helper()
	store := catalog.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	p := New(Options{
		Adapter: a,
		Store:   store,
		Client:  client,
		DataDir: t.TempDir(),
	})
	return p, store
}

func startRun(t *testing.T, store catalog.Store) string {
	t.Helper()
	run, err := store.CreateRun("prepare")
	require.NoError(t, err)
	return run.ID
}

func TestPipeline_PrepareFromCSV(t *testing.T) {
	fa := newFakeParquetAdapter()
	p, store := setupPipeline(t, fa, nil)
	runID := startRun(t, store)

	csvPath := writeTempFile(t, "cnaes.csv", []byte("CODIGO;DESCRICAO\n0111301;Cultivo de arroz\n0111302;Cultivo de milho\n"))
	ds, err := dataset.Get("cnaes")
	require.NoError(t, err)

	res, err := p.Prepare(context.Background(), runID, ds, Source{Kind: SourceCSV, Path: csvPath}, nil)
	require.NoError(t, err)

	assert.Equal(t, "cnaes", res.Table)
	assert.Equal(t, int64(2), res.RowsLoaded)
	assert.NotEmpty(t, res.ParquetPath)
	assert.FileExists(t, res.ParquetPath)
	assert.Equal(t, res.ParquetPath, fa.parquetFiles["cnaes"])

	rec, err := store.GetRecord("cnaes")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "csv", rec.Source)
	assert.Equal(t, int64(2), rec.RowCount)

	runs, err := store.DatasetRunsForRun(runID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, catalog.DatasetRunStatusSuccess, runs[0].Status)
}

func TestPipeline_PrepareFromZip(t *testing.T) {
	fa := newFakeAdapter()
	p, store := setupPipeline(t, fa, nil)
	runID := startRun(t, store)

	// Latin-1 content inside a ZIP whose member name matches the dataset
	// keywords.
	content := []byte("CODIGO;DESCRICAO\n105;ANTIGUA E BARBUDA\n117;ALB\xc2NIA\n")
	zipData := buildZip(t, "F.K03200$Z.D30513.PAISCSV", content)
	zipPath := writeTempFile(t, "Paises.zip", zipData)

	ds, err := dataset.Get("paises")
	require.NoError(t, err)

	res, err := p.Prepare(context.Background(), runID, ds, Source{Kind: SourceZip, Path: zipPath}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.RowsLoaded)
	assert.Empty(t, res.ParquetPath) // fallback path, no parquet output
	assert.Equal(t, int64(2), fa.tables["paises"])
}

func TestPipeline_PrepareFromURL_MultiPart(t *testing.T) {
	part0 := buildZip(t, "K3241.K03200Y0.D30513.EMPRECSV", []byte("CNPJ BASICO;RAZAO SOCIAL\n00000000;ACME LTDA\n"))
	part1 := buildZip(t, "K3241.K03200Y1.D30513.EMPRECSV", []byte("CNPJ BASICO;RAZAO SOCIAL\n11111111;BETA SA\n"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2023-05/Empresas0.zip":
			_, _ = w.Write(part0)
		case "/2023-05/Empresas1.zip":
			_, _ = w.Write(part1)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := rfb.NewClient(rfb.Options{BaseURL: srv.URL})
	p, store := setupPipeline(t, newFakeAdapter(), client)
	runID := startRun(t, store)

	ds, err := dataset.Get("empresas")
	require.NoError(t, err)

	res, err := p.Prepare(context.Background(), runID, ds, Source{Kind: SourceURL, Year: 2023, Month: 5}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.RowsLoaded) // both parts, one header
	assert.Equal(t, "2023-05", res.MonthRef)
	assert.Contains(t, res.SourceURL, "Empresas0.zip")

	rec, err := store.GetRecord("empresas")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "url", rec.Source)
	assert.Equal(t, "2023-05", rec.MonthRef)
}

func TestPipeline_PrepareFromURL_NotPublished(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := rfb.NewClient(rfb.Options{BaseURL: srv.URL})
	p, store := setupPipeline(t, newFakeAdapter(), client)
	runID := startRun(t, store)

	ds, err := dataset.Get("simples")
	require.NoError(t, err)

	_, err = p.Prepare(context.Background(), runID, ds, Source{Kind: SourceURL, Year: 2023, Month: 5}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rfb.ErrNotFound))

	runs, err := store.DatasetRunsForRun(runID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, catalog.DatasetRunStatusSkipped, runs[0].Status)
}

func TestPipeline_PrepareLoadFailure(t *testing.T) {
	fa := newFakeAdapter()
	fa.failLoad = true
	p, store := setupPipeline(t, fa, nil)
	runID := startRun(t, store)

	csvPath := writeTempFile(t, "cnaes.csv", []byte("CODIGO;DESCRICAO\n0111301;Cultivo de arroz\n"))
	ds, err := dataset.Get("cnaes")
	require.NoError(t, err)

	_, err = p.Prepare(context.Background(), runID, ds, Source{Kind: SourceCSV, Path: csvPath}, nil)
	require.Error(t, err)

	runs, err := store.DatasetRunsForRun(runID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, catalog.DatasetRunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Message, "load rejected")

	rec, err := store.GetRecord("cnaes")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPipeline_PrepareEmptySource(t *testing.T) {
	p, store := setupPipeline(t, newFakeAdapter(), nil)
	runID := startRun(t, store)

	csvPath := writeTempFile(t, "cnaes.csv", []byte("CODIGO;DESCRICAO\n"))
	ds, err := dataset.Get("cnaes")
	require.NoError(t, err)

	_, err = p.Prepare(context.Background(), runID, ds, Source{Kind: SourceCSV, Path: csvPath}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rows loaded")
}

func TestPipeline_SourceTooLarge(t *testing.T) {
	store := catalog.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	p := New(Options{
		Adapter:        newFakeAdapter(),
		Store:          store,
		DataDir:        t.TempDir(),
		MaxSourceBytes: 8,
	})
	runID := startRun(t, store)

	csvPath := writeTempFile(t, "cnaes.csv", []byte("CODIGO;DESCRICAO\n0111301;Cultivo de arroz\n"))
	ds, err := dataset.Get("cnaes")
	require.NoError(t, err)

	_, err = p.Prepare(context.Background(), runID, ds, Source{Kind: SourceCSV, Path: csvPath}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestPipeline_InvalidMonth(t *testing.T) {
	p, store := setupPipeline(t, newFakeAdapter(), nil)
	runID := startRun(t, store)

	ds, err := dataset.Get("cnaes")
	require.NoError(t, err)

	_, err = p.Prepare(context.Background(), runID, ds, Source{Kind: SourceURL, Year: 2023, Month: 13}, nil)
	require.Error(t, err)
}

func TestPipeline_Wizard(t *testing.T) {
	cnaes := buildZip(t, "F.K03200$Z.D30513.CNAECSV", []byte("CODIGO;DESCRICAO\n0111301;Cultivo de arroz\n"))
	munic := buildZip(t, "F.K03200$Z.D30513.MUNICCSV", []byte("CODIGO;DESCRICAO\n7107;SAO PAULO\n"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2023-05/Cnaes.zip":
			_, _ = w.Write(cnaes)
		case "/2023-05/Municipios.zip":
			_, _ = w.Write(munic)
		default:
			// paises never published for this month
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := rfb.NewClient(rfb.Options{BaseURL: srv.URL})
	p, store := setupPipeline(t, newFakeAdapter(), client)

	report, err := p.Wizard(context.Background(), WizardOptions{
		Year:        2023,
		Month:       5,
		Datasets:    []string{"cnaes", "municipios", "paises"},
		Concurrency: 2,
	})
	require.NoError(t, err)
	require.Len(t, report.Entries, 3)
	assert.Equal(t, "2023-05", report.MonthRef)
	assert.False(t, report.Failed())

	byName := map[string]Entry{}
	for _, e := range report.Entries {
		byName[e.Dataset] = e
	}
	assert.Equal(t, EntryOK, byName["cnaes"].Status)
	assert.Equal(t, EntryOK, byName["municipios"].Status)
	assert.Equal(t, EntryWarn, byName["paises"].Status)

	run, err := store.GetRun(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, catalog.RunStatusCompleted, run.Status)

	drs, err := store.DatasetRunsForRun(report.RunID)
	require.NoError(t, err)
	assert.Len(t, drs, 3)
}

func TestPipeline_WizardFailureDoesNotAbortSiblings(t *testing.T) {
	cnaes := buildZip(t, "F.K03200$Z.D30513.CNAECSV", []byte("CODIGO;DESCRICAO\n0111301;Cultivo de arroz\n"))
	// municipios content is header only, so the load reports zero rows
	munic := buildZip(t, "F.K03200$Z.D30513.MUNICCSV", []byte("CODIGO;DESCRICAO\n"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2023-05/Cnaes.zip":
			_, _ = w.Write(cnaes)
		case "/2023-05/Municipios.zip":
			_, _ = w.Write(munic)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := rfb.NewClient(rfb.Options{BaseURL: srv.URL})
	p, store := setupPipeline(t, newFakeAdapter(), client)

	report, err := p.Wizard(context.Background(), WizardOptions{
		Year:     2023,
		Month:    5,
		Datasets: []string{"cnaes", "municipios"},
	})
	require.NoError(t, err)
	require.Len(t, report.Entries, 2)
	assert.True(t, report.Failed())

	byName := map[string]Entry{}
	for _, e := range report.Entries {
		byName[e.Dataset] = e
	}
	assert.Equal(t, EntryOK, byName["cnaes"].Status)
	assert.Equal(t, EntryError, byName["municipios"].Status)

	run, err := store.GetRun(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, catalog.RunStatusFailed, run.Status)
}

func TestPipeline_WizardUnknownDataset(t *testing.T) {
	p, _ := setupPipeline(t, newFakeAdapter(), nil)

	_, err := p.Wizard(context.Background(), WizardOptions{
		Year:     2023,
		Month:    5,
		Datasets: []string{"nope"},
	})
	require.Error(t, err)
}
