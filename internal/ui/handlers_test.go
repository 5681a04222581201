package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/testutil"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// mockAdapter runs queries against a sqlmock connection.
type mockAdapter struct {
	adapter.BaseSQLAdapter
	missingTables map[string]bool
}

func (m *mockAdapter) Connect(ctx context.Context, cfg adapter.Config) error { return nil }
func (m *mockAdapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	if m.missingTables[table] {
		return nil, &adapter.TableNotFoundError{Table: table}
	}
	return &adapter.Metadata{Name: table, RowCount: 42}, nil
}
func (m *mockAdapter) LoadCSV(ctx context.Context, table, path string, opts adapter.CSVOptions) error {
	return nil
}
func (m *mockAdapter) Dialect() adapter.Dialect {
	return adapter.Dialect{Name: "duckdb", DefaultSchema: "main"}
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock, *catalog.SQLiteStore) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a := &mockAdapter{missingTables: map[string]bool{}}
	a.DB = db

	store := catalog.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	srv := NewServer(Config{
		Store:         store,
		Adapter:       a,
		Listen:        ":0",
		PreviewLimit:  10,
		SessionSecret: "test-secret",
		Logger:        testutil.NewTestLogger(t),
	})
	return srv, mock, store
}

func newTestMux(srv *Server) *chi.Mux {
	r := chi.NewMux()
	srv.routes(r)
	return r
}

func TestHandleIndex(t *testing.T) {
	srv, _, store := newTestServer(t)
	require.NoError(t, store.UpsertRecord(&catalog.Record{
		Dataset:  "empresas",
		MonthRef: "2024-05",
		Source:   "url",
		RowCount: 100,
	}))

	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "empresas")
	assert.Contains(t, body, "2024-05")
	assert.Contains(t, body, "Consulta geral")
}

func TestHandleCatalog(t *testing.T) {
	srv, _, store := newTestServer(t)
	require.NoError(t, store.UpsertRecord(&catalog.Record{Dataset: "cnaes", Source: "url", RowCount: 1358}))
	require.NoError(t, store.UpsertRecord(&catalog.Record{Dataset: "empresas", Source: "url", RowCount: 100}))

	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog?dataset=cnaes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var records []*catalog.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "cnaes", records[0].Dataset)
	assert.Equal(t, int64(1358), records[0].RowCount)
}

func TestHandleDatasets(t *testing.T) {
	srv, _, store := newTestServer(t)
	require.NoError(t, store.UpsertRecord(&catalog.Record{
		Dataset:  "empresas",
		MonthRef: "2024-05",
		Source:   "url",
		RowCount: 100,
	}))

	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var infos []datasetInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.NotEmpty(t, infos)

	byName := make(map[string]datasetInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}
	require.Contains(t, byName, "empresas")
	require.Contains(t, byName, "estabelecimentos")

	assert.True(t, byName["empresas"].Prepared)
	assert.Equal(t, "2024-05", byName["empresas"].MonthRef)
	assert.False(t, byName["estabelecimentos"].Prepared)
}

func TestHandleRuns(t *testing.T) {
	srv, _, store := newTestServer(t)
	run, err := store.CreateRun("wizard")
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(run.ID, catalog.RunStatusCompleted, ""))

	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []*catalog.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, catalog.RunStatusCompleted, runs[0].Status)
}

func TestHandleRunDetail(t *testing.T) {
	srv, _, store := newTestServer(t)
	run, err := store.CreateRun("prepare")
	require.NoError(t, err)
	_, err = store.CreateDatasetRun(run.ID, "empresas", "2024-05", "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Run      *catalog.Run          `json:"run"`
		Datasets []*catalog.DatasetRun `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, run.ID, detail.Run.ID)
	require.Len(t, detail.Datasets, 1)
	assert.Equal(t, "empresas", detail.Datasets[0].Dataset)
}

func TestHandleRunNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTablePreview(t *testing.T) {
	srv, mock, _ := newTestServer(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM cnaes LIMIT 10")).
		WillReturnRows(sqlmock.NewRows([]string{"codigo", "descricao"}).
			AddRow("6201501", "Desenvolvimento de programas"))

	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables/cnaes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var preview struct {
		Columns  []string   `json:"columns"`
		Rows     [][]string `json:"rows"`
		RowCount int64      `json:"row_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, []string{"codigo", "descricao"}, preview.Columns)
	require.Len(t, preview.Rows, 1)
	assert.Equal(t, int64(42), preview.RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleTablePreviewInvalidName(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tables/cnaes%3BDROP", nil)
	newTestMux(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch(t *testing.T) {
	srv, mock, _ := newTestServer(t)

	cols := []string{"cnpj14", "razao_social", "nome_fantasia", "uf", "municipio", "cnae_principal", "cnae_secundaria"}
	mock.ExpectQuery(regexp.QuoteMeta("WITH est AS")).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("11222333000181", "ACME LTDA", "ACME", "SP", "7107", "6201501", nil))

	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?name=acme", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "11.222.333/0001-81", results[0]["cnpj_formatted"])
	assert.Equal(t, "ACME LTDA", results[0]["razao_social"])

	// The filter is remembered in the session cookie.
	assert.NotEmpty(t, rec.Header().Get("Set-Cookie"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlePrepareUnknownDataset(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := strings.NewReader(`{"dataset": "nope", "year": 2024, "month": 5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/prepare", body)
	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePrepareBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/prepare", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	newTestMux(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
