package ui

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/dataset"
	"github.com/brdatalab/cnpjkit/internal/ingest"
	"github.com/brdatalab/cnpjkit/internal/search"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const sessionName = "cnpjkit_ui"

func (s *Server) routes(r chi.Router) {
	r.Get("/", s.handleIndex)
	r.Get("/events", s.handleEvents)

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
		r.Get("/tables/{table}", s.handleTablePreview)
		r.Get("/search", s.handleSearch)
		r.Post("/prepare", s.handlePrepare)
	})
}

type indexData struct {
	Datasets   []datasetInfo
	Records    []*catalog.Record
	LastSearch search.Filter
}

type datasetInfo struct {
	Name      string `json:"name"`
	Hint      string `json:"hint"`
	MultiPart bool   `json:"multi_part"`
	Domain    bool   `json:"domain"`
	Prepared  bool   `json:"prepared"`
	MonthRef  string `json:"month_ref,omitempty"`
	RowCount  int64  `json:"row_count,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecords(catalog.ListFilter{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := indexData{
		Datasets: allDatasets(),
		Records:  records,
	}
	data.LastSearch = s.lastSearch(r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render index", "error", err)
	}
}

// handleEvents streams catalog change notifications. Clients reload their
// data when a signal patch arrives.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			signals := fmt.Sprintf(`{"catalogVersion": %d}`, time.Now().UnixMilli())
			if err := sse.PatchSignals([]byte(signals)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.store.ListRecords(catalog.ListFilter{
		Dataset:  q.Get("dataset"),
		MonthRef: q.Get("month"),
		Search:   q.Get("search"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleDatasets lists the registry annotated with each dataset's load
// status from the catalog.
func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	infos := allDatasets()

	records, err := s.store.ListRecords(catalog.ListFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	byDataset := make(map[string]*catalog.Record, len(records))
	for _, rec := range records {
		byDataset[rec.Dataset] = rec
	}
	for i := range infos {
		if rec, ok := byDataset[infos[i].Name]; ok {
			infos[i].Prepared = true
			infos[i].MonthRef = rec.MonthRef
			infos[i].RowCount = rec.RowCount
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.RecentRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	datasetRuns, err := s.store.DatasetRunsForRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":      run,
		"datasets": datasetRuns,
	})
}

func (s *Server) handleTablePreview(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !tablePattern.MatchString(table) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid table name: %s", table))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > s.previewLimit {
		limit = s.previewLimit
	}

	meta, err := s.adapter.GetTableMetadata(r.Context(), table)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	rows, err := s.adapter.Query(r.Context(), fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer func() { _ = rows.Close() }()

	rs, err := adapter.CollectRows(rows, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns":   rs.Columns,
		"rows":      rs.Rows,
		"row_count": meta.RowCount,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := search.Filter{
		CNPJ:      q.Get("cnpj"),
		Name:      q.Get("name"),
		UF:        q.Get("uf"),
		Municipio: q.Get("municipio"),
		CNAE:      q.Get("cnae"),
		Limit:     limit,
	}

	companies, err := s.searcher.Companies(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.rememberSearch(w, r, filter)

	type result struct {
		search.Company
		CNPJFormatted string `json:"cnpj_formatted"`
	}
	results := make([]result, 0, len(companies))
	for _, c := range companies {
		results = append(results, result{Company: c, CNPJFormatted: c.Formatted()})
	}
	writeJSON(w, http.StatusOK, results)
}

type prepareRequest struct {
	Dataset string `json:"dataset"`
	Year    int    `json:"year"`
	Month   int    `json:"month"`
}

// handlePrepare kicks off a dataset load in the background and returns the
// run ID immediately. Progress lands in the catalog; clients pick it up
// through /events.
func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	ds, err := dataset.Get(req.Dataset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	run, err := s.store.CreateRun("prepare")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	go func() {
		// Detached from the request context so the load survives the
		// HTTP response.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()

		src := ingest.Source{Kind: ingest.SourceURL, Year: req.Year, Month: req.Month}
		_, err := s.pipeline.Prepare(ctx, run.ID, ds, src, nil)
		if err != nil {
			s.logger.Error("prepare failed", "dataset", ds.Name, "run", run.ID, "error", err)
			_ = s.store.CompleteRun(run.ID, catalog.RunStatusFailed, err.Error())
		} else {
			_ = s.store.CompleteRun(run.ID, catalog.RunStatusCompleted, "")
		}
		s.notifier.Broadcast()
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// lastSearch restores the previous search filter from the session.
func (s *Server) lastSearch(r *http.Request) search.Filter {
	session, err := s.sessionStore.Get(r, sessionName)
	if err != nil {
		return search.Filter{}
	}
	raw, ok := session.Values["last_search"].(string)
	if !ok {
		return search.Filter{}
	}
	var f search.Filter
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return search.Filter{}
	}
	return f
}

func (s *Server) rememberSearch(w http.ResponseWriter, r *http.Request, f search.Filter) {
	session, err := s.sessionStore.Get(r, sessionName)
	if err != nil {
		return
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	session.Values["last_search"] = string(raw)
	if err := session.Save(r, w); err != nil {
		s.logger.Debug("failed to save session", "error", err)
	}
}

func allDatasets() []datasetInfo {
	names := dataset.Names()
	infos := make([]datasetInfo, 0, len(names))
	for _, name := range names {
		ds, err := dataset.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, datasetInfo{
			Name:      ds.Name,
			Hint:      ds.Hint,
			MultiPart: ds.MultiPart,
			Domain:    ds.Domain,
		})
	}
	return infos
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
