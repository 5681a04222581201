package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/dataset"
	"github.com/brdatalab/cnpjkit/internal/rfb"
)

// EntryStatus classifies a wizard outcome per dataset.
type EntryStatus string

const (
	EntryOK    EntryStatus = "ok"    // loaded
	EntryWarn  EntryStatus = "warn"  // not published for the month
	EntryError EntryStatus = "error" // load failed
)

// Entry is the wizard outcome for one dataset.
type Entry struct {
	Dataset    string      `json:"dataset"`
	Status     EntryStatus `json:"status"`
	RowsLoaded int64       `json:"rows_loaded,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// WizardOptions configures a full-month sweep.
type WizardOptions struct {
	Year  int
	Month int

	// Datasets to load. Empty means dataset.DefaultSelection().
	Datasets []string

	// Concurrency is the number of datasets loaded in parallel,
	// clamped to [1, 10]. Zero means 3.
	Concurrency int

	Progress rfb.ProgressFunc
}

// WizardReport is the complete outcome of a sweep.
type WizardReport struct {
	RunID    string  `json:"run_id"`
	MonthRef string  `json:"month_ref"`
	Entries  []Entry `json:"entries"`
}

// Failed reports whether any dataset errored (warnings do not count).
func (r *WizardReport) Failed() bool {
	for _, e := range r.Entries {
		if e.Status == EntryError {
			return true
		}
	}
	return false
}

// Wizard downloads and loads a month's datasets in parallel. A failing
// dataset never aborts its siblings; every outcome lands in the report.
// The returned error covers setup problems only.
func (p *Pipeline) Wizard(ctx context.Context, opts WizardOptions) (*WizardReport, error) {
	if err := rfb.ValidateMonth(opts.Year, opts.Month); err != nil {
		return nil, err
	}

	names := opts.Datasets
	if len(names) == 0 {
		names = dataset.DefaultSelection()
	}
	datasets, err := dataset.Resolve(names)
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = 3
	}
	concurrency = min(max(concurrency, 1), 10)

	run, err := p.store.CreateRun("wizard")
	if err != nil {
		return nil, err
	}

	report := &WizardReport{
		RunID:    run.ID,
		MonthRef: rfb.MonthRef(opts.Year, opts.Month),
	}

	p.logger.Info("wizard started",
		"month", report.MonthRef,
		"datasets", len(datasets),
		"concurrency", concurrency)

	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, ds := range datasets {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			entry := p.sweepOne(gctx, run.ID, ds, opts)

			mu.Lock()
			report.Entries = append(report.Entries, entry)
			mu.Unlock()
			return nil
		})
	}

	runErr := g.Wait()

	sort.Slice(report.Entries, func(i, j int) bool {
		return report.Entries[i].Dataset < report.Entries[j].Dataset
	})

	status := catalog.RunStatusCompleted
	errMsg := ""
	if runErr != nil {
		status = catalog.RunStatusFailed
		errMsg = runErr.Error()
	} else if report.Failed() {
		status = catalog.RunStatusFailed
		errMsg = "one or more datasets failed"
	}
	if err := p.store.CompleteRun(run.ID, status, errMsg); err != nil {
		p.logger.Warn("failed to record run outcome", "run_id", run.ID, "error", err)
	}

	if runErr != nil {
		return report, fmt.Errorf("wizard interrupted: %w", runErr)
	}
	return report, nil
}

func (p *Pipeline) sweepOne(ctx context.Context, runID string, ds dataset.Dataset, opts WizardOptions) Entry {
	start := time.Now()
	src := Source{Kind: SourceURL, Year: opts.Year, Month: opts.Month}

	res, err := p.Prepare(ctx, runID, ds, src, opts.Progress)
	switch {
	case err == nil:
		return Entry{Dataset: ds.Name, Status: EntryOK, RowsLoaded: res.RowsLoaded}
	case errors.Is(err, rfb.ErrNotFound):
		p.logger.Warn("dataset not published", "dataset", ds.Name)
		return Entry{Dataset: ds.Name, Status: EntryWarn, Message: "not published for this month"}
	default:
		p.logger.Error("dataset load failed",
			"dataset", ds.Name,
			"duration", time.Since(start).Round(time.Millisecond),
			"error", err)
		return Entry{Dataset: ds.Name, Status: EntryError, Message: err.Error()}
	}
}
