// Package ui serves the cnpjkit web dashboard: catalog browsing, table
// previews, company search and dataset preparation over a JSON API with
// live updates pushed through SSE.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/ingest"
	"github.com/brdatalab/cnpjkit/internal/search"
	"github.com/brdatalab/cnpjkit/internal/ui/notifier"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// Config holds configuration for the UI server.
type Config struct {
	Store    catalog.Store
	Adapter  adapter.Adapter
	Pipeline *ingest.Pipeline

	// Listen is the address to bind, e.g. ":8501".
	Listen string

	// Watch re-broadcasts to connected clients when the catalog database
	// changes on disk (e.g. a concurrent CLI prepare).
	Watch bool

	// StatePath is the catalog database file watched when Watch is set.
	StatePath string

	// PreviewLimit caps rows returned by table previews.
	PreviewLimit int

	SessionSecret string
	Logger        *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	store        catalog.Store
	adapter      adapter.Adapter
	pipeline     *ingest.Pipeline
	searcher     *search.Searcher
	sessionStore *sessions.CookieStore
	listen       string
	watch        bool
	statePath    string
	previewLimit int
	logger       *slog.Logger
	notifier     *notifier.Notifier
}

// NewServer creates a dashboard server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30)
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	previewLimit := cfg.PreviewLimit
	if previewLimit <= 0 {
		previewLimit = 100
	}

	return &Server{
		store:        cfg.Store,
		adapter:      cfg.Adapter,
		pipeline:     cfg.Pipeline,
		searcher:     search.New(cfg.Adapter, logger),
		sessionStore: sessionStore,
		listen:       cfg.Listen,
		watch:        cfg.Watch,
		statePath:    cfg.StatePath,
		previewLimit: previewLimit,
		logger:       logger,
		notifier:     notifier.New(),
	}
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting dashboard", "addr", s.listen)

	eg, egctx := errgroup.WithContext(ctx)

	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	s.routes(r)

	srv := &http.Server{
		Addr:    s.listen,
		Handler: r,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch && s.statePath != "" {
		eg.Go(func() error {
			return s.watchCatalog(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down dashboard...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// watchCatalog watches the catalog database file and pings connected
// clients when another process modifies it.
func (s *Server) watchCatalog(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// SQLite rewrites the file, so watch the directory instead of the
	// file itself.
	dir := filepath.Dir(s.statePath)
	if err := watcher.Add(dir); err != nil {
		s.logger.Error("failed to watch catalog directory", "dir", dir, "error", err)
		return nil
	}

	base := filepath.Base(s.statePath)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if name != base && name != base+"-wal" {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(250*time.Millisecond, func() {
				s.logger.Debug("catalog changed on disk", "file", event.Name)
				s.notifier.Broadcast()
			})

		case err := <-watcher.Errors:
			s.logger.Error("watcher error", "error", err)
		}
	}
}
