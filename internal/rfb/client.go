// Package rfb downloads CNPJ open-data packages from the Receita Federal
// file server.
package rfb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brdatalab/cnpjkit/internal/dataset"
)

// ErrNotFound indicates the remote package does not exist (HTTP 404).
var ErrNotFound = errors.New("package not found")

// ProgressFunc receives download progress. total is -1 when the server did
// not send a Content-Length.
type ProgressFunc func(written, total int64)

// Options configures a Client.
type Options struct {
	// BaseURL overrides the RFB file server root (tests point it at an
	// httptest server).
	BaseURL string

	// Timeout bounds each HTTP request. Zero means 5 minutes; the monthly
	// packages reach several GB.
	Timeout time.Duration

	// Retries is the number of additional attempts after a transient
	// failure. Zero means 3.
	Retries int

	// MaxParts caps the part probe for multi-part datasets. Zero means 20.
	MaxParts int

	Logger *slog.Logger
}

// Client talks to the RFB open-data file server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retries    int
	maxParts   int
	logger     *slog.Logger
}

// NewClient creates a Client with the given options.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	retries := opts.Retries
	if retries == 0 {
		retries = 3
	}
	maxParts := opts.MaxParts
	if maxParts == 0 {
		maxParts = 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		retries:    retries,
		maxParts:   maxParts,
		logger:     logger,
	}
}

// ListParts probes the month directory for the dataset's package URLs.
// Multi-part datasets are probed as prefix0.zip, prefix1.zip, ... until the
// first 404 (capped at MaxParts); single-file datasets probe prefix.zip.
// An empty result means the dataset is not published for that month.
func (c *Client) ListParts(ctx context.Context, year, month int, ds dataset.Dataset) ([]string, error) {
	if err := ValidateMonth(year, month); err != nil {
		return nil, err
	}
	dir := c.MonthDirURL(year, month)

	if !ds.MultiPart {
		url := PackageURL(dir, ds.RemotePrefix, -1)
		ok, err := c.exists(ctx, url)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []string{url}, nil
	}

	var urls []string
	for part := 0; part < c.maxParts; part++ {
		url := PackageURL(dir, ds.RemotePrefix, part)
		ok, err := c.exists(ctx, url)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// exists issues a HEAD request and reports whether the URL resolves.
func (c *Client) exists(ctx context.Context, url string) (bool, error) {
	var found bool
	err := c.withRetry(ctx, "HEAD "+url, func() (retryable bool, err error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return true, err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusOK:
			found = true
			return false, nil
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return false, nil
		case resp.StatusCode >= 500:
			return true, fmt.Errorf("server error: %s", resp.Status)
		default:
			return false, fmt.Errorf("unexpected status: %s", resp.Status)
		}
	})
	return found, err
}

// Download streams the URL into outPath, creating parent directories. The
// progress callback is optional.
func (c *Client) Download(ctx context.Context, url, outPath string, progress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	return c.withRetry(ctx, "GET "+url, func() (retryable bool, err error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return true, err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusOK:
			// proceed
		case resp.StatusCode == http.StatusNotFound:
			return false, fmt.Errorf("%w: %s", ErrNotFound, url)
		case resp.StatusCode >= 500:
			return true, fmt.Errorf("server error: %s", resp.Status)
		default:
			return false, fmt.Errorf("unexpected status: %s", resp.Status)
		}

		out, err := os.Create(outPath) //nolint:gosec // path is built by the caller under data_dir
		if err != nil {
			return false, fmt.Errorf("failed to create output file: %w", err)
		}

		total := resp.ContentLength
		writer := io.Writer(out)
		if progress != nil {
			writer = io.MultiWriter(out, &progressWriter{fn: progress, total: total})
		}

		written, copyErr := io.Copy(writer, resp.Body)
		closeErr := out.Close()
		if copyErr != nil {
			_ = os.Remove(outPath)
			return true, fmt.Errorf("download interrupted after %d bytes: %w", written, copyErr)
		}
		if closeErr != nil {
			_ = os.Remove(outPath)
			return false, closeErr
		}

		c.logger.Debug("downloaded package",
			slog.String("url", url), slog.Int64("bytes", written))
		return false, nil
	})
}

// withRetry runs fn with exponential backoff on retryable failures.
func (c *Client) withRetry(ctx context.Context, op string, fn func() (retryable bool, err error)) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			c.logger.Debug("retrying", slog.String("op", op),
				slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.retries+1, lastErr)
}

// progressWriter forwards byte counts to a ProgressFunc.
type progressWriter struct {
	fn      ProgressFunc
	total   int64
	written int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	p.fn(p.written, p.total)
	return len(b), nil
}
