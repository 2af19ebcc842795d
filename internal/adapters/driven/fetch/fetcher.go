// Package fetch retrieves Orange Book source files over HTTP while
// presenting a realistic browser fingerprint.
package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/datacove/orangebook-etl/internal/core/domain"
	"github.com/datacove/orangebook-etl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Fetcher = (*Client)(nil)

// Client implements driven.Fetcher. It retries transient transport failures
// with bounded backoff and rate-limits outgoing requests so a retry storm
// never hammers the source.
type Client struct {
	http    *http.Client
	retry   domain.RetryPolicy
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ClientConfig holds configuration for the fetch client.
type ClientConfig struct {
	// HTTPClient overrides the default browser-fingerprint client,
	// mainly for tests against httptest servers.
	HTTPClient *http.Client

	// Retry bounds per-request attempts (default: domain.DefaultRetryPolicy).
	Retry domain.RetryPolicy

	// RequestInterval is the minimum spacing between requests,
	// including retries (default 2s).
	RequestInterval time.Duration

	Logger *slog.Logger
}

// NewClient creates a fetch client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: newBrowserTransport(),
			Timeout:   5 * time.Minute,
		}
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = domain.DefaultRetryPolicy()
	}

	interval := cfg.RequestInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:    httpClient,
		retry:   retry,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Fetch downloads the dataset's file, unwraps ZIP packaging, and flags the
// document Unchanged when its checksum matches lastChecksum. It performs
// network I/O only; load state is never touched here.
func (c *Client) Fetch(ctx context.Context, spec domain.DatasetSpec, lastChecksum string) (*domain.SourceDocument, error) {
	var (
		body   []byte
		status int
	)

	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		setBrowserHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			// Timeouts, resets, DNS blips: worth another attempt.
			return domain.Transient(fmt.Errorf("request %s: %w", spec.URL, err))
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		switch {
		case status == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return domain.Transient(fmt.Errorf("read response body: %w", err))
			}
			return nil
		case status >= 500 || status == http.StatusTooManyRequests:
			return domain.Transient(fmt.Errorf("source returned %d for %s", status, spec.URL))
		default:
			return fmt.Errorf("%w: status %d for %s", domain.ErrFetchRejected, status, spec.URL)
		}
	})
	if err != nil {
		return nil, err
	}

	payload := body
	if spec.Encoding == domain.EncodingZip {
		payload, err = extractMember(body, spec.ArchiveMember)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", spec.Dataset, err)
		}
	}

	checksum := domain.Checksum(payload)
	doc := &domain.SourceDocument{
		Dataset:     spec.Dataset,
		Content:     payload,
		Checksum:    checksum,
		HTTPStatus:  status,
		RetrievedAt: time.Now().UTC(),
		Unchanged:   lastChecksum != "" && checksum == lastChecksum,
	}

	c.logger.Info("fetched source document",
		"dataset", spec.Dataset,
		"bytes", len(payload),
		"checksum", checksum,
		"unchanged", doc.Unchanged,
	)
	return doc, nil
}

// extractMember pulls one file out of a ZIP archive by base name,
// case-insensitively. The archive is held in memory; Orange Book releases
// are a few tens of megabytes at most.
func extractMember(archive []byte, member string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	want := strings.ToLower(member)
	for _, f := range zr.File {
		if strings.ToLower(path.Base(f.Name)) != want {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read member %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("archive has no member %q", member)
}
