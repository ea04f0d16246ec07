// Package ingest turns a document URL into indexable content blocks: an
// HTTP fetcher with a Google Drive share-link rewrite, a plain-content
// block extractor, and content fingerprinting.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/docqa/types"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxBodyBytes = 64 << 20
)

// FetcherConfig holds document download settings.
type FetcherConfig struct {
	Timeout      time.Duration // per-download budget, 0 uses the default
	MaxBodyBytes int64         // response size cap, 0 uses the default
}

// Fetcher downloads documents over HTTP. Share links from Google Drive are
// rewritten to their direct-download form before fetching.
type Fetcher struct {
	client  *http.Client
	maxBody int64
	logger  *zap.Logger
}

// NewFetcher creates a document fetcher.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		maxBody: maxBody,
		logger:  logger.With(zap.String("component", "fetcher")),
	}
}

// Fetch downloads the document at rawURL. Every failure is a
// DOCUMENT_UNREADABLE error; the caller maps it to the per-question
// ingestion sentinel rather than retrying.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, types.NewError(types.ErrDocumentUnreadable, "invalid document request").
			WithCause(err).WithHTTPStatus(http.StatusBadRequest)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrDocumentUnreadable, "document download failed").
			WithCause(err).WithHTTPStatus(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrDocumentUnreadable,
			fmt.Sprintf("document host returned status %d", resp.StatusCode)).
			WithHTTPStatus(http.StatusBadGateway)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, types.NewError(types.ErrDocumentUnreadable, "document read failed").
			WithCause(err).WithHTTPStatus(http.StatusBadGateway)
	}
	if int64(len(body)) > f.maxBody {
		return nil, types.NewError(types.ErrDocumentUnreadable,
			fmt.Sprintf("document exceeds %d byte limit", f.maxBody)).
			WithHTTPStatus(http.StatusRequestEntityTooLarge)
	}

	f.logger.Debug("document fetched",
		zap.String("url", target),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return body, nil
}

var driveFilePattern = regexp.MustCompile(`^/file/d/([^/]+)`)

// RewriteGoogleDriveURL converts a Google Drive share link
// (https://drive.google.com/file/d/<id>/view) to its direct-download form.
// Any other URL is returned unchanged.
func RewriteGoogleDriveURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Host != "drive.google.com" {
		return rawURL
	}
	m := driveFilePattern.FindStringSubmatch(u.Path)
	if m == nil {
		return rawURL
	}
	return "https://drive.google.com/uc?export=download&id=" + m[1]
}

// normalizeURL validates the document URL and applies host-specific
// rewrites.
func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", types.NewError(types.ErrDocumentUnreadable,
			fmt.Sprintf("unsupported document URL %q", rawURL)).
			WithHTTPStatus(http.StatusBadRequest)
	}
	return RewriteGoogleDriveURL(rawURL), nil
}
