// Package fetch retrieves the source price-list document for an ingestion run.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FACorreiaa/parts-catalog-ingest/pkg/storage"
)

const (
	DefaultTimeout = 600 * time.Second
	// DefaultMaxBytes caps a single document; supplier lists run to a few hundred MB.
	DefaultMaxBytes int64 = 512 << 20
)

// ErrTooLarge is returned when the document exceeds the configured size cap.
var ErrTooLarge = errors.New("document exceeds size limit")

// Fetcher returns the full bytes of the document at source.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// StatusError reports a non-2xx answer from the document host.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download failed with status %d", e.Status)
}

// HTTPFetcher downloads documents from signed URLs.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewHTTPFetcher creates a fetcher. Zero timeout or maxBytes select the defaults.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, logger *slog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid document URL: %w", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Signed URLs carry a token, so only the status is reported.
		return nil, &StatusError{URL: req.URL.Redacted(), Status: resp.StatusCode}
	}

	data, err := readCapped(resp.Body, f.maxBytes)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Downloaded document",
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return data, nil
}

// StorageFetcher reads documents by key from object storage.
type StorageFetcher struct {
	store    storage.Storage
	maxBytes int64
}

func NewStorageFetcher(store storage.Storage, maxBytes int64) *StorageFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &StorageFetcher{store: store, maxBytes: maxBytes}
}

func (f *StorageFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	rc, err := f.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer rc.Close()
	return readCapped(rc, f.maxBytes)
}

// SourceFetcher downloads http(s) sources and reads everything else as a
// storage key.
type SourceFetcher struct {
	remote  Fetcher
	objects Fetcher
}

func NewSourceFetcher(remote, objects Fetcher) *SourceFetcher {
	return &SourceFetcher{remote: remote, objects: objects}
}

func (f *SourceFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if IsURL(source) {
		return f.remote.Fetch(ctx, source)
	}
	if f.objects == nil {
		return nil, fmt.Errorf("no object storage configured for %q", source)
	}
	return f.objects.Fetch(ctx, source)
}

// IsURL reports whether source is an http or https URL.
func IsURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if n > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return buf.Bytes(), nil
}
