package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
)

const maxErrorBody = 4 << 10

// HTTPError is a non-2xx answer from the REST API.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// PostgRESTConfig points the store at a PostgREST endpoint.
type PostgRESTConfig struct {
	BaseURL           string // project URL, without /rest/v1
	APIKey            string
	CatalogTable      string
	SuppliersTable    string
	Timeout           time.Duration
	RequestsPerSecond float64 // zero means unthrottled
}

// PostgRESTStore talks to the hosted catalog over its REST API. The key is
// sent both as bearer token and apikey header.
type PostgRESTStore struct {
	client  *http.Client
	cfg     PostgRESTConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewPostgRESTStore creates a REST store.
func NewPostgRESTStore(cfg PostgRESTConfig, logger *slog.Logger) *PostgRESTStore {
	if cfg.CatalogTable == "" {
		cfg.CatalogTable = "catalog_items"
	}
	if cfg.SuppliersTable == "" {
		cfg.SuppliersTable = "suppliers"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &PostgRESTStore{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// WithHTTPClient replaces the HTTP client.
func (s *PostgRESTStore) WithHTTPClient(c *http.Client) *PostgRESTStore {
	s.client = c
	return s
}

type supplierPayload struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *PostgRESTStore) GetSupplier(ctx context.Context, slug string) (*catalog.Supplier, error) {
	q := url.Values{}
	q.Set("slug", "eq."+slug)
	q.Set("select", "id,slug,name,type")

	var found []catalog.Supplier
	if _, err := s.do(ctx, http.MethodGet, s.cfg.SuppliersTable, q, nil, "", &found); err != nil {
		return nil, fmt.Errorf("failed to get supplier: %w", err)
	}
	if len(found) == 0 {
		return nil, ErrSupplierNotFound
	}
	return &found[0], nil
}

func (s *PostgRESTStore) CreateSupplier(ctx context.Context, slug, name string) (*catalog.Supplier, error) {
	q := url.Values{}
	q.Set("on_conflict", "slug")

	body := []supplierPayload{{Slug: slug, Name: name, Type: SupplierType}}
	var created []catalog.Supplier
	if _, err := s.do(ctx, http.MethodPost, s.cfg.SuppliersTable, q, body,
		"resolution=merge-duplicates,return=representation", &created); err != nil {
		return nil, fmt.Errorf("failed to create supplier: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("failed to create supplier: empty response for %q", slug)
	}
	return &created[0], nil
}

func (s *PostgRESTStore) UpsertRows(ctx context.Context, rows []catalog.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q := url.Values{}
	q.Set("on_conflict", "row_hash")

	if _, err := s.do(ctx, http.MethodPost, s.cfg.CatalogTable, q, rows,
		"resolution=merge-duplicates,return=minimal", nil); err != nil {
		return 0, fmt.Errorf("failed to upsert catalog rows: %w", err)
	}
	return len(rows), nil
}

func (s *PostgRESTStore) DeleteBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	q := url.Values{}
	q.Set("supplier_id", "eq."+supplierID.String())

	header, err := s.do(ctx, http.MethodDelete, s.cfg.CatalogTable, q, nil, "count=exact,return=minimal", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to delete supplier rows: %w", err)
	}
	return parseContentRangeTotal(header.Get("Content-Range")), nil
}

// do sends one request and decodes a JSON answer into out when out is not nil.
func (s *PostgRESTStore) do(ctx context.Context, method, table string, q url.Values, body any, prefer string, out any) (http.Header, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	path := "/rest/v1/" + table
	endpoint := s.cfg.BaseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("apikey", s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	s.logger.Debug("postgrest request",
		"method", method,
		"table", table,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.Header, nil
}

// parseContentRangeTotal reads N from "0-4/N" or "*/N". Unknown totals are 0.
func parseContentRangeTotal(v string) int64 {
	_, total, ok := strings.Cut(v, "/")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
