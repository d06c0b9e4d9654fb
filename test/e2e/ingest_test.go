// Package e2etest runs the ingestion pipeline end to end against local
// object storage and an in-memory PostgREST endpoint.
package e2etest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/fetch"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/normalizer"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/parser"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/pdfdoc"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/pdfdoc/pdfdoctest"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/repository"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/service"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/observability"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/storage"
)

const (
	sourceKey   = "pdf/m-pines/2025-06-01.pdf"
	versionDate = "2025-06-01"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// ============================================================================
// In-memory PostgREST
// ============================================================================

type restCatalog struct {
	mu        sync.Mutex
	suppliers map[string]catalog.Supplier
	rows      map[string]catalog.Row
	requests  []string
}

func newRestCatalog() *restCatalog {
	return &restCatalog{
		suppliers: make(map[string]catalog.Supplier),
		rows:      make(map[string]catalog.Row),
	}
}

func (c *restCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, r.Method+" "+r.URL.Path)
	if r.Header.Get("apikey") != "service-key" {
		http.Error(w, `{"message":"invalid key"}`, http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/rest/v1/suppliers" && r.Method == http.MethodGet:
		slug := strings.TrimPrefix(r.URL.Query().Get("slug"), "eq.")
		out := []catalog.Supplier{}
		if s, ok := c.suppliers[slug]; ok {
			out = append(out, s)
		}
		_ = json.NewEncoder(w).Encode(out)

	case r.URL.Path == "/rest/v1/suppliers" && r.Method == http.MethodPost:
		var in []catalog.Supplier
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([]catalog.Supplier, 0, len(in))
		for _, s := range in {
			if existing, ok := c.suppliers[s.Slug]; ok {
				s.ID = existing.ID
			} else {
				s.ID = uuid.New()
			}
			c.suppliers[s.Slug] = s
			out = append(out, s)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(out)

	case r.URL.Path == "/rest/v1/catalog_items" && r.Method == http.MethodPost:
		var in []catalog.Row
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, row := range in {
			c.rows[row.RowHash] = row
		}
		w.WriteHeader(http.StatusCreated)

	case r.URL.Path == "/rest/v1/catalog_items" && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Query().Get("supplier_id"), "eq.")
		var n int
		for hash, row := range c.rows {
			if row.SupplierID.String() == id {
				delete(c.rows, hash)
				n++
			}
		}
		w.Header().Set("Content-Range", fmt.Sprintf("*/%d", n))
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

func (c *restCatalog) partCodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, row := range c.rows {
		if row.OEMCode != nil {
			out = append(out, *row.OEMCode)
		}
	}
	return out
}

// ============================================================================
// Fixtures
// ============================================================================

func priceList(codes ...string) pdfdoc.Document {
	rows := [][]string{{"Make", "Src", "Price", "Desc", "Pcode"}}
	for i, code := range codes {
		rows = append(rows, []string{"Mazda", "OEM", fmt.Sprintf("1,%03d.90", i), "Brake Pad", code})
	}
	return pdfdoctest.New(pdfdoctest.TablePage(rows...))
}

type pipeline struct {
	svc     *service.IngestService
	objects *storage.LocalStorage
	rest    *restCatalog
	doc     pdfdoc.Document
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	objects, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = objects.Put(context.Background(), sourceKey, "application/pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)

	rest := newRestCatalog()
	srv := httptest.NewServer(rest)
	t.Cleanup(srv.Close)

	p := &pipeline{objects: objects, rest: rest}

	strategy := parser.NewLayoutParser(parser.MPinesLayout(), normalizer.NewRepairer(nil), testLogger()).
		WithOpener(func(data []byte) (pdfdoc.Document, error) {
			if !strings.HasPrefix(string(data), "%PDF") {
				return nil, pdfdoc.ErrUnreadableDocument
			}
			return p.doc, nil
		})
	registry := parser.NewRegistry()
	registry.Register("m-pines", strategy)

	fetcher := fetch.NewSourceFetcher(
		fetch.NewHTTPFetcher(0, 0, testLogger()),
		fetch.NewStorageFetcher(objects, 0),
	)
	store := repository.NewPostgRESTStore(repository.PostgRESTConfig{
		BaseURL: srv.URL,
		APIKey:  "service-key",
	}, testLogger())

	p.svc = service.NewIngestService(registry, fetcher, store, service.Options{
		BatchSize:     2,
		ArchiveParsed: true,
	}, testLogger()).
		WithArchive(objects).
		WithMetrics(observability.NewMetrics())
	return p
}

func request(source string, mode service.ReplaceMode) service.Request {
	return service.Request{
		Metadata: catalog.Metadata{
			SupplierSlug: "m-pines",
			SupplierName: "M. Pines",
			VersionDate:  versionDate,
			SourceURL:    sourceKey,
		},
		Source:  source,
		Replace: mode,
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestIngest_FromStorageToREST(t *testing.T) {
	p := newPipeline(t)
	p.doc = priceList("MZ-100", "MZ-101", "MZ-102", "MZ-103", "MZ-104")

	report, err := p.svc.Ingest(context.Background(), request(sourceKey, service.ReplaceAll))
	require.NoError(t, err)

	assert.Equal(t, 5, report.RowsUpserted)
	assert.Equal(t, 3, report.Batches)
	assert.ElementsMatch(t, []string{"MZ-100", "MZ-101", "MZ-102", "MZ-103", "MZ-104"}, p.rest.partCodes())

	t.Run("archive holds every parsed row", func(t *testing.T) {
		require.Equal(t, "vendor_parsed/m-pines/"+versionDate+".ndjson", report.ArchiveKey)

		rc, err := p.objects.Get(context.Background(), report.ArchiveKey)
		require.NoError(t, err)
		defer rc.Close()

		var lines int
		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			var row catalog.Row
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
			assert.Equal(t, report.SupplierID, row.SupplierID)
			require.NotNil(t, row.Price)
			lines++
		}
		require.NoError(t, scanner.Err())
		assert.Equal(t, 5, lines)
	})

	t.Run("thousands separators are normalized", func(t *testing.T) {
		p.rest.mu.Lock()
		defer p.rest.mu.Unlock()
		for _, row := range p.rest.rows {
			require.NotNil(t, row.Price)
			assert.GreaterOrEqual(t, *row.Price, 1000.0)
		}
	})
}

func TestIngest_ReplaceDropsPreviousEdition(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.doc = priceList("OLD-1", "OLD-2", "OLD-3")
	_, err := p.svc.Ingest(ctx, request(sourceKey, service.ReplaceAll))
	require.NoError(t, err)

	p.doc = priceList("NEW-1", "NEW-2")
	report, err := p.svc.Ingest(ctx, request(sourceKey, service.ReplaceAll))
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.RowsDeleted)
	assert.ElementsMatch(t, []string{"NEW-1", "NEW-2"}, p.rest.partCodes())
}

func TestIngest_UpsertKeepsPreviousEdition(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.doc = priceList("A-1", "A-2")
	_, err := p.svc.Ingest(ctx, request(sourceKey, service.UpsertOnly))
	require.NoError(t, err)

	// Same rows again are idempotent.
	_, err = p.svc.Ingest(ctx, request(sourceKey, service.UpsertOnly))
	require.NoError(t, err)
	assert.Len(t, p.rest.partCodes(), 2)

	p.doc = priceList("A-3")
	report, err := p.svc.Ingest(ctx, request(sourceKey, service.UpsertOnly))
	require.NoError(t, err)

	assert.Zero(t, report.RowsDeleted)
	assert.ElementsMatch(t, []string{"A-1", "A-2", "A-3"}, p.rest.partCodes())
}

func TestIngest_FromSignedURL(t *testing.T) {
	p := newPipeline(t)
	p.doc = priceList("URL-1")

	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "valid" {
			http.Error(w, "expired", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer host.Close()

	report, err := p.svc.Ingest(context.Background(), request(host.URL+"/object/sign/a.pdf?token=valid", service.ReplaceAll))
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsUpserted)

	_, err = p.svc.Ingest(context.Background(), request(host.URL+"/object/sign/a.pdf?token=stale", service.ReplaceAll))
	require.Error(t, err)

	var stageErr *service.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, service.StageFetch, stageErr.Stage)
	assert.NotContains(t, err.Error(), "stale")
	assert.ElementsMatch(t, []string{"URL-1"}, p.rest.partCodes(), "failed fetch must not touch the catalog")
}

func TestIngest_UnreadableDocumentKeepsCatalog(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.doc = priceList("KEEP-1")
	_, err := p.svc.Ingest(ctx, request(sourceKey, service.ReplaceAll))
	require.NoError(t, err)

	_, err = p.objects.Put(ctx, "pdf/m-pines/broken.pdf", "application/pdf", strings.NewReader("not a pdf"))
	require.NoError(t, err)

	_, err = p.svc.Ingest(ctx, request("pdf/m-pines/broken.pdf", service.ReplaceAll))
	require.Error(t, err)

	var stageErr *service.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, service.StageParse, stageErr.Stage)
	assert.ElementsMatch(t, []string{"KEEP-1"}, p.rest.partCodes())
}
