// Package service runs a whole ingestion: fetch the document, extract its
// rows and write them to the catalog in bounded batches.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/fetch"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/parser"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/repository"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/observability"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/notify"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/storage"
)

// DefaultArchivePrefix is where parsed rows are archived in object storage.
const DefaultArchivePrefix = "vendor_parsed"

// Stage names the step of a run that failed.
type Stage string

const (
	StageSetup Stage = "setup"
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
	StageWrite Stage = "write"
)

// StageError is the terminal error of a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ReplaceMode controls what happens to a supplier's existing rows.
type ReplaceMode string

const (
	// ReplaceAll deletes the supplier's rows once the new document opened, then loads it.
	ReplaceAll ReplaceMode = "replace"
	// UpsertOnly merges on row_hash and leaves rows missing from the new document in place.
	UpsertOnly ReplaceMode = "upsert"
)

// ParseReplaceMode accepts "replace", "upsert" or empty (replace).
func ParseReplaceMode(s string) (ReplaceMode, error) {
	switch ReplaceMode(strings.ToLower(strings.TrimSpace(s))) {
	case ReplaceAll, "":
		return ReplaceAll, nil
	case UpsertOnly:
		return UpsertOnly, nil
	default:
		return "", fmt.Errorf("invalid replace mode %q: expected replace or upsert", s)
	}
}

// Request describes one run.
type Request struct {
	Metadata catalog.Metadata
	// Source is handed to the fetcher; empty means Metadata.SourceURL.
	Source  string
	Replace ReplaceMode
}

func (r Request) source() string {
	if r.Source != "" {
		return r.Source
	}
	return r.Metadata.SourceURL
}

// Report summarises a run. It is returned even when the run failed and then
// holds whatever was done before the failure.
type Report struct {
	RunID             uuid.UUID
	Supplier          string
	SupplierID        uuid.UUID
	VersionDate       string
	Replace           ReplaceMode
	Mode              parser.Mode
	PagesProcessed    int
	PagesFailed       int
	RowsParsed        int
	RowsSkipped       int
	RowsUpserted      int
	RowsDeleted       int64
	DuplicatesSkipped int
	Batches           int
	ArchiveKey        string
	Duration          time.Duration
	// PageErrors lists skipped pages, table-mode ones first when the
	// document fell back to text mode. PagesFailed counts the final mode only.
	PageErrors        []parser.PageError
}

func (r *Report) apply(res *parser.Result, stats BatchStats) {
	if res != nil {
		r.Mode = res.Mode
		r.PagesProcessed = res.Pages
		r.PagesFailed = res.PagesFailed()
		r.RowsParsed = res.Rows
		r.RowsSkipped = res.SkippedRows
		r.PageErrors = append(append([]parser.PageError(nil), res.TableErrors...), res.PageErrors...)
	}
	r.RowsUpserted = stats.Upserted
	r.DuplicatesSkipped = stats.Duplicates
	r.Batches = stats.Batches
}

// StrategySource resolves a supplier slug to its extraction strategy.
type StrategySource interface {
	Lookup(slug string) (parser.Strategy, error)
}

// Notifier delivers run summaries.
type Notifier interface {
	Send(ctx context.Context, s notify.Summary) error
}

// Options tune batching and archiving.
type Options struct {
	BatchSize       int
	FlushEveryPages int
	ArchiveParsed   bool
	ArchivePrefix   string
	PushgatewayURL  string
	PushJob         string
}

// IngestService orchestrates ingestion runs.
type IngestService struct {
	strategies StrategySource
	fetcher    fetch.Fetcher
	store      repository.Store
	opts       Options

	archive  storage.Storage // Optional: nil disables archiving
	metrics  *observability.Metrics
	notifier Notifier // Optional: nil if notifications are not configured
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(strategies StrategySource, fetcher fetch.Fetcher, store repository.Store, opts Options, logger *slog.Logger) *IngestService {
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = DefaultArchivePrefix
	}
	if opts.PushJob == "" {
		opts.PushJob = "catalog_ingest"
	}
	return &IngestService{
		strategies: strategies,
		fetcher:    fetcher,
		store:      store,
		opts:       opts,
		tracer:     observability.Tracer(),
		logger:     logger,
	}
}

// WithArchive enables NDJSON archiving of parsed rows when Options.ArchiveParsed is set.
func (s *IngestService) WithArchive(store storage.Storage) *IngestService {
	s.archive = store
	return s
}

func (s *IngestService) WithMetrics(m *observability.Metrics) *IngestService {
	s.metrics = m
	return s
}

func (s *IngestService) WithNotifier(n Notifier) *IngestService {
	s.notifier = n
	return s
}

// Ingest runs the full pipeline for one document. In replace mode the
// supplier's rows are deleted only after the document opened, so an
// unreadable file never empties a catalogue.
func (s *IngestService) Ingest(ctx context.Context, req Request) (report *Report, err error) {
	start := time.Now()
	meta := req.Metadata
	report = &Report{
		RunID:       uuid.New(),
		Supplier:    meta.SupplierSlug,
		VersionDate: meta.VersionDate,
	}
	logger := s.logger.With("run_id", report.RunID.String(), "supplier", meta.SupplierSlug, "version", meta.VersionDate)

	ctx, span := s.tracer.Start(ctx, "catalog.ingest", trace.WithAttributes(
		attribute.String("supplier", meta.SupplierSlug),
		attribute.String("version_date", meta.VersionDate),
	))
	defer func() {
		report.Duration = time.Since(start)
		endSpan(span, err)
		s.finish(ctx, logger, report, err)
	}()

	report.Replace, err = ParseReplaceMode(string(req.Replace))
	if err != nil {
		return report, &StageError{Stage: StageSetup, Err: err}
	}
	if err := meta.Validate(); err != nil {
		return report, &StageError{Stage: StageSetup, Err: err}
	}
	strategy, err := s.strategies.Lookup(meta.SupplierSlug)
	if err != nil {
		return report, &StageError{Stage: StageSetup, Err: err}
	}

	data, err := s.fetch(ctx, req.source())
	if err != nil {
		return report, &StageError{Stage: StageFetch, Err: err}
	}
	logger.Info("Fetched document", "bytes", len(data))

	doc, err := strategy.Open(data)
	if err != nil {
		return report, &StageError{Stage: StageParse, Err: err}
	}

	sup, err := repository.EnsureSupplier(ctx, s.store, meta.SupplierSlug, meta.DisplayName())
	if err != nil {
		return report, &StageError{Stage: StageWrite, Err: err}
	}
	report.SupplierID = sup.ID

	if report.Replace == ReplaceAll {
		deleted, err := s.store.DeleteBySupplier(ctx, sup.ID)
		if err != nil {
			return report, &StageError{Stage: StageWrite, Err: fmt.Errorf("failed to delete previous rows: %w", err)}
		}
		report.RowsDeleted = deleted
		logger.Info("Deleted previous rows", "rows", deleted)
	}

	batcher := NewBatcher(s.store, s.opts.BatchSize, s.opts.FlushEveryPages)
	var archive *archiveFile
	if s.archive != nil && s.opts.ArchiveParsed {
		archive, err = newArchiveFile()
		if err != nil {
			return report, &StageError{Stage: StageWrite, Err: err}
		}
		defer archive.Close()
	}

	emit := func(ctx context.Context, page int, rows []catalog.Row) error {
		// SupplierID is not a hashed field, so stamping it leaves RowHash valid.
		for i := range rows {
			rows[i].SupplierID = sup.ID
		}
		if archive != nil {
			if err := archive.Write(rows); err != nil {
				return &flushError{err: err}
			}
		}
		return batcher.Emit(ctx, page, rows)
	}

	parseCtx, parseSpan := s.tracer.Start(ctx, "catalog.parse")
	res, err := strategy.ParseDocument(parseCtx, doc, meta, emit)
	if err == nil {
		err = batcher.Flush(parseCtx)
	}
	report.apply(res, batcher.Stats())
	parseSpan.SetAttributes(
		attribute.Int("rows", report.RowsParsed),
		attribute.Int("pages", report.PagesProcessed),
		attribute.Int("batches", report.Batches),
	)
	endSpan(parseSpan, err)
	if err != nil {
		var fe *flushError
		if errors.As(err, &fe) {
			return report, &StageError{Stage: StageWrite, Err: err}
		}
		return report, &StageError{Stage: StageParse, Err: err}
	}

	if archive != nil {
		key := fmt.Sprintf("%s/%s/%s.ndjson", s.opts.ArchivePrefix, meta.SupplierSlug, meta.VersionDate)
		if err := archive.Upload(ctx, s.archive, key); err != nil {
			// The catalogue is already loaded; a missing archive is not worth failing the run.
			logger.Warn("failed to archive parsed rows", "key", key, "error", err)
		} else {
			report.ArchiveKey = key
		}
	}

	return report, nil
}

// Extract fetches and parses a document without touching the store.
func (s *IngestService) Extract(ctx context.Context, req Request) ([]catalog.Row, *parser.Result, error) {
	meta := req.Metadata
	if err := meta.Validate(); err != nil {
		return nil, nil, &StageError{Stage: StageSetup, Err: err}
	}
	strategy, err := s.strategies.Lookup(meta.SupplierSlug)
	if err != nil {
		return nil, nil, &StageError{Stage: StageSetup, Err: err}
	}

	data, err := s.fetch(ctx, req.source())
	if err != nil {
		return nil, nil, &StageError{Stage: StageFetch, Err: err}
	}

	rows, res, err := parser.Collect(ctx, strategy, data, meta)
	if err != nil {
		return nil, res, &StageError{Stage: StageParse, Err: err}
	}
	s.logger.Info("Extracted rows",
		"supplier", meta.SupplierSlug,
		"mode", res.Mode,
		"rows", res.Rows,
		"page_errors", res.PagesFailed(),
	)
	return rows, res, nil
}

func (s *IngestService) fetch(ctx context.Context, source string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.fetch")
	data, err := s.fetcher.Fetch(ctx, source)
	if err == nil {
		span.SetAttributes(attribute.Int("bytes", len(data)))
	}
	endSpan(span, err)
	return data, err
}

func (s *IngestService) finish(ctx context.Context, logger *slog.Logger, report *Report, err error) {
	outcome := observability.OutcomeSuccess
	if err != nil {
		outcome = observability.OutcomeFailure
	}

	s.metrics.ObserveRun(observability.Run{
		Supplier:     report.Supplier,
		Mode:         string(report.Mode),
		Outcome:      outcome,
		Pages:        report.PagesProcessed,
		PagesFailed:  report.PagesFailed,
		RowsParsed:   report.RowsParsed,
		RowsUpserted: report.RowsUpserted,
		RowsDeleted:  report.RowsDeleted,
		Duration:     report.Duration,
	})
	if pushErr := s.metrics.Push(context.WithoutCancel(ctx), s.opts.PushgatewayURL, s.opts.PushJob); pushErr != nil {
		logger.Warn("failed to push metrics", "error", pushErr)
	}

	attrs := []any{
		"mode", report.Mode,
		"replace", report.Replace,
		"pages", report.PagesProcessed,
		"pages_failed", report.PagesFailed,
		"rows_parsed", report.RowsParsed,
		"rows_upserted", report.RowsUpserted,
		"rows_deleted", report.RowsDeleted,
		"duplicates", report.DuplicatesSkipped,
		"batches", report.Batches,
		"duration", report.Duration,
	}
	if err != nil {
		logger.Error("Ingestion failed", append(attrs, "error", err)...)
	} else {
		logger.Info("Ingestion finished", attrs...)
	}

	if s.notifier == nil {
		return
	}
	summary := notify.Summary{
		RunID:        report.RunID.String(),
		Supplier:     report.Supplier,
		VersionDate:  report.VersionDate,
		Mode:         string(report.Mode),
		Pages:        report.PagesProcessed,
		PagesFailed:  report.PagesFailed,
		RowsParsed:   report.RowsParsed,
		RowsUpserted: report.RowsUpserted,
		RowsDeleted:  report.RowsDeleted,
		Duration:     report.Duration,
		Err:          err,
	}
	if nErr := s.notifier.Send(context.WithoutCancel(ctx), summary); nErr != nil {
		logger.Warn("failed to send run summary", "error", nErr)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
