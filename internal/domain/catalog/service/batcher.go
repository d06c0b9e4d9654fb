package service

import (
	"context"
	"fmt"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/repository"
)

const (
	DefaultBatchSize       = 500
	DefaultFlushEveryPages = 25
)

// BatchStats counts what a Batcher has written.
type BatchStats struct {
	Rows       int
	Upserted   int
	Duplicates int
	Batches    int
}

// flushError marks failures of the store so callers can tell them apart from
// extraction errors.
type flushError struct {
	err error
}

func (e *flushError) Error() string { return e.err.Error() }
func (e *flushError) Unwrap() error { return e.err }

// Batcher buffers rows and upserts them in bounded batches. The buffer never
// holds more than size rows and is emptied after every flush.
type Batcher struct {
	store           repository.Store
	size            int
	flushEveryPages int

	buf            []catalog.Row
	seen           map[string]struct{}
	pagesSinceSend int
	stats          BatchStats
}

// NewBatcher creates a batcher. A non-positive size and a zero
// flushEveryPages select the defaults; flushEveryPages < 0 disables the
// page-based flush.
func NewBatcher(store repository.Store, size, flushEveryPages int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if flushEveryPages == 0 {
		flushEveryPages = DefaultFlushEveryPages
	}
	return &Batcher{
		store:           store,
		size:            size,
		flushEveryPages: flushEveryPages,
		buf:             make([]catalog.Row, 0, size),
		seen:            make(map[string]struct{}, size),
	}
}

// Emit is a parser.Emit that feeds the batcher.
func (b *Batcher) Emit(ctx context.Context, _ int, rows []catalog.Row) error {
	for _, row := range rows {
		b.stats.Rows++
		// One upsert statement cannot touch the same row_hash twice.
		if _, dup := b.seen[row.RowHash]; dup {
			b.stats.Duplicates++
			continue
		}
		b.buf = append(b.buf, row)
		b.seen[row.RowHash] = struct{}{}

		if len(b.buf) >= b.size {
			if err := b.Flush(ctx); err != nil {
				return err
			}
		}
	}

	b.pagesSinceSend++
	if b.flushEveryPages > 0 && b.pagesSinceSend >= b.flushEveryPages {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered rows, if any.
func (b *Batcher) Flush(ctx context.Context) error {
	b.pagesSinceSend = 0
	if len(b.buf) == 0 {
		return nil
	}

	n, err := b.store.UpsertRows(ctx, b.buf)
	if err != nil {
		return &flushError{err: fmt.Errorf("failed to upsert batch of %d rows: %w", len(b.buf), err)}
	}
	b.stats.Upserted += n
	b.stats.Batches++

	// The store may keep the slice, so start a new one.
	b.buf = make([]catalog.Row, 0, b.size)
	clear(b.seen)
	return nil
}

// Buffered is the number of rows waiting for the next flush.
func (b *Batcher) Buffered() int {
	return len(b.buf)
}

func (b *Batcher) Stats() BatchStats {
	return b.stats
}
