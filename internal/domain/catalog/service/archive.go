package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/export"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/storage"
)

// archiveFile spools parsed rows to a temp file so archiving does not hold
// the whole document in memory.
type archiveFile struct {
	f *os.File
	w *bufio.Writer
}

func newArchiveFile() (*archiveFile, error) {
	f, err := os.CreateTemp("", "catalog-archive-*.ndjson")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	return &archiveFile{f: f, w: bufio.NewWriter(f)}, nil
}

func (a *archiveFile) Write(rows []catalog.Row) error {
	if err := export.WriteNDJSON(a.w, rows); err != nil {
		return fmt.Errorf("failed to archive rows: %w", err)
	}
	return nil
}

// Upload stores the spooled rows under key.
func (a *archiveFile) Upload(ctx context.Context, store storage.Storage, key string) error {
	if err := a.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	if _, err := a.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}
	if _, err := store.Put(ctx, key, export.FormatNDJSON.ContentType(), a.f); err != nil {
		return err
	}
	return nil
}

func (a *archiveFile) Close() error {
	name := a.f.Name()
	err := a.f.Close()
	os.Remove(name)
	return err
}
