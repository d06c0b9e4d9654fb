// Package repository provides the catalog store collaborators: a PostgREST
// client for the hosted catalog and a pgx store for a directly reachable
// Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
)

// ErrSupplierNotFound is returned by GetSupplier for an unknown slug.
var ErrSupplierNotFound = errors.New("supplier not found")

// SupplierType marks suppliers created by this job.
const SupplierType = "catalog"

// Store is the write side of the catalog.
type Store interface {
	GetSupplier(ctx context.Context, slug string) (*catalog.Supplier, error)
	CreateSupplier(ctx context.Context, slug, name string) (*catalog.Supplier, error)
	// UpsertRows inserts rows or updates the existing ones with the same row_hash.
	UpsertRows(ctx context.Context, rows []catalog.Row) (int, error)
	// DeleteBySupplier removes every catalog row of a supplier.
	DeleteBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error)
}

// EnsureSupplier resolves slug, creating the supplier when it does not exist yet.
func EnsureSupplier(ctx context.Context, s Store, slug, name string) (*catalog.Supplier, error) {
	sup, err := s.GetSupplier(ctx, slug)
	if err == nil {
		return sup, nil
	}
	if !errors.Is(err, ErrSupplierNotFound) {
		return nil, fmt.Errorf("failed to look up supplier %q: %w", slug, err)
	}

	sup, err = s.CreateSupplier(ctx, slug, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create supplier %q: %w", slug, err)
	}
	return sup, nil
}
