package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
)

// DBTX is the subset of pgxpool.Pool the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var catalogColumns = []string{
	"supplier_id", "supplier_slug", "version_date", "source_url",
	"make", "model", "year", "part_name", "oem_code", "unit", "source",
	"price", "currency", "raw_row", "row_hash",
}

// maxBindParams is the protocol limit on parameters in one statement.
const maxBindParams = 65535

// maxRowsPerStatement keeps one INSERT under maxBindParams.
var maxRowsPerStatement = maxBindParams / len(catalogColumns)

// PostgresStore writes the catalog straight into Postgres.
type PostgresStore struct {
	db               DBTX
	rowsPerStatement int
}

// NewPostgresStore creates a store over a pool or a pgxmock pool.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, rowsPerStatement: maxRowsPerStatement}
}

func (s *PostgresStore) GetSupplier(ctx context.Context, slug string) (*catalog.Supplier, error) {
	var sup catalog.Supplier
	err := s.db.QueryRow(ctx,
		`SELECT id, slug, name, type FROM suppliers WHERE slug = $1`, slug,
	).Scan(&sup.ID, &sup.Slug, &sup.Name, &sup.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSupplierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get supplier: %w", err)
	}
	return &sup, nil
}

func (s *PostgresStore) CreateSupplier(ctx context.Context, slug, name string) (*catalog.Supplier, error) {
	query := `
		INSERT INTO suppliers (slug, name, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = now()
		RETURNING id, slug, name, type
	`
	var sup catalog.Supplier
	if err := s.db.QueryRow(ctx, query, slug, name, SupplierType).
		Scan(&sup.ID, &sup.Slug, &sup.Name, &sup.Type); err != nil {
		return nil, fmt.Errorf("failed to create supplier: %w", err)
	}
	return &sup, nil
}

// UpsertRows writes rows with as few statements as the bind parameter limit
// allows. Callers keep batches free of duplicate hashes; Postgres refuses to
// update the same row twice in one ON CONFLICT statement. On error the count
// covers the statements that succeeded.
func (s *PostgresStore) UpsertRows(ctx context.Context, rows []catalog.Row) (int, error) {
	var total int
	for start := 0; start < len(rows); start += s.rowsPerStatement {
		end := min(start+s.rowsPerStatement, len(rows))
		n, err := s.upsertStatement(ctx, rows[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *PostgresStore) upsertStatement(ctx context.Context, rows []catalog.Row) (int, error) {
	args := make([]any, 0, len(rows)*len(catalogColumns))
	values := make([]string, 0, len(rows))
	for i, r := range rows {
		raw, err := json.Marshal(r.RawRow)
		if err != nil {
			return 0, fmt.Errorf("failed to encode raw_row: %w", err)
		}

		base := i * len(catalogColumns)
		placeholders := make([]string, len(catalogColumns))
		for j := range catalogColumns {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")

		args = append(args,
			r.SupplierID, r.SupplierSlug, r.VersionDate, r.SourceURL,
			r.Make, r.Model, r.Year, r.PartName, r.OEMCode, r.Unit, r.Source,
			r.Price, r.Currency, string(raw), r.RowHash,
		)
	}

	query := `INSERT INTO catalog_items (` + strings.Join(catalogColumns, ", ") + `)
		VALUES ` + strings.Join(values, ",\n\t\t") + `
		ON CONFLICT (row_hash) DO UPDATE SET
			supplier_id = EXCLUDED.supplier_id,
			source_url = EXCLUDED.source_url,
			source = EXCLUDED.source,
			currency = EXCLUDED.currency,
			raw_row = EXCLUDED.raw_row,
			updated_at = now()`

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert catalog rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM catalog_items WHERE supplier_id = $1`, supplierID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete supplier rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
