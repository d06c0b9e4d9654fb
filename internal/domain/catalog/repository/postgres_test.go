package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
)

func sampleRows(supplierID uuid.UUID) []catalog.Row {
	name := "Brake Pad"
	code := "P001"
	price := 150.0
	currency := "ILS"
	return []catalog.Row{
		{
			SupplierID: supplierID, SupplierSlug: "m-pines", VersionDate: "2025-06-01", SourceURL: "a.pdf",
			PartName: &name, OEMCode: &code, Price: &price, Currency: &currency,
			RawRow: catalog.RawRow{Page: 1, Cells: []string{"Toyota", "X", "150", "Brake Pad", "P001"}},
			RowHash: "hash-1",
		},
		{
			SupplierID: supplierID, SupplierSlug: "m-pines", VersionDate: "2025-06-01", SourceURL: "a.pdf",
			PartName: &name, Currency: &currency,
			RawRow:  catalog.RawRow{Page: 2, Line: "Brake Pad"},
			RowHash: "hash-2",
		},
	}
}

func TestPostgresStore_GetSupplier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, slug, name, type FROM suppliers WHERE slug = \$1`).
		WithArgs("m-pines").
		WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "type"}).
			AddRow(id, "m-pines", "M. Pines", "catalog"))

	store := NewPostgresStore(mock)
	sup, err := store.GetSupplier(context.Background(), "m-pines")
	require.NoError(t, err)
	assert.Equal(t, id, sup.ID)
	assert.Equal(t, "M. Pines", sup.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSupplier_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, slug, name, type FROM suppliers`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresStore(mock).GetSupplier(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSupplierNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSupplier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`INSERT INTO suppliers`).
		WithArgs("m-pines", "M. Pines", SupplierType).
		WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "type"}).
			AddRow(id, "m-pines", "M. Pines", "catalog"))

	sup, err := NewPostgresStore(mock).CreateSupplier(context.Background(), "m-pines", "M. Pines")
	require.NoError(t, err)
	assert.Equal(t, id, sup.ID)
	assert.Equal(t, "catalog", sup.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`(?s)INSERT INTO catalog_items.*ON CONFLICT \(row_hash\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := NewPostgresStore(mock).UpsertRows(context.Background(), sampleRows(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRows_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := NewPostgresStore(mock).UpsertRows(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRows_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO catalog_items`).WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresStore(mock).UpsertRows(context.Background(), sampleRows(uuid.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_UpsertRows_SplitsAtBindLimit(t *testing.T) {
	require.LessOrEqual(t, maxRowsPerStatement*len(catalogColumns), maxBindParams)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	supplierID := uuid.New()
	rows := make([]catalog.Row, maxRowsPerStatement+1)
	for i := range rows {
		rows[i] = catalog.Row{SupplierID: supplierID, SupplierSlug: "m-pines", RowHash: fmt.Sprintf("hash-%d", i)}
	}

	mock.ExpectExec(`INSERT INTO catalog_items`).
		WillReturnResult(pgxmock.NewResult("INSERT", int64(maxRowsPerStatement)))
	mock.ExpectExec(`INSERT INTO catalog_items`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := NewPostgresStore(mock).UpsertRows(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, len(rows), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRows_PartialFailureCountsWritten(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO catalog_items`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO catalog_items`).
		WillReturnError(errors.New("connection reset"))

	store := NewPostgresStore(mock)
	store.rowsPerStatement = 1

	n, err := store.UpsertRows(context.Background(), sampleRows(uuid.New()))
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteBySupplier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`DELETE FROM catalog_items WHERE supplier_id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 42))

	n, err := NewPostgresStore(mock).DeleteBySupplier(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSupplier(t *testing.T) {
	t.Run("existing supplier is reused", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := uuid.New()
		mock.ExpectQuery(`SELECT id, slug, name, type FROM suppliers`).
			WithArgs("m-pines").
			WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "type"}).
				AddRow(id, "m-pines", "M. Pines", "catalog"))

		sup, err := EnsureSupplier(context.Background(), NewPostgresStore(mock), "m-pines", "M. Pines")
		require.NoError(t, err)
		assert.Equal(t, id, sup.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing supplier is created", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := uuid.New()
		mock.ExpectQuery(`SELECT id, slug, name, type FROM suppliers`).
			WithArgs("m-pines").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`INSERT INTO suppliers`).
			WithArgs("m-pines", "M. Pines", SupplierType).
			WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "type"}).
				AddRow(id, "m-pines", "M. Pines", "catalog"))

		sup, err := EnsureSupplier(context.Background(), NewPostgresStore(mock), "m-pines", "M. Pines")
		require.NoError(t, err)
		assert.Equal(t, id, sup.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup failure is not masked", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, slug, name, type FROM suppliers`).
			WithArgs("m-pines").
			WillReturnError(errors.New("timeout"))

		_, err = EnsureSupplier(context.Background(), NewPostgresStore(mock), "m-pines", "M. Pines")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSupplierNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
