package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSupabase(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
}

func TestLoad_Defaults(t *testing.T) {
	setSupabase(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgREST, cfg.Store.Driver)
	assert.Equal(t, "catalog_items", cfg.Store.CatalogTable)
	assert.Equal(t, 500, cfg.Batch.Size)
	assert.Equal(t, 600*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(512<<20), cfg.Fetch.MaxBytes)
	assert.Equal(t, "replace", cfg.Run.ReplaceMode)
	assert.Equal(t, "0 3 * * *", cfg.Schedule.Cron)
	assert.Empty(t, cfg.Notify.To)
}

func TestLoad_Overrides(t *testing.T) {
	setSupabase(t)
	t.Setenv("SUPPLIER_SLUG", "m-pines")
	t.Setenv("BATCH_SIZE", "200")
	t.Setenv("FETCH_TIMEOUT", "120")
	t.Setenv("STORE_RPS", "2.5")
	t.Setenv("ARCHIVE_PARSED", "true")
	t.Setenv("NOTIFY_FROM", "ingest@example.com")
	t.Setenv("NOTIFY_TO", "ops@example.com, buyer@example.com,")
	t.Setenv("RESEND_API_KEY", "re_123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "m-pines", cfg.Run.SupplierSlug)
	assert.Equal(t, 200, cfg.Batch.Size)
	assert.Equal(t, 120*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 2.5, cfg.Store.RequestsPerSecond)
	assert.True(t, cfg.Storage.ArchiveParsed)
	assert.Equal(t, []string{"ops@example.com", "buyer@example.com"}, cfg.Notify.To)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgrest without url", map[string]string{"SUPABASE_SERVICE_KEY": "k"}},
		{"postgrest without key", map[string]string{"SUPABASE_URL": "https://x"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mysql"}},
		{"zero batch", map[string]string{"STORE_DRIVER": "postgres", "BATCH_SIZE": "0"}},
		{"supabase storage without url", map[string]string{"STORE_DRIVER": "postgres", "STORAGE_TYPE": "supabase"}},
		{"notify without sender", map[string]string{"STORE_DRIVER": "postgres", "RESEND_API_KEY": "re", "NOTIFY_TO": "a@b.c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SUPABASE_URL", "")
			t.Setenv("SUPABASE_SERVICE_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_PostgresDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "host=db port=6543 user=postgres password=postgres dbname=catalog sslmode=disable", cfg.Database.DSN())
}
