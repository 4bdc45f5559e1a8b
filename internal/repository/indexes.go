package repository

import (
	"context"
	"fmt"

	"github.com/go-kivik/kivik/v4"
)

// EnsureIndexes creates the mango indexes the repositories query against.
// CouchDB index creation is idempotent, so this is safe to run on every boot.
func EnsureIndexes(ctx context.Context, client *kivik.Client, dbName string) error {
	db := client.DB(dbName)

	indexes := []struct {
		ddoc   string
		name   string
		fields []string
	}{
		{"idx-records", "records-by-store-table-updated", []string{"kind", "store_id", "table", "updated_at"}},
		{"idx-conflicts", "conflicts-by-store", []string{"kind", "store_id", "created_at"}},
		{"idx-receipts", "receipts-by-expiry", []string{"kind", "expires_at"}},
		{"idx-terminals", "terminals-by-store", []string{"kind", "store_id"}},
	}

	for _, idx := range indexes {
		def := map[string]interface{}{
			"fields": idx.fields,
		}
		if err := db.CreateIndex(ctx, idx.ddoc, idx.name, def); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
