//go:build integration

package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/store"
	"freightdesk/pkg/platform/sentinel"
	"freightdesk/pkg/testutil/containers"
)

func TestPostgresCatalog(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, store.Migrate(ctx, pg.DB))
	require.NoError(t, pg.TruncateTables(ctx, "invoice_catalog"))

	pool, err := Connect(ctx, pg.DSN)
	require.NoError(t, err)
	defer pool.Close()
	cat := NewPostgres(pool)

	require.NoError(t, cat.Upsert(ctx, models.InvoiceFacts{
		ID:            "FAC-100",
		ItemLabels:    []string{"fridge", "manual"},
		DeclaredValue: decimal.RequireFromString("899.90"),
		Total:         decimal.RequireFromString("45.00"),
	}))

	f, err := cat.Lookup(ctx, "FAC-100")
	require.NoError(t, err)
	require.Equal(t, []string{"fridge", "manual"}, f.ItemLabels)
	require.True(t, f.DeclaredValue.Equal(decimal.RequireFromString("899.90")))

	_, err = cat.Lookup(ctx, "FAC-404")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
