package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"freightdesk/internal/warehouse/models"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/sentinel"
)

// Postgres reads invoice facts from the invoicing subsystem's database. It
// holds its own pool because that database is owned by another service.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pool against the invoicing database and verifies it.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open invoicing pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping invoicing database: %w", err)
	}
	return pool, nil
}

func (p *Postgres) Lookup(ctx context.Context, invoiceID id.InvoiceID) (*models.InvoiceFacts, error) {
	query := `SELECT id, item_labels, declared_value, total FROM invoice_catalog WHERE id = $1`
	var f models.InvoiceFacts
	var rawID string
	err := p.pool.QueryRow(ctx, query, invoiceID.String()).
		Scan(&rawID, &f.ItemLabels, &f.DeclaredValue, &f.Total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", invoiceID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lookup invoice: %w", err)
	}
	f.ID = id.InvoiceID(rawID)
	return &f, nil
}

// Upsert writes an invoice into the catalog table. Used by seeding and tests.
func (p *Postgres) Upsert(ctx context.Context, f models.InvoiceFacts) error {
	query := `
		INSERT INTO invoice_catalog (id, item_labels, declared_value, total)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			item_labels = EXCLUDED.item_labels,
			declared_value = EXCLUDED.declared_value,
			total = EXCLUDED.total
	`
	labels := f.ItemLabels
	if labels == nil {
		labels = []string{}
	}
	if _, err := p.pool.Exec(ctx, query, f.ID.String(), labels, f.DeclaredValue, f.Total); err != nil {
		return fmt.Errorf("upsert invoice catalog: %w", err)
	}
	return nil
}
