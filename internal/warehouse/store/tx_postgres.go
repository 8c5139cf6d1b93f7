package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	txcontext "freightdesk/pkg/platform/tx"
)

const defaultPostgresTxTimeout = 5 * time.Second

// PostgresTx runs units of work in a SQL transaction serialized on a
// transaction-scoped advisory lock. PostgreSQL queues lock waiters in arrival
// order, and the lock is released on commit or rollback.
type PostgresTx struct {
	db      *sql.DB
	store   *PostgresStore
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	if timeout <= 0 {
		timeout = defaultPostgresTxTimeout
	}
	return &PostgresTx{db: db, store: NewPostgres(db), timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, scope ports.Scope, fn func(store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(scope)); err != nil {
		return fmt.Errorf("acquire %s: %w", scope, err)
	}

	if err := fn(&postgresTxStore{store: t.store, tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// postgresTxStore binds every call to the unit's transaction regardless of
// the context the caller passes.
type postgresTxStore struct {
	store *PostgresStore
	tx    *sql.Tx
}

func (s *postgresTxStore) bind(ctx context.Context) context.Context {
	return txcontext.WithTx(ctx, s.tx)
}

func (s *postgresTxStore) GetContainer(ctx context.Context, containerID id.ContainerID) (*models.Container, error) {
	return s.store.GetContainer(s.bind(ctx), containerID)
}

func (s *postgresTxStore) InsertContainer(ctx context.Context, c *models.Container) error {
	return s.store.InsertContainer(s.bind(ctx), c)
}

func (s *postgresTxStore) UpdateContainer(ctx context.Context, c *models.Container) error {
	return s.store.UpdateContainer(s.bind(ctx), c)
}

func (s *postgresTxStore) DeleteContainer(ctx context.Context, containerID id.ContainerID) error {
	return s.store.DeleteContainer(s.bind(ctx), containerID)
}

func (s *postgresTxStore) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*models.Invoice, error) {
	return s.store.GetInvoice(s.bind(ctx), invoiceID)
}

func (s *postgresTxStore) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.store.SaveInvoice(s.bind(ctx), inv)
}

func (s *postgresTxStore) ListMembers(ctx context.Context, containerID id.ContainerID) ([]*models.Invoice, error) {
	return s.store.ListMembers(s.bind(ctx), containerID)
}
