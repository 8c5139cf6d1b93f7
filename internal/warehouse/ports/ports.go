// Package ports defines the contracts shared by the warehouse components.
// Lower components (ledger, membership, containers) only see Store; the
// coordinator additionally owns Tx, InvoiceCatalog and AuditPublisher.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks InvoiceCatalog,AuditPublisher,Clock

import (
	"context"
	"time"

	"freightdesk/internal/warehouse/models"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/audit"
)

// Store is the transactional view handed to a unit of work. All reads return
// copies; writes are only visible to other callers once the unit commits.
type Store interface {
	// GetContainer returns sentinel.ErrNotFound when absent.
	GetContainer(ctx context.Context, containerID id.ContainerID) (*models.Container, error)

	// InsertContainer fails with sentinel.ErrAlreadyUsed when the code is taken.
	InsertContainer(ctx context.Context, c *models.Container) error

	UpdateContainer(ctx context.Context, c *models.Container) error

	// DeleteContainer hard-deletes the container row. Callers release members first.
	DeleteContainer(ctx context.Context, containerID id.ContainerID) error

	// GetInvoice returns sentinel.ErrNotFound when the invoice was never materialized.
	GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*models.Invoice, error)

	// SaveInvoice inserts or updates the invoice aggregate. The write is
	// conditional on inv.Version matching the stored version and fails with
	// sentinel.ErrConflict otherwise. On success inv.Version is incremented.
	SaveInvoice(ctx context.Context, inv *models.Invoice) error

	// ListMembers returns the invoices of a container ordered by member sequence.
	ListMembers(ctx context.Context, containerID id.ContainerID) ([]*models.Invoice, error)
}

// QueryStore serves read-only listings outside a unit of work.
type QueryStore interface {
	ListContainers(ctx context.Context, states []models.ContainerState) ([]*models.Container, error)
	GetContainer(ctx context.Context, containerID id.ContainerID) (*models.Container, error)
	GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*models.Invoice, error)
	ListMembers(ctx context.Context, containerID id.ContainerID) ([]*models.Invoice, error)
}

// Scope names the aggregate a unit of work is serialized on.
type Scope string

// ContainerScope serializes work on one container and its members.
func ContainerScope(containerID id.ContainerID) Scope {
	return Scope("container:" + containerID.String())
}

// InvoiceScope serializes work on an unassigned invoice.
func InvoiceScope(invoiceID id.InvoiceID) Scope {
	return Scope("invoice:" + invoiceID.String())
}

// Tx runs fn as one atomic unit of work serialized on scope. If fn returns an
// error nothing it wrote is applied. Waiting for the scope honours ctx; once
// fn starts it runs to completion.
type Tx interface {
	RunInTx(ctx context.Context, scope Scope, fn func(store Store) error) error
}

// InvoiceCatalog is the invoicing subsystem: it knows whether an invoice
// exists, its declared items and its amounts.
type InvoiceCatalog interface {
	// Lookup returns sentinel.ErrNotFound for unknown invoices.
	Lookup(ctx context.Context, invoiceID id.InvoiceID) (*models.InvoiceFacts, error)
}

// AuditPublisher emits warehouse audit events after commit.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
