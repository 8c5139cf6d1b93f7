// Package ledger records per-item scan marks and damage flags.
//
// The ledger only stores marks; item counts and completeness are always
// derived from them by the invoice model. Marking is only allowed while the
// owning container is open so the close-time completeness check stays
// meaningful. Damage is recorded at the destination, once the container has
// been received.
package ledger

import (
	"context"
	"time"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
)

// Result is the state after a ledger change. Changed is false for no-ops.
type Result struct {
	Invoice   *models.Invoice
	Container *models.Container
	Changed   bool
}

type Ledger struct{}

func New() *Ledger {
	return &Ledger{}
}

// MarkItem sets the scan mark of one item. Re-applying the current value is a
// no-op and writes nothing.
func (l *Ledger) MarkItem(ctx context.Context, st ports.Store, invoiceID id.InvoiceID, index int, marked bool, now time.Time) (*Result, error) {
	inv, c, err := loadMember(ctx, st, invoiceID)
	if err != nil {
		return nil, err
	}
	if c.State != models.StateOpen {
		return nil, dErrors.New(dErrors.CodeContainerClosedForEditing,
			"container "+c.Code+" is "+string(c.State)+"; items can only be marked while it is open")
	}
	changed, err := inv.SetItemMark(index, marked, now)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := st.SaveInvoice(ctx, inv); err != nil {
			return nil, err
		}
	}
	return &Result{Invoice: inv, Container: c, Changed: changed}, nil
}

// MarkDamaged flags or clears damage on one item. Marks and completeness are
// not affected.
func (l *Ledger) MarkDamaged(ctx context.Context, st ports.Store, invoiceID id.InvoiceID, index int, damaged bool, notes string, now time.Time) (*Result, error) {
	inv, c, err := loadMember(ctx, st, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := c.RequireArrived(); err != nil {
		return nil, err
	}
	changed, err := inv.SetItemDamage(index, damaged, notes, now)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := st.SaveInvoice(ctx, inv); err != nil {
			return nil, err
		}
	}
	return &Result{Invoice: inv, Container: c, Changed: changed}, nil
}

func loadMember(ctx context.Context, st ports.Store, invoiceID id.InvoiceID) (*models.Invoice, *models.Container, error) {
	inv, err := st.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if !inv.IsAssigned() {
		return nil, nil, dErrors.New(dErrors.CodeNotAMember, "invoice "+invoiceID.String()+" is not in a container")
	}
	c, err := st.GetContainer(ctx, *inv.ContainerID)
	if err != nil {
		return nil, nil, err
	}
	return inv, c, nil
}
