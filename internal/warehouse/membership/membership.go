// Package membership tracks which container an invoice belongs to, along with
// the per-invoice records that hang off membership: incompleteness reports,
// route assignments and payments.
//
// Membership is stored once, on the invoice. A container's member list is
// always the set of invoices pointing at it.
package membership

import (
	"context"
	"errors"
	"time"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
	"freightdesk/pkg/platform/sentinel"
)

// Result is the state after a membership change. Changed is false for no-ops.
type Result struct {
	Invoice   *models.Invoice
	Container *models.Container
	Changed   bool
}

type Tracker struct{}

func New() *Tracker {
	return &Tracker{}
}

// Add places an invoice in an open container. The invoice is materialized
// from facts on first use; otherwise its items and amounts are refreshed from
// facts and all marks reset.
func (t *Tracker) Add(ctx context.Context, st ports.Store, containerID id.ContainerID, facts *models.InvoiceFacts, now time.Time) (*Result, error) {
	if err := facts.Validate(); err != nil {
		return nil, err
	}
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if err := c.RequireOpen(); err != nil {
		return nil, err
	}

	inv, err := st.GetInvoice(ctx, facts.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		inv, err = models.NewInvoice(facts, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if inv.IsMemberOf(containerID) {
			return nil, dErrors.New(dErrors.CodeAlreadyAssigned, "invoice "+facts.ID.String()+" is already in this container")
		}
		if inv.IsAssigned() {
			return nil, dErrors.New(dErrors.CodeAlreadyAssigned, "invoice "+facts.ID.String()+" belongs to another container")
		}
		inv.SyncFacts(facts)
	}

	if err := inv.AttachTo(containerID, c.NextMemberSeq(), now); err != nil {
		return nil, err
	}
	if err := st.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	if err := st.UpdateContainer(ctx, c); err != nil {
		return nil, err
	}
	return &Result{Invoice: inv, Container: c, Changed: true}, nil
}

// Remove returns an invoice to the unassigned pool. Marks are reset and any
// route is dropped.
func (t *Tracker) Remove(ctx context.Context, st ports.Store, containerID id.ContainerID, invoiceID id.InvoiceID, now time.Time) (*Result, error) {
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if err := c.RequireOpen(); err != nil {
		return nil, err
	}
	inv, err := st.GetInvoice(ctx, invoiceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotAMember, "invoice "+invoiceID.String()+" is not in this container")
	}
	if err != nil {
		return nil, err
	}
	if err := inv.Detach(containerID, now); err != nil {
		return nil, err
	}
	if err := st.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return &Result{Invoice: inv, Container: c, Changed: true}, nil
}

// ReportIncomplete files a shortage discovered after receipt. Item marks are
// left untouched.
func (t *Tracker) ReportIncomplete(ctx context.Context, st ports.Store, invoiceID id.InvoiceID, reason string, missing []string, now time.Time) (*Result, error) {
	inv, c, err := t.loadMember(ctx, st, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := c.RequireArrived(); err != nil {
		return nil, err
	}
	if _, err := inv.ReportIncomplete(reason, missing, now); err != nil {
		return nil, err
	}
	if err := st.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return &Result{Invoice: inv, Container: c, Changed: true}, nil
}

// AssignRoute sets the first route of an invoice. The container state and the
// invoice completeness are both checked here, inside the unit of work.
func (t *Tracker) AssignRoute(ctx context.Context, st ports.Store, invoiceID id.InvoiceID, route id.RouteID, now time.Time) (*Result, error) {
	inv, err := st.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsAssigned() {
		return nil, dErrors.New(dErrors.CodeRouteNotEligible, "invoice "+invoiceID.String()+" is not in a container")
	}
	c, err := st.GetContainer(ctx, *inv.ContainerID)
	if err != nil {
		return nil, err
	}
	if err := inv.CanAssignRoute(c.State); err != nil {
		return nil, err
	}
	before := len(inv.RouteLog)
	if err := inv.AssignRoute(route, now); err != nil {
		return nil, err
	}
	changed := len(inv.RouteLog) != before
	if changed {
		if err := st.SaveInvoice(ctx, inv); err != nil {
			return nil, err
		}
	}
	return &Result{Invoice: inv, Container: c, Changed: changed}, nil
}

// ReassignRoute moves a routed invoice to another run. A reason is required.
func (t *Tracker) ReassignRoute(ctx context.Context, st ports.Store, invoiceID id.InvoiceID, route id.RouteID, reason string, now time.Time) (*Result, error) {
	inv, err := st.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Route == nil || !inv.IsAssigned() {
		return nil, dErrors.New(dErrors.CodeNoRouteAssigned, "invoice "+invoiceID.String()+" has no route to reassign")
	}
	c, err := st.GetContainer(ctx, *inv.ContainerID)
	if err != nil {
		return nil, err
	}
	if c.State != models.StateReceived {
		return nil, dErrors.New(dErrors.CodeRouteNotEligible,
			"invoice "+invoiceID.String()+" is in a container that is "+string(c.State)+", not received")
	}
	if err := inv.ReassignRoute(route, reason, now); err != nil {
		return nil, err
	}
	if err := st.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return &Result{Invoice: inv, Container: c, Changed: true}, nil
}

// UnassignRoute removes the route of an invoice. Unassigning an unrouted
// invoice is a no-op.
func (t *Tracker) UnassignRoute(ctx context.Context, st ports.Store, invoiceID id.InvoiceID, reason string, now time.Time) (*Result, error) {
	inv, err := st.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	var c *models.Container
	if inv.IsAssigned() {
		if c, err = st.GetContainer(ctx, *inv.ContainerID); err != nil {
			return nil, err
		}
	}
	changed := inv.UnassignRoute(reason, now)
	if changed {
		if err := st.SaveInvoice(ctx, inv); err != nil {
			return nil, err
		}
	}
	return &Result{Invoice: inv, Container: c, Changed: changed}, nil
}

// SetPayment applies a partial payment update. facts materializes the invoice
// when it is known to the catalog but has never been containerized; pass nil
// when the invoice is expected to exist.
func (t *Tracker) SetPayment(ctx context.Context, st ports.Store, invoiceID id.InvoiceID, facts *models.InvoiceFacts, update models.PaymentUpdate, now time.Time) (*Result, error) {
	inv, err := st.GetInvoice(ctx, invoiceID)
	if errors.Is(err, sentinel.ErrNotFound) && facts != nil {
		inv, err = models.NewInvoice(facts, now)
	}
	if err != nil {
		return nil, err
	}
	var c *models.Container
	if inv.IsAssigned() {
		if c, err = st.GetContainer(ctx, *inv.ContainerID); err != nil {
			return nil, err
		}
	}
	changed, err := inv.ApplyPayment(update, now)
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

func (t *Tracker) loadMember(ctx context.Context, st ports.Store, invoiceID id.InvoiceID) (*models.Invoice, *models.Container, error) {
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
