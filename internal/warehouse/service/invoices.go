package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"freightdesk/internal/warehouse/ledger"
	"freightdesk/internal/warehouse/membership"
	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
	"freightdesk/pkg/platform/audit"
	"freightdesk/pkg/platform/sentinel"
)

const (
	opAddInvoice       = "add_invoice"
	opRemoveInvoice    = "remove_invoice"
	opMarkItem         = "mark_item"
	opMarkDamaged      = "mark_damaged"
	opReportIncomplete = "report_incomplete"
	opAssignRoute      = "assign_route"
	opReassignRoute    = "reassign_route"
	opUnassignRoute    = "unassign_route"
	opSetPayment       = "set_payment"
)

// AddInvoice places an invoice in an open container. Items and amounts are
// refreshed from the invoicing subsystem and every mark starts unset.
func (s *Service) AddInvoice(ctx context.Context, containerID id.ContainerID, invoiceID id.InvoiceID) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opAddInvoice,
		attribute.String("container.id", containerID.String()),
		attribute.String("invoice.id", invoiceID.String()))
	defer done(&err)

	facts, err := s.lookup(ctx, opAddInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	now := s.now(ctx)

	var res *membership.Result
	err = s.run(ctx, opAddInvoice, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.tracker.Add(ctx, st, containerID, facts, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opAddInvoice, err)
	}

	s.logAudit(ctx, audit.EventInvoiceAdded,
		"container_id", containerID.String(),
		"invoice_id", invoiceID.String(),
		"items", res.Invoice.ItemsTotal())
	return models.NewInvoiceView(res.Invoice, res.Container.State), nil
}

// RemoveInvoice returns an invoice to the unassigned pool. Its marks are
// reset and any route is dropped.
func (s *Service) RemoveInvoice(ctx context.Context, containerID id.ContainerID, invoiceID id.InvoiceID) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opRemoveInvoice,
		attribute.String("container.id", containerID.String()),
		attribute.String("invoice.id", invoiceID.String()))
	defer done(&err)

	now := s.now(ctx)
	var res *membership.Result
	err = s.run(ctx, opRemoveInvoice, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.tracker.Remove(ctx, st, containerID, invoiceID, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opRemoveInvoice, err)
	}

	s.logAudit(ctx, audit.EventInvoiceRemoved,
		"container_id", containerID.String(),
		"invoice_id", invoiceID.String())
	return models.NewInvoiceView(res.Invoice, ""), nil
}

// MarkItem sets the scan mark of one item while the container is open.
// Setting the current value again is a no-op.
func (s *Service) MarkItem(ctx context.Context, invoiceID id.InvoiceID, req models.MarkItemRequest) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opMarkItem,
		attribute.String("invoice.id", invoiceID.String()),
		attribute.Int("item.index", req.ItemIndex),
		attribute.Bool("marked", req.Marked))
	defer done(&err)

	now := s.now(ctx)
	var res *ledger.Result
	err = s.run(ctx, opMarkItem, s.invoiceScope(invoiceID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.ledger.MarkItem(ctx, st, invoiceID, req.ItemIndex, req.Marked, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opMarkItem, err)
	}

	if res.Changed {
		s.logAudit(ctx, audit.EventItemMarked,
			"container_id", res.Container.ID.String(),
			"invoice_id", invoiceID.String(),
			"item_index", req.ItemIndex,
			"marked", req.Marked,
			"completeness", string(res.Invoice.Completeness()))
		s.metrics.IncrementItemMarked()
	}
	return models.NewInvoiceView(res.Invoice, res.Container.State), nil
}

// MarkDamaged flags or clears damage on one item once the container has been
// received. Flagging requires notes.
func (s *Service) MarkDamaged(ctx context.Context, invoiceID id.InvoiceID, req models.MarkDamagedRequest) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opMarkDamaged,
		attribute.String("invoice.id", invoiceID.String()),
		attribute.Int("item.index", req.ItemIndex),
		attribute.Bool("damaged", req.Damaged))
	defer done(&err)

	req.Normalize()
	now := s.now(ctx)
	var res *ledger.Result
	err = s.run(ctx, opMarkDamaged, s.invoiceScope(invoiceID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.ledger.MarkDamaged(ctx, st, invoiceID, req.ItemIndex, req.Damaged, req.Notes, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opMarkDamaged, err)
	}

	if res.Changed {
		s.logAudit(ctx, audit.EventItemDamaged,
			"container_id", res.Container.ID.String(),
			"invoice_id", invoiceID.String(),
			"item_index", req.ItemIndex,
			"damaged", req.Damaged,
			"reason", req.Notes)
	}
	return models.NewInvoiceView(res.Invoice, res.Container.State), nil
}

// ReportIncomplete files a shortage discovered after receipt. Item marks are
// left untouched.
func (s *Service) ReportIncomplete(ctx context.Context, invoiceID id.InvoiceID, req models.ReportIncompleteRequest) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opReportIncomplete, attribute.String("invoice.id", invoiceID.String()))
	defer done(&err)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now(ctx)
	var res *membership.Result
	err = s.run(ctx, opReportIncomplete, s.invoiceScope(invoiceID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.tracker.ReportIncomplete(ctx, st, invoiceID, req.Reason, req.MissingItems, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opReportIncomplete, err)
	}

	s.logAudit(ctx, audit.EventIncompleteReported,
		"container_id", res.Container.ID.String(),
		"invoice_id", invoiceID.String(),
		"reason", req.Reason,
		"missing_items", len(req.MissingItems))
	return models.NewInvoiceView(res.Invoice, res.Container.State), nil
}

// AssignRoute puts a complete invoice of a received container on a delivery
// run. Both conditions are checked inside the unit of work.
func (s *Service) AssignRoute(ctx context.Context, invoiceID id.InvoiceID, req models.RouteRequest) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opAssignRoute, attribute.String("invoice.id", invoiceID.String()))
	defer done(&err)

	req.Normalize()
	route, err := id.ParseRouteID(req.RouteID)
	if err != nil {
		return nil, s.translate(ctx, opAssignRoute, err)
	}
	now := s.now(ctx)
	var res *membership.Result
	err = s.run(ctx, opAssignRoute, s.invoiceScope(invoiceID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.tracker.AssignRoute(ctx, st, invoiceID, route, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opAssignRoute, err)
	}

	if res.Changed {
		s.logAudit(ctx, audit.EventRouteAssigned,
			"container_id", res.Container.ID.String(),
			"invoice_id", invoiceID.String(),
			"route_id", route.String())
	}
	return models.NewInvoiceView(res.Invoice, res.Container.State), nil
}

// ReassignRoute moves a routed invoice to another run. A reason is required.
func (s *Service) ReassignRoute(ctx context.Context, invoiceID id.InvoiceID, req models.RouteRequest) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opReassignRoute, attribute.String("invoice.id", invoiceID.String()))
	defer done(&err)

	req.Normalize()
	route, err := id.ParseRouteID(req.RouteID)
	if err != nil {
		return nil, s.translate(ctx, opReassignRoute, err)
	}
	now := s.now(ctx)
	var res *membership.Result
	err = s.run(ctx, opReassignRoute, s.invoiceScope(invoiceID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.tracker.ReassignRoute(ctx, st, invoiceID, route, req.Reason, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opReassignRoute, err)
	}

	s.logAudit(ctx, audit.EventRouteReassigned,
		"container_id", res.Container.ID.String(),
		"invoice_id", invoiceID.String(),
		"route_id", route.String(),
		"reason", req.Reason)
	return models.NewInvoiceView(res.Invoice, res.Container.State), nil
}

// UnassignRoute takes an invoice off its run. Unassigning an unrouted
// invoice succeeds without changes.
func (s *Service) UnassignRoute(ctx context.Context, invoiceID id.InvoiceID, req models.RouteRequest) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opUnassignRoute, attribute.String("invoice.id", invoiceID.String()))
	defer done(&err)

	req.Normalize()
	now := s.now(ctx)
	var res *membership.Result
	err = s.run(ctx, opUnassignRoute, s.invoiceScope(invoiceID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.tracker.UnassignRoute(ctx, st, invoiceID, req.Reason, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opUnassignRoute, err)
	}

	if res.Changed {
		s.logAudit(ctx, audit.EventRouteUnassigned,
			"container_id", containerIDOf(res.Container),
			"invoice_id", invoiceID.String(),
			"reason", req.Reason)
	}
	return models.NewInvoiceView(res.Invoice, stateOf(res.Container)), nil
}

// SetPayment applies a partial payment update. Invoices known to the
// invoicing subsystem may be paid before they are ever containerized.
func (s *Service) SetPayment(ctx context.Context, invoiceID id.InvoiceID, req models.SetPaymentRequest) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opSetPayment, attribute.String("invoice.id", invoiceID.String()))
	defer done(&err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var facts *models.InvoiceFacts
	if _, err := s.queries.GetInvoice(ctx, invoiceID); err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.translate(ctx, opSetPayment, err)
		}
		if facts, err = s.lookup(ctx, opSetPayment, invoiceID); err != nil {
			return nil, err
		}
	}

	now := s.now(ctx)
	update := req.Update()
	var res *membership.Result
	err = s.run(ctx, opSetPayment, s.invoiceScope(invoiceID), func(ctx context.Context, st ports.Store) error {
		var err error
		res, err = s.tracker.SetPayment(ctx, st, invoiceID, facts, update, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opSetPayment, err)
	}

	if res.Changed {
		s.logAudit(ctx, audit.EventPaymentUpdated,
			"container_id", containerIDOf(res.Container),
			"invoice_id", invoiceID.String(),
			"status", string(res.Invoice.Payment.Status),
			"amount_paid", res.Invoice.Payment.AmountPaid.String())
	}
	return models.NewInvoiceView(res.Invoice, stateOf(res.Container)), nil
}

// lookup asks the invoicing subsystem for the current facts of an invoice.
func (s *Service) lookup(ctx context.Context, op string, invoiceID id.InvoiceID) (*models.InvoiceFacts, error) {
	if _, err := id.ParseInvoiceID(invoiceID.String()); err != nil {
		return nil, s.translate(ctx, op, err)
	}
	facts, err := s.catalog.Lookup(ctx, invoiceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "invoice "+invoiceID.String()+" is unknown to the invoicing system")
	}
	if err != nil {
		return nil, s.translate(ctx, op, fmt.Errorf("invoice catalog: %w", err))
	}
	return facts, nil
}

func stateOf(c *models.Container) models.ContainerState {
	if c == nil {
		return ""
	}
	return c.State
}

func containerIDOf(c *models.Container) string {
	if c == nil {
		return ""
	}
	return c.ID.String()
}
