package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/sentinel"
)

const (
	opGetContainer   = "get_container"
	opListActive     = "list_active_containers"
	opListHistory    = "list_history_containers"
	opGetInvoiceView = "get_invoice_detail"
)

// GetContainer returns the container with its invoices. Statistics are
// computed from the members read under the container's lock.
func (s *Service) GetContainer(ctx context.Context, containerID id.ContainerID) (view *models.ContainerView, err error) {
	ctx, done := s.begin(ctx, opGetContainer, attribute.String("container.id", containerID.String()))
	defer done(&err)

	err = s.run(ctx, opGetContainer, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		c, err := st.GetContainer(ctx, containerID)
		if err != nil {
			return err
		}
		members, err := st.ListMembers(ctx, containerID)
		if err != nil {
			return err
		}
		view = models.NewContainerView(c, members, true)
		return nil
	})
	if err != nil {
		return nil, s.translate(ctx, opGetContainer, err)
	}
	return view, nil
}

// ListActiveContainers lists containers on the warehouse floor, oldest first.
func (s *Service) ListActiveContainers(ctx context.Context) (views []*models.ContainerView, err error) {
	ctx, done := s.begin(ctx, opListActive)
	defer done(&err)

	views, err = s.list(ctx, models.ActiveStates)
	if err != nil {
		return nil, s.translate(ctx, opListActive, err)
	}
	return views, nil
}

// ListHistoryContainers lists worked containers, oldest first.
func (s *Service) ListHistoryContainers(ctx context.Context) (views []*models.ContainerView, err error) {
	ctx, done := s.begin(ctx, opListHistory)
	defer done(&err)

	views, err = s.list(ctx, models.HistoryStates)
	if err != nil {
		return nil, s.translate(ctx, opListHistory, err)
	}
	return views, nil
}

func (s *Service) list(ctx context.Context, states []models.ContainerState) ([]*models.ContainerView, error) {
	found, err := s.queries.ListContainers(ctx, states)
	if err != nil {
		return nil, err
	}
	views := make([]*models.ContainerView, 0, len(found))
	for _, c := range found {
		members, err := s.queries.ListMembers(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, models.NewContainerView(c, members, false))
	}
	return views, nil
}

// GetInvoiceDetail returns the reconciliation view of an invoice. Invoices
// that were never containerized are projected from the invoicing subsystem.
func (s *Service) GetInvoiceDetail(ctx context.Context, invoiceID id.InvoiceID) (view *models.InvoiceView, err error) {
	ctx, done := s.begin(ctx, opGetInvoiceView, attribute.String("invoice.id", invoiceID.String()))
	defer done(&err)

	err = s.run(ctx, opGetInvoiceView, s.invoiceScope(invoiceID), func(ctx context.Context, st ports.Store) error {
		inv, err := st.GetInvoice(ctx, invoiceID)
		if errors.Is(err, sentinel.ErrNotFound) {
			view = nil
			return nil
		}
		if err != nil {
			return err
		}
		var state models.ContainerState
		if inv.ContainerID != nil {
			c, err := st.GetContainer(ctx, *inv.ContainerID)
			if err != nil {
				return err
			}
			state = c.State
		}
		view = models.NewInvoiceView(inv, state)
		return nil
	})
	if err != nil {
		return nil, s.translate(ctx, opGetInvoiceView, err)
	}
	if view != nil {
		return view, nil
	}

	facts, err := s.lookup(ctx, opGetInvoiceView, invoiceID)
	if err != nil {
		return nil, err
	}
	inv, err := models.NewInvoice(facts, s.now(ctx))
	if err != nil {
		return nil, s.translate(ctx, opGetInvoiceView, err)
	}
	return models.NewInvoiceView(inv, ""), nil
}
