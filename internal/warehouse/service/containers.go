package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"freightdesk/internal/warehouse/containers"
	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/audit"
)

const (
	opCreateContainer = "create_container"
	opDeleteContainer = "delete_container"
	opPrecheckClose   = "precheck_close"
	opCloseContainer  = "close_container"
	opDepart          = "depart_container"
	opConfirmReceipt  = "confirm_receipt"
	opPrecheckWorked  = "precheck_worked"
	opMarkWorked      = "mark_worked"
)

// CreateContainer opens a new empty container under a unique code.
func (s *Service) CreateContainer(ctx context.Context, req models.CreateContainerRequest) (view *models.ContainerView, err error) {
	ctx, done := s.begin(ctx, opCreateContainer, attribute.String("container.code", req.Code))
	defer done(&err)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	containerID := id.NewContainerID()
	now := s.now(ctx)

	var c *models.Container
	err = s.run(ctx, opCreateContainer, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		c, err = s.machine.Create(ctx, st, containerID, req.Code, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opCreateContainer, err)
	}

	s.logAudit(ctx, audit.EventContainerCreated,
		"container_id", c.ID.String(),
		"code", c.Code)
	s.metrics.IncrementTransition(string(models.StateOpen))
	return models.NewContainerView(c, nil, true), nil
}

// DeleteContainer hard-deletes an open container. Its invoices return to the
// unassigned pool with their marks reset; their ids are returned.
func (s *Service) DeleteContainer(ctx context.Context, containerID id.ContainerID) (released []id.InvoiceID, err error) {
	ctx, done := s.begin(ctx, opDeleteContainer, attribute.String("container.id", containerID.String()))
	defer done(&err)

	now := s.now(ctx)
	var t *containers.Transition
	err = s.run(ctx, opDeleteContainer, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		t, err = s.machine.Delete(ctx, st, containerID, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opDeleteContainer, err)
	}

	s.logAudit(ctx, audit.EventContainerDeleted,
		"container_id", containerID.String(),
		"code", t.Container.Code,
		"released", len(t.Released))
	return t.Released, nil
}

// PrecheckClose reports, without changing anything, which invoices would
// block close(force=false).
func (s *Service) PrecheckClose(ctx context.Context, containerID id.ContainerID) (result *models.ClosePrecheck, err error) {
	ctx, done := s.begin(ctx, opPrecheckClose, attribute.String("container.id", containerID.String()))
	defer done(&err)

	err = s.run(ctx, opPrecheckClose, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		result, err = s.machine.PrecheckClose(ctx, st, containerID)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opPrecheckClose, err)
	}
	return result, nil
}

// CloseContainer seals an open container. Without force every invoice must be
// complete; the IncompleteInvoices error lists the offenders. With force the
// incomplete invoices are tagged incomplete-at-close.
func (s *Service) CloseContainer(ctx context.Context, containerID id.ContainerID, req models.CloseContainerRequest) (view *models.ContainerView, err error) {
	ctx, done := s.begin(ctx, opCloseContainer,
		attribute.String("container.id", containerID.String()),
		attribute.Bool("force", req.Force))
	defer done(&err)

	now := s.now(ctx)
	var t *containers.Transition
	err = s.run(ctx, opCloseContainer, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		t, err = s.machine.Close(ctx, st, containerID, req.Force, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opCloseContainer, err)
	}

	s.logAudit(ctx, audit.EventContainerClosed,
		"container_id", containerID.String(),
		"code", t.Container.Code,
		"forced", t.Container.ForceClosed,
		"tagged", len(t.Tagged))
	s.metrics.IncrementTransition(string(models.StateClosed))
	if t.Container.ForceClosed {
		s.metrics.IncrementForcedClose()
	}
	return models.NewContainerView(t.Container, t.Members, true), nil
}

// DepartContainer records physical departure of a closed container.
// Repeating it is a no-op.
func (s *Service) DepartContainer(ctx context.Context, containerID id.ContainerID) (view *models.ContainerView, err error) {
	ctx, done := s.begin(ctx, opDepart, attribute.String("container.id", containerID.String()))
	defer done(&err)

	now := s.now(ctx)
	var t *containers.Transition
	err = s.run(ctx, opDepart, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		t, err = s.machine.Depart(ctx, st, containerID, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opDepart, err)
	}

	if t.Changed {
		s.logAudit(ctx, audit.EventContainerDeparted,
			"container_id", containerID.String(),
			"code", t.Container.Code)
		s.metrics.IncrementTransition(string(models.StateInTransit))
	}
	return models.NewContainerView(t.Container, t.Members, true), nil
}

// ConfirmReceipt records arrival at the destination warehouse. Repeating it
// is a no-op and keeps the original notes.
func (s *Service) ConfirmReceipt(ctx context.Context, containerID id.ContainerID, req models.ConfirmReceiptRequest) (view *models.ContainerView, err error) {
	ctx, done := s.begin(ctx, opConfirmReceipt, attribute.String("container.id", containerID.String()))
	defer done(&err)

	now := s.now(ctx)
	var t *containers.Transition
	err = s.run(ctx, opConfirmReceipt, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		t, err = s.machine.ConfirmReceipt(ctx, st, containerID, req.Notes, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opConfirmReceipt, err)
	}

	if t.Changed {
		s.logAudit(ctx, audit.EventContainerReceived,
			"container_id", containerID.String(),
			"code", t.Container.Code)
		s.metrics.IncrementTransition(string(models.StateReceived))
	}
	return models.NewContainerView(t.Container, t.Members, true), nil
}

// PrecheckWorked reports, without changing anything, which invoices would
// block markWorked(acknowledgeUnrouted=false).
func (s *Service) PrecheckWorked(ctx context.Context, containerID id.ContainerID) (result *models.WorkedPrecheck, err error) {
	ctx, done := s.begin(ctx, opPrecheckWorked, attribute.String("container.id", containerID.String()))
	defer done(&err)

	err = s.run(ctx, opPrecheckWorked, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		result, err = s.machine.PrecheckWorked(ctx, st, containerID)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opPrecheckWorked, err)
	}
	return result, nil
}

// MarkWorked moves a received container to history. Unrouted invoices block
// the move unless the caller acknowledges them.
func (s *Service) MarkWorked(ctx context.Context, containerID id.ContainerID, req models.MarkWorkedRequest) (view *models.ContainerView, err error) {
	ctx, done := s.begin(ctx, opMarkWorked,
		attribute.String("container.id", containerID.String()),
		attribute.Bool("acknowledge_unrouted", req.AcknowledgeUnrouted))
	defer done(&err)

	now := s.now(ctx)
	var t *containers.Transition
	err = s.run(ctx, opMarkWorked, containerScope(containerID), func(ctx context.Context, st ports.Store) error {
		var err error
		t, err = s.machine.MarkWorked(ctx, st, containerID, req.AcknowledgeUnrouted, now)
		return err
	})
	if err != nil {
		return nil, s.translate(ctx, opMarkWorked, err)
	}

	if t.Changed {
		s.logAudit(ctx, audit.EventContainerWorked,
			"container_id", containerID.String(),
			"code", t.Container.Code,
			"unrouted_acknowledged", t.Container.UnroutedAcknowledged)
		s.metrics.IncrementTransition(string(models.StateWorked))
		if t.Container.UnroutedAcknowledged {
			s.metrics.IncrementUnroutedWorked()
		}
	}
	return models.NewContainerView(t.Container, t.Members, true), nil
}
