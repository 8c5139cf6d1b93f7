// Package containers implements the container lifecycle:
//
//	open → closed → in_transit → received → worked
//
// plus hard deletion while open. Gates that depend on member invoices
// (completeness at close, routes at markWorked) are evaluated here from the
// current members inside the caller's unit of work.
package containers

import (
	"context"
	"time"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
)

// Transition is the outcome of a lifecycle operation.
type Transition struct {
	Container *models.Container
	Members   []*models.Invoice
	Changed   bool
	// Tagged lists invoices marked incomplete-at-close by a forced close.
	Tagged []id.InvoiceID
	// Released lists invoices returned to the pool by a delete.
	Released []id.InvoiceID
}

type Machine struct{}

func New() *Machine {
	return &Machine{}
}

// Create opens a new empty container. Code uniqueness is enforced by the store.
func (m *Machine) Create(ctx context.Context, st ports.Store, containerID id.ContainerID, code string, now time.Time) (*models.Container, error) {
	c, err := models.NewContainer(containerID, code, now)
	if err != nil {
		return nil, err
	}
	if err := st.InsertContainer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete hard-deletes an open container after releasing every member.
func (m *Machine) Delete(ctx context.Context, st ports.Store, containerID id.ContainerID, now time.Time) (*Transition, error) {
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if err := c.CanDelete(); err != nil {
		return nil, err
	}
	members, err := st.ListMembers(ctx, containerID)
	if err != nil {
		return nil, err
	}
	released := make([]id.InvoiceID, 0, len(members))
	for _, inv := range members {
		if err := inv.Detach(containerID, now); err != nil {
			return nil, err
		}
		if err := st.SaveInvoice(ctx, inv); err != nil {
			return nil, err
		}
		released = append(released, inv.ID)
	}
	if err := st.DeleteContainer(ctx, containerID); err != nil {
		return nil, err
	}
	return &Transition{Container: c, Members: members, Changed: true, Released: released}, nil
}

// PrecheckClose reports what close(force=false) would reject, without writing.
func (m *Machine) PrecheckClose(ctx context.Context, st ports.Store, containerID id.ContainerID) (*models.ClosePrecheck, error) {
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	members, err := st.ListMembers(ctx, containerID)
	if err != nil {
		return nil, err
	}
	incomplete := incompleteMembers(members)
	return &models.ClosePrecheck{
		ContainerID: containerID,
		State:       c.State,
		Ready:       c.State == models.StateOpen && len(incomplete) == 0,
		Incomplete:  incomplete,
	}, nil
}

// Close seals an open container. Without force every member must be complete;
// the failure lists the offending invoices and nothing changes. With force the
// incomplete members are tagged incomplete-at-close.
func (m *Machine) Close(ctx context.Context, st ports.Store, containerID id.ContainerID, force bool, now time.Time) (*Transition, error) {
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if err := c.CanClose(); err != nil {
		return nil, err
	}
	members, err := st.ListMembers(ctx, containerID)
	if err != nil {
		return nil, err
	}
	incomplete := incompleteMembers(members)
	if len(incomplete) > 0 && !force {
		return nil, dErrors.New(dErrors.CodeIncompleteInvoices,
			"container "+c.Code+" has incomplete invoices").WithDetails(incomplete)
	}

	tagged := make([]id.InvoiceID, 0, len(incomplete))
	for _, inv := range members {
		if inv.IsComplete() {
			continue
		}
		inv.TagIncompleteAtClose(now)
		if err := st.SaveInvoice(ctx, inv); err != nil {
			return nil, err
		}
		tagged = append(tagged, inv.ID)
	}
	c.ApplyClose(now, len(tagged) > 0)
	if err := st.UpdateContainer(ctx, c); err != nil {
		return nil, err
	}
	return &Transition{Container: c, Members: members, Changed: true, Tagged: tagged}, nil
}

// Depart records physical departure. Departing again is a no-op.
func (m *Machine) Depart(ctx context.Context, st ports.Store, containerID id.ContainerID, now time.Time) (*Transition, error) {
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	changed, err := c.Depart(now)
	if err != nil {
		return nil, err
	}
	return m.finish(ctx, st, c, changed)
}

// ConfirmReceipt records arrival. Confirming again is a no-op.
func (m *Machine) ConfirmReceipt(ctx context.Context, st ports.Store, containerID id.ContainerID, notes string, now time.Time) (*Transition, error) {
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	changed, err := c.ConfirmReceipt(notes, now)
	if err != nil {
		return nil, err
	}
	return m.finish(ctx, st, c, changed)
}

// PrecheckWorked reports what markWorked(ack=false) would reject, without writing.
func (m *Machine) PrecheckWorked(ctx context.Context, st ports.Store, containerID id.ContainerID) (*models.WorkedPrecheck, error) {
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	members, err := st.ListMembers(ctx, containerID)
	if err != nil {
		return nil, err
	}
	unrouted := unroutedMembers(members)
	return &models.WorkedPrecheck{
		ContainerID: containerID,
		State:       c.State,
		Ready:       c.State == models.StateReceived && len(unrouted) == 0,
		Unrouted:    unrouted,
	}, nil
}

// MarkWorked moves a received container to history. Unrouted members block
// the move unless acknowledged. Marking a worked container again is a no-op.
func (m *Machine) MarkWorked(ctx context.Context, st ports.Store, containerID id.ContainerID, acknowledgeUnrouted bool, now time.Time) (*Transition, error) {
	c, err := st.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if c.State == models.StateWorked {
		return m.finish(ctx, st, c, false)
	}
	if err := c.CanMarkWorked(); err != nil {
		return nil, err
	}
	members, err := st.ListMembers(ctx, containerID)
	if err != nil {
		return nil, err
	}
	unrouted := unroutedMembers(members)
	if len(unrouted) > 0 && !acknowledgeUnrouted {
		return nil, dErrors.New(dErrors.CodeUnroutedInvoices,
			"container "+c.Code+" has invoices without a route").WithDetails(unrouted)
	}
	c.ApplyWorked(now, len(unrouted) > 0)
	if err := st.UpdateContainer(ctx, c); err != nil {
		return nil, err
	}
	return &Transition{Container: c, Members: members, Changed: true}, nil
}

// Stats recomputes the container statistics from its current members.
func (m *Machine) Stats(ctx context.Context, st ports.Store, containerID id.ContainerID) (models.ContainerStats, error) {
	members, err := st.ListMembers(ctx, containerID)
	if err != nil {
		return models.ContainerStats{}, err
	}
	return models.ComputeStats(members), nil
}

func (m *Machine) finish(ctx context.Context, st ports.Store, c *models.Container, changed bool) (*Transition, error) {
	if changed {
		if err := st.UpdateContainer(ctx, c); err != nil {
			return nil, err
		}
	}
	members, err := st.ListMembers(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &Transition{Container: c, Members: members, Changed: changed}, nil
}

func incompleteMembers(members []*models.Invoice) []models.IncompleteInvoice {
	out := make([]models.IncompleteInvoice, 0)
	for _, inv := range members {
		if inv.IsComplete() {
			continue
		}
		out = append(out, models.IncompleteInvoice{
			InvoiceID:   inv.ID,
			ItemsMarked: inv.ItemsMarked(),
			ItemsTotal:  inv.ItemsTotal(),
		})
	}
	return out
}

func unroutedMembers(members []*models.Invoice) []models.UnroutedInvoice {
	out := make([]models.UnroutedInvoice, 0)
	for _, inv := range members {
		if inv.Route != nil {
			continue
		}
		out = append(out, models.UnroutedInvoice{InvoiceID: inv.ID, Completeness: inv.Completeness()})
	}
	return out
}
