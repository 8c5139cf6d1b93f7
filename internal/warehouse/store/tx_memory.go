package store

import (
	"context"
	"fmt"

	"freightdesk/internal/warehouse/models"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/sentinel"
)

type stagedInvoice struct {
	invoice     *models.Invoice
	baseVersion int64
}

// memoryTx is the write-set of one unit of work. Reads see staged writes
// first, then the committed state.
type memoryTx struct {
	base       *InMemoryStore
	containers map[id.ContainerID]*models.Container
	inserted   map[id.ContainerID]*models.Container
	deleted    map[id.ContainerID]struct{}
	invoices   map[id.InvoiceID]*stagedInvoice
}

func newMemoryTx(base *InMemoryStore) *memoryTx {
	return &memoryTx{
		base:       base,
		containers: make(map[id.ContainerID]*models.Container),
		inserted:   make(map[id.ContainerID]*models.Container),
		deleted:    make(map[id.ContainerID]struct{}),
		invoices:   make(map[id.InvoiceID]*stagedInvoice),
	}
}

func (t *memoryTx) GetContainer(ctx context.Context, containerID id.ContainerID) (*models.Container, error) {
	if _, gone := t.deleted[containerID]; gone {
		return nil, fmt.Errorf("container %s: %w", containerID, sentinel.ErrNotFound)
	}
	if c, ok := t.containers[containerID]; ok {
		return c.Clone(), nil
	}
	return t.base.GetContainer(ctx, containerID)
}

func (t *memoryTx) InsertContainer(_ context.Context, c *models.Container) error {
	key := models.CodeKey(c.Code)
	t.base.mu.RLock()
	_, exists := t.base.containers[c.ID]
	owner, taken := t.base.codes[key]
	t.base.mu.RUnlock()
	if exists {
		return fmt.Errorf("container %s: %w", c.ID, sentinel.ErrAlreadyUsed)
	}
	if taken {
		if _, gone := t.deleted[owner]; !gone {
			return fmt.Errorf("container code %q: %w", c.Code, sentinel.ErrAlreadyUsed)
		}
	}
	for staged := range t.inserted {
		if models.CodeKey(t.inserted[staged].Code) == key {
			return fmt.Errorf("container code %q: %w", c.Code, sentinel.ErrAlreadyUsed)
		}
	}
	cp := c.Clone()
	t.containers[c.ID] = cp
	t.inserted[c.ID] = cp
	return nil
}

func (t *memoryTx) UpdateContainer(ctx context.Context, c *models.Container) error {
	if _, err := t.GetContainer(ctx, c.ID); err != nil {
		return err
	}
	cp := c.Clone()
	t.containers[c.ID] = cp
	if _, ok := t.inserted[c.ID]; ok {
		t.inserted[c.ID] = cp
	}
	return nil
}

func (t *memoryTx) DeleteContainer(ctx context.Context, containerID id.ContainerID) error {
	if _, err := t.GetContainer(ctx, containerID); err != nil {
		return err
	}
	delete(t.containers, containerID)
	delete(t.inserted, containerID)
	t.deleted[containerID] = struct{}{}
	return nil
}

func (t *memoryTx) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*models.Invoice, error) {
	if staged, ok := t.invoices[invoiceID]; ok {
		return staged.invoice.Clone(), nil
	}
	return t.base.GetInvoice(ctx, invoiceID)
}

func (t *memoryTx) SaveInvoice(_ context.Context, inv *models.Invoice) error {
	staged, ok := t.invoices[inv.ID]
	var current int64
	if ok {
		current = staged.invoice.Version
	} else {
		t.base.mu.RLock()
		if committed, exists := t.base.invoices[inv.ID]; exists {
			current = committed.Version
		}
		t.base.mu.RUnlock()
	}
	if inv.Version != current {
		return fmt.Errorf("invoice %s at version %d, write based on %d: %w", inv.ID, current, inv.Version, sentinel.ErrConflict)
	}

	base := current
	if ok {
		base = staged.baseVersion
	}
	inv.Version++
	t.invoices[inv.ID] = &stagedInvoice{invoice: inv.Clone(), baseVersion: base}
	return nil
}

func (t *memoryTx) ListMembers(ctx context.Context, containerID id.ContainerID) ([]*models.Invoice, error) {
	committed, err := t.base.ListMembers(ctx, containerID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Invoice, 0, len(committed))
	for _, inv := range committed {
		if _, overridden := t.invoices[inv.ID]; !overridden {
			out = append(out, inv)
		}
	}
	for _, staged := range t.invoices {
		if staged.invoice.IsMemberOf(containerID) {
			out = append(out, staged.invoice.Clone())
		}
	}
	sortMembers(out)
	return out, nil
}
