// Package store persists containers and invoice reconciliation state.
//
// Stores are pure I/O: they enforce storage facts (uniqueness, versioned
// writes) and return sentinel errors. Lifecycle rules live in the components
// above them.
package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/keylock"
	"freightdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps the warehouse in process. Units of work are staged and
// applied under a single write lock at commit, so readers never observe a
// half-applied unit.
type InMemoryStore struct {
	mu         sync.RWMutex
	containers map[id.ContainerID]*models.Container
	codes      map[string]id.ContainerID
	invoices   map[id.InvoiceID]*models.Invoice

	locks *keylock.Locker
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		containers: make(map[id.ContainerID]*models.Container),
		codes:      make(map[string]id.ContainerID),
		invoices:   make(map[id.InvoiceID]*models.Invoice),
		locks:      keylock.New(),
	}
}

// RunInTx serializes fn on scope with a FIFO lock and applies its writes
// atomically. Versioned invoice writes are re-validated at commit because
// another scope may have touched the same invoice in the meantime.
func (s *InMemoryStore) RunInTx(ctx context.Context, scope ports.Scope, fn func(store ports.Store) error) error {
	release, err := s.locks.Lock(ctx, string(scope))
	if err != nil {
		return fmt.Errorf("acquire %s: %w", scope, err)
	}
	defer release()

	tx := newMemoryTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *InMemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for invoiceID, staged := range tx.invoices {
		current, ok := s.invoices[invoiceID]
		var currentVersion int64
		if ok {
			currentVersion = current.Version
		}
		if currentVersion != staged.baseVersion {
			return fmt.Errorf("invoice %s changed during unit of work: %w", invoiceID, sentinel.ErrConflict)
		}
	}
	for containerID, c := range tx.inserted {
		if owner, taken := s.codes[models.CodeKey(c.Code)]; taken && owner != containerID {
			return fmt.Errorf("container code %q: %w", c.Code, sentinel.ErrAlreadyUsed)
		}
	}

	for containerID := range tx.deleted {
		if c, ok := s.containers[containerID]; ok {
			delete(s.codes, models.CodeKey(c.Code))
			delete(s.containers, containerID)
		}
	}
	for containerID, c := range tx.containers {
		if _, gone := tx.deleted[containerID]; gone {
			continue
		}
		s.containers[containerID] = c
		s.codes[models.CodeKey(c.Code)] = containerID
	}
	for invoiceID, staged := range tx.invoices {
		s.invoices[invoiceID] = staged.invoice
	}
	return nil
}

// ListContainers returns containers in the given states, oldest first.
func (s *InMemoryStore) ListContainers(_ context.Context, states []models.ContainerState) ([]*models.Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Container, 0)
	for _, c := range s.containers {
		if slices.Contains(states, c.State) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) GetContainer(_ context.Context, containerID id.ContainerID) (*models.Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.containers[containerID]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", containerID, sentinel.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) GetInvoice(_ context.Context, invoiceID id.InvoiceID) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, sentinel.ErrNotFound)
	}
	return inv.Clone(), nil
}

func (s *InMemoryStore) ListMembers(_ context.Context, containerID id.ContainerID) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.IsMemberOf(containerID) {
			out = append(out, inv.Clone())
		}
	}
	sortMembers(out)
	return out, nil
}

func sortMembers(members []*models.Invoice) {
	sort.Slice(members, func(i, j int) bool {
		return members[i].MemberSeq < members[j].MemberSeq
	})
}
