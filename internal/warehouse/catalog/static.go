// Package catalog adapts the invoicing subsystem: it answers whether an
// invoice exists and what it declares (items, value, total).
package catalog

import (
	"context"
	"fmt"
	"sync"

	"freightdesk/internal/warehouse/models"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/sentinel"
)

// Static is an in-memory catalog for development and tests.
type Static struct {
	mu       sync.RWMutex
	invoices map[id.InvoiceID]models.InvoiceFacts
}

func NewStatic(facts ...models.InvoiceFacts) *Static {
	s := &Static{invoices: make(map[id.InvoiceID]models.InvoiceFacts)}
	for _, f := range facts {
		s.Put(f)
	}
	return s
}

// Put registers or replaces an invoice.
func (s *Static) Put(f models.InvoiceFacts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ItemLabels = append([]string(nil), f.ItemLabels...)
	s.invoices[f.ID] = f
}

func (s *Static) Lookup(_ context.Context, invoiceID id.InvoiceID) (*models.InvoiceFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.invoices[invoiceID]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, sentinel.ErrNotFound)
	}
	f.ItemLabels = append([]string(nil), f.ItemLabels...)
	return &f, nil
}
