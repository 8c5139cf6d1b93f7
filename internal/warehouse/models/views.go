package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "freightdesk/pkg/domain"
)

// ContainerStats are derived from the current members on every read.
type ContainerStats struct {
	TotalInvoices      int             `json:"total_invoices"`
	CompleteInvoices   int             `json:"complete_invoices"`
	IncompleteInvoices int             `json:"incomplete_invoices"`
	TotalItems         int             `json:"total_items"`
	ItemsMarked        int             `json:"items_marked"`
	DeclaredValueTotal decimal.Decimal `json:"declared_value_total"`
}

// ComputeStats aggregates member invoices. Pending invoices count as incomplete.
func ComputeStats(invoices []*Invoice) ContainerStats {
	stats := ContainerStats{DeclaredValueTotal: decimal.Zero}
	for _, inv := range invoices {
		stats.TotalInvoices++
		if inv.IsComplete() {
			stats.CompleteInvoices++
		} else {
			stats.IncompleteInvoices++
		}
		stats.TotalItems += inv.ItemsTotal()
		stats.ItemsMarked += inv.ItemsMarked()
		stats.DeclaredValueTotal = stats.DeclaredValueTotal.Add(inv.DeclaredValue)
	}
	return stats
}

// IncompleteInvoice identifies an invoice blocking a close.
type IncompleteInvoice struct {
	InvoiceID   id.InvoiceID `json:"invoice_id"`
	ItemsMarked int          `json:"items_marked"`
	ItemsTotal  int          `json:"items_total"`
}

// UnroutedInvoice identifies an invoice blocking markWorked.
type UnroutedInvoice struct {
	InvoiceID    id.InvoiceID `json:"invoice_id"`
	Completeness Completeness `json:"completeness"`
}

// ClosePrecheck is the dry-run result of close.
type ClosePrecheck struct {
	ContainerID id.ContainerID      `json:"container_id"`
	State       ContainerState      `json:"state"`
	Ready       bool                `json:"ready"`
	Incomplete  []IncompleteInvoice `json:"incomplete"`
}

// WorkedPrecheck is the dry-run result of markWorked.
type WorkedPrecheck struct {
	ContainerID id.ContainerID    `json:"container_id"`
	State       ContainerState    `json:"state"`
	Ready       bool              `json:"ready"`
	Unrouted    []UnroutedInvoice `json:"unrouted"`
}

// InvoiceView is the read projection of an invoice with derived fields filled.
type InvoiceView struct {
	ID                id.InvoiceID           `json:"id"`
	ContainerID       *id.ContainerID        `json:"container_id,omitempty"`
	ContainerState    ContainerState         `json:"container_state,omitempty"`
	ItemsTotal        int                    `json:"items_total"`
	ItemsMarked       int                    `json:"items_marked"`
	Completeness      Completeness           `json:"completeness"`
	IncompleteAtClose bool                   `json:"incomplete_at_close"`
	Items             []Item                 `json:"items"`
	DeclaredValue     decimal.Decimal        `json:"declared_value"`
	Total             decimal.Decimal        `json:"total"`
	Route             *RouteAssignment       `json:"route,omitempty"`
	RemovalReason     string                 `json:"removal_reason,omitempty"`
	RouteLog          []RouteEvent           `json:"route_log,omitempty"`
	Reports           []IncompletenessReport `json:"reports,omitempty"`
	Payment           PaymentRecord          `json:"payment"`
	PendingBalance    decimal.Decimal        `json:"pending_balance"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// NewInvoiceView projects inv. state is the owning container's state, empty
// when the invoice is unassigned.
func NewInvoiceView(inv *Invoice, state ContainerState) *InvoiceView {
	cp := inv.Clone()
	return &InvoiceView{
		ID:                cp.ID,
		ContainerID:       cp.ContainerID,
		ContainerState:    state,
		ItemsTotal:        cp.ItemsTotal(),
		ItemsMarked:       cp.ItemsMarked(),
		Completeness:      cp.Completeness(),
		IncompleteAtClose: cp.IncompleteAtClose,
		Items:             cp.Items,
		DeclaredValue:     cp.DeclaredValue,
		Total:             cp.Total,
		Route:             cp.Route,
		RemovalReason:     cp.LastRemovalReason(),
		RouteLog:          cp.RouteLog,
		Reports:           cp.Reports,
		Payment:           cp.Payment,
		PendingBalance:    cp.PendingBalance(),
		UpdatedAt:         cp.UpdatedAt,
	}
}

// ContainerView is the read projection of a container with fresh statistics.
type ContainerView struct {
	*Container
	Stats    ContainerStats `json:"stats"`
	Invoices []*InvoiceView `json:"invoices,omitempty"`
}

// NewContainerView projects c with its members. Members are expected in
// member order. Set withInvoices=false for list views.
func NewContainerView(c *Container, members []*Invoice, withInvoices bool) *ContainerView {
	view := &ContainerView{Container: c.Clone(), Stats: ComputeStats(members)}
	if withInvoices {
		view.Invoices = make([]*InvoiceView, 0, len(members))
		for _, inv := range members {
			view.Invoices = append(view.Invoices, NewInvoiceView(inv, c.State))
		}
	}
	return view
}
