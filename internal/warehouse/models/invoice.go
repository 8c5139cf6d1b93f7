package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
)

// Completeness is the derived item-scan verdict of an invoice.
type Completeness string

const (
	CompletenessPending    Completeness = "pending"
	CompletenessIncomplete Completeness = "incomplete"
	CompletenessComplete   Completeness = "complete"
)

// InvoiceFacts is what the invoicing subsystem knows about a shipment. The
// item labels define the item count and the positional item keys.
type InvoiceFacts struct {
	ID            id.InvoiceID    `json:"id"`
	ItemLabels    []string        `json:"item_labels"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
	Total         decimal.Decimal `json:"total"`
}

// Validate checks the facts before they are materialized.
func (f *InvoiceFacts) Validate() error {
	if f.ID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "invoice id is required")
	}
	if f.DeclaredValue.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "declared value cannot be negative")
	}
	if f.Total.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invoice total cannot be negative")
	}
	if !IsMoney(f.DeclaredValue) || !IsMoney(f.Total) {
		return dErrors.New(dErrors.CodeInvariantViolation, "invoice amounts have at most 2 decimal places")
	}
	return nil
}

// Invoice holds the reconciliation-owned state of a shipment record.
//
// Invariants:
//   - Item marks are the only stored fact; ItemsMarked and Completeness are
//     always derived from them
//   - ContainerID is nil or names exactly one container (membership is exclusive)
//   - Route is non-nil only while the owning container has arrived
//   - Once Payment.Status is paid, AmountPaid equals Total and only notes change
//   - RouteLog and Reports are append-only
type Invoice struct {
	ID                id.InvoiceID           `json:"id"`
	ContainerID       *id.ContainerID        `json:"container_id,omitempty"`
	MemberSeq         int64                  `json:"member_seq,omitempty"`
	Items             []Item                 `json:"items"`
	DeclaredValue     decimal.Decimal        `json:"declared_value"`
	Total             decimal.Decimal        `json:"total"`
	IncompleteAtClose bool                   `json:"incomplete_at_close"`
	Route             *RouteAssignment       `json:"route,omitempty"`
	RouteLog          []RouteEvent           `json:"route_log,omitempty"`
	Reports           []IncompletenessReport `json:"reports,omitempty"`
	Payment           PaymentRecord          `json:"payment"`
	Version           int64                  `json:"version"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// NewInvoice materializes an unassigned invoice from catalog facts.
func NewInvoice(facts *InvoiceFacts, now time.Time) (*Invoice, error) {
	if err := facts.Validate(); err != nil {
		return nil, err
	}
	inv := &Invoice{
		ID:        facts.ID,
		Payment:   PaymentRecord{Status: PaymentPending, AmountPaid: decimal.Zero},
		UpdatedAt: now,
	}
	inv.SyncFacts(facts)
	return inv, nil
}

// SyncFacts replaces the item list and amounts with the catalog's current view.
// All item marks and damage flags are reset. A paid invoice follows the new
// total so that AmountPaid keeps matching it.
func (inv *Invoice) SyncFacts(facts *InvoiceFacts) {
	items := make([]Item, len(facts.ItemLabels))
	for i, label := range facts.ItemLabels {
		items[i] = Item{Index: i, Label: strings.TrimSpace(label)}
	}
	inv.Items = items
	inv.DeclaredValue = facts.DeclaredValue
	inv.Total = facts.Total
	if inv.Payment.Status == PaymentPaid {
		inv.Payment.AmountPaid = facts.Total
	}
}

func (inv *Invoice) ItemsTotal() int {
	return len(inv.Items)
}

func (inv *Invoice) ItemsMarked() int {
	n := 0
	for i := range inv.Items {
		if inv.Items[i].Marked {
			n++
		}
	}
	return n
}

// Completeness derives the verdict from item marks.
func (inv *Invoice) Completeness() Completeness {
	total, marked := inv.ItemsTotal(), inv.ItemsMarked()
	switch {
	case total > 0 && marked == total:
		return CompletenessComplete
	case marked > 0:
		return CompletenessIncomplete
	}
	return CompletenessPending
}

func (inv *Invoice) IsComplete() bool {
	return inv.Completeness() == CompletenessComplete
}

// IsMemberOf reports whether the invoice currently belongs to containerID.
func (inv *Invoice) IsMemberOf(containerID id.ContainerID) bool {
	return inv.ContainerID != nil && *inv.ContainerID == containerID
}

// IsAssigned reports whether the invoice belongs to any container.
func (inv *Invoice) IsAssigned() bool {
	return inv.ContainerID != nil
}

// AttachTo places the invoice in a container. Marks start from zero.
func (inv *Invoice) AttachTo(containerID id.ContainerID, seq int64, now time.Time) error {
	if inv.ContainerID != nil {
		if *inv.ContainerID == containerID {
			return dErrors.New(dErrors.CodeAlreadyAssigned, "invoice "+inv.ID.String()+" is already in this container")
		}
		return dErrors.New(dErrors.CodeAlreadyAssigned, "invoice "+inv.ID.String()+" belongs to another container")
	}
	cid := containerID
	inv.ContainerID = &cid
	inv.MemberSeq = seq
	inv.IncompleteAtClose = false
	inv.ResetMarks()
	inv.UpdatedAt = now
	return nil
}

// Detach returns the invoice to the unassigned pool: marks are reset and any
// route is dropped.
func (inv *Invoice) Detach(containerID id.ContainerID, now time.Time) error {
	if !inv.IsMemberOf(containerID) {
		return dErrors.New(dErrors.CodeNotAMember, "invoice "+inv.ID.String()+" is not in this container")
	}
	inv.ContainerID = nil
	inv.MemberSeq = 0
	inv.IncompleteAtClose = false
	inv.ResetMarks()
	inv.Route = nil
	inv.UpdatedAt = now
	return nil
}

// ResetMarks clears every scan mark. Damage flags are left alone.
func (inv *Invoice) ResetMarks() {
	for i := range inv.Items {
		inv.Items[i].Marked = false
		inv.Items[i].MarkedAt = nil
	}
}

// TagIncompleteAtClose records that the container was force-closed while this
// invoice was not complete.
func (inv *Invoice) TagIncompleteAtClose(now time.Time) {
	inv.IncompleteAtClose = true
	inv.UpdatedAt = now
}

// ReportIncomplete appends a shortage discovered after receipt. Item marks
// are not touched.
func (inv *Invoice) ReportIncomplete(reason string, missing []string, now time.Time) (*IncompletenessReport, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	labels := make([]string, 0, len(missing))
	for _, l := range missing {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	report := IncompletenessReport{Reason: reason, MissingItems: labels, ReportedAt: now}
	inv.Reports = append(inv.Reports, report)
	inv.UpdatedAt = now
	return &inv.Reports[len(inv.Reports)-1], nil
}

// IncompletenessReport is a free-text shortage report filed after receipt.
type IncompletenessReport struct {
	Reason       string    `json:"reason"`
	MissingItems []string  `json:"missing_items,omitempty"`
	ReportedAt   time.Time `json:"reported_at"`
}

// Clone returns a deep copy.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	cp := *inv
	if inv.ContainerID != nil {
		cid := *inv.ContainerID
		cp.ContainerID = &cid
	}
	cp.Items = make([]Item, len(inv.Items))
	for i, it := range inv.Items {
		it.MarkedAt = cloneTime(it.MarkedAt)
		it.DamagedAt = cloneTime(it.DamagedAt)
		cp.Items[i] = it
	}
	if inv.Route != nil {
		r := *inv.Route
		cp.Route = &r
	}
	cp.RouteLog = append([]RouteEvent(nil), inv.RouteLog...)
	cp.Reports = make([]IncompletenessReport, len(inv.Reports))
	for i, r := range inv.Reports {
		r.MissingItems = append([]string(nil), r.MissingItems...)
		cp.Reports[i] = r
	}
	if len(inv.Reports) == 0 {
		cp.Reports = nil
	}
	cp.Payment = inv.Payment.clone()
	return &cp
}
