package models

import (
	"strings"

	"github.com/shopspring/decimal"

	dErrors "freightdesk/pkg/domain-errors"
	pstrings "freightdesk/pkg/platform/strings"
)

// CreateContainerRequest opens a new container.
type CreateContainerRequest struct {
	Code string `json:"code"`
}

func (r *CreateContainerRequest) Normalize() {
	r.Code = strings.TrimSpace(r.Code)
}

func (r *CreateContainerRequest) Validate() error {
	if r.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	return nil
}

// CloseContainerRequest closes an open container. Force closes despite
// incomplete invoices and tags them.
type CloseContainerRequest struct {
	Force bool `json:"force"`
}

// ConfirmReceiptRequest records arrival at the destination warehouse.
type ConfirmReceiptRequest struct {
	Notes string `json:"notes"`
}

// MarkWorkedRequest moves a received container to history.
type MarkWorkedRequest struct {
	AcknowledgeUnrouted bool `json:"acknowledge_unrouted"`
}

// MarkItemRequest sets the scan mark of one item.
type MarkItemRequest struct {
	ItemIndex int  `json:"item_index"`
	Marked    bool `json:"marked"`
}

// MarkDamagedRequest flags or clears damage on one item.
type MarkDamagedRequest struct {
	ItemIndex int    `json:"item_index"`
	Damaged   bool   `json:"damaged"`
	Notes     string `json:"notes"`
}

func (r *MarkDamagedRequest) Normalize() {
	r.Notes = strings.TrimSpace(r.Notes)
}

// ReportIncompleteRequest files a shortage discovered after receipt.
type ReportIncompleteRequest struct {
	Reason       string   `json:"reason"`
	MissingItems []string `json:"missing_items"`
}

func (r *ReportIncompleteRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
	r.MissingItems = pstrings.UniqueLabels(r.MissingItems)
}

func (r *ReportIncompleteRequest) Validate() error {
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// RouteRequest carries a route change. Reason is required for reassignment
// and optional for removal.
type RouteRequest struct {
	RouteID string `json:"route_id"`
	Reason  string `json:"reason"`
}

func (r *RouteRequest) Normalize() {
	r.RouteID = strings.TrimSpace(r.RouteID)
	r.Reason = strings.TrimSpace(r.Reason)
}

// SetPaymentRequest is a partial payment update. Absent fields are unchanged.
type SetPaymentRequest struct {
	Status     *PaymentStatus   `json:"status,omitempty"`
	Method     *PaymentMethod   `json:"method,omitempty"`
	AmountPaid *decimal.Decimal `json:"amount_paid,omitempty"`
	Reference  *string          `json:"reference,omitempty"`
	Note       string           `json:"note,omitempty"`
}

func (r *SetPaymentRequest) Validate() error {
	if r.Status != nil && !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid payment status: "+string(*r.Status))
	}
	if r.Method != nil && *r.Method != "" && !r.Method.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid payment method: "+string(*r.Method))
	}
	if r.AmountPaid != nil && r.AmountPaid.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "amount_paid cannot be negative")
	}
	if r.AmountPaid != nil && !IsMoney(*r.AmountPaid) {
		return dErrors.New(dErrors.CodeValidation, "amount_paid has at most 2 decimal places")
	}
	return nil
}

// Update converts the request into a domain update.
func (r *SetPaymentRequest) Update() PaymentUpdate {
	return PaymentUpdate{
		Status:     r.Status,
		Method:     r.Method,
		AmountPaid: r.AmountPaid,
		Reference:  r.Reference,
		Note:       r.Note,
	}
}
