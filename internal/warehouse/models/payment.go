package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "freightdesk/pkg/domain-errors"
)

// PaymentStatus tracks collection of an invoice's total.
type PaymentStatus string

const (
	PaymentPending        PaymentStatus = "pending"
	PaymentPartial        PaymentStatus = "partial"
	PaymentPaid           PaymentStatus = "paid"
	PaymentCashOnDelivery PaymentStatus = "cash_on_delivery"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentPartial, PaymentPaid, PaymentCashOnDelivery:
		return true
	}
	return false
}

// PaymentMethod is how money was (or will be) collected.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
	MethodCheck    PaymentMethod = "check"
	MethodOther    PaymentMethod = "other"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodCheck, MethodOther:
		return true
	}
	return false
}

// PaymentNote is one append-only remark on a payment.
type PaymentNote struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// PaymentRecord is the payment side channel of an invoice.
type PaymentRecord struct {
	Status     PaymentStatus   `json:"status"`
	Method     PaymentMethod   `json:"method,omitempty"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Reference  string          `json:"reference,omitempty"`
	Notes      []PaymentNote   `json:"notes,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

func (p PaymentRecord) clone() PaymentRecord {
	cp := p
	cp.Notes = append([]PaymentNote(nil), p.Notes...)
	cp.UpdatedAt = cloneTime(p.UpdatedAt)
	return cp
}

// PaymentUpdate is a partial change to a payment record. Nil fields are kept.
type PaymentUpdate struct {
	Status     *PaymentStatus
	Method     *PaymentMethod
	AmountPaid *decimal.Decimal
	Reference  *string
	Note       string
}

// MoneyPlaces is the number of decimal places stored for money amounts.
const MoneyPlaces = 2

// IsMoney reports whether d fits the stored money scale without rounding.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyPlaces))
}

// PendingBalance is total minus amount paid, clamped at zero.
func (inv *Invoice) PendingBalance() decimal.Decimal {
	balance := inv.Total.Sub(inv.Payment.AmountPaid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// ApplyPayment validates and applies u. A paid record only accepts new notes;
// any other change fails with PaymentLocked. Moving to paid sets AmountPaid to
// the invoice total.
func (inv *Invoice) ApplyPayment(u PaymentUpdate, now time.Time) (changed bool, err error) {
	note := strings.TrimSpace(u.Note)
	p := inv.Payment

	if p.Status == PaymentPaid {
		if u.changesLockedFields(p) {
			return false, dErrors.New(dErrors.CodePaymentLocked, "invoice "+inv.ID.String()+" is fully paid; only notes can be added")
		}
		if note == "" {
			return false, nil
		}
		inv.appendPaymentNote(note, now)
		return true, nil
	}

	next := p.clone()
	if u.Status != nil {
		if !u.Status.IsValid() {
			return false, dErrors.New(dErrors.CodeValidation, "invalid payment status: "+string(*u.Status))
		}
		next.Status = *u.Status
	}
	if u.Method != nil {
		if *u.Method != "" && !u.Method.IsValid() {
			return false, dErrors.New(dErrors.CodeValidation, "invalid payment method: "+string(*u.Method))
		}
		next.Method = *u.Method
	}
	if u.Reference != nil {
		next.Reference = strings.TrimSpace(*u.Reference)
	}
	if u.AmountPaid != nil {
		if u.AmountPaid.IsNegative() {
			return false, dErrors.New(dErrors.CodeValidation, "amount paid cannot be negative")
		}
		if !IsMoney(*u.AmountPaid) {
			return false, dErrors.New(dErrors.CodeValidation, "amount paid has at most 2 decimal places")
		}
		next.AmountPaid = *u.AmountPaid
	}

	switch next.Status {
	case PaymentPaid:
		next.AmountPaid = inv.Total
	case PaymentPartial:
		if !next.AmountPaid.IsPositive() {
			return false, dErrors.New(dErrors.CodeValidation, "a partial payment needs a positive amount")
		}
	}

	if next.Status == p.Status && next.Method == p.Method && next.Reference == p.Reference &&
		next.AmountPaid.Equal(p.AmountPaid) && note == "" {
		return false, nil
	}

	next.UpdatedAt = &now
	inv.Payment = next
	if note != "" {
		inv.appendPaymentNote(note, now)
	}
	inv.UpdatedAt = now
	return true, nil
}

func (u PaymentUpdate) changesLockedFields(p PaymentRecord) bool {
	if u.Status != nil && *u.Status != p.Status {
		return true
	}
	if u.AmountPaid != nil && !u.AmountPaid.Equal(p.AmountPaid) {
		return true
	}
	if u.Method != nil && *u.Method != p.Method {
		return true
	}
	if u.Reference != nil && strings.TrimSpace(*u.Reference) != p.Reference {
		return true
	}
	return false
}

func (inv *Invoice) appendPaymentNote(note string, now time.Time) {
	inv.Payment.Notes = append(inv.Payment.Notes, PaymentNote{Text: note, At: now})
	inv.Payment.UpdatedAt = &now
	inv.UpdatedAt = now
}
