// Package domainerrors defines the stable error taxonomy returned by services.
//
// Stores and infrastructure return sentinel facts (see pkg/platform/sentinel);
// services translate those into a *Error carrying a Code. Callers branch on the
// code with HasCode and never on message text.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error kind. Codes are part of the public contract and are
// serialized verbatim to API clients.
type Code string

const (
	// Generic codes
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// Container lifecycle
	CodeDuplicateCode             Code = "duplicate_code"
	CodeNotOpen                   Code = "not_open"
	CodeContainerClosedForEditing Code = "container_closed_for_editing"
	CodeInvalidState              Code = "invalid_state"
	CodeNotReceived               Code = "not_received"
	CodeIncompleteInvoices        Code = "incomplete_invoices"
	CodeUnroutedInvoices          Code = "unrouted_invoices"

	// Membership and items
	CodeAlreadyAssigned Code = "already_assigned"
	CodeNotAMember      Code = "not_a_member"
	CodeUnknownItem     Code = "unknown_item"
	CodeNotesRequired   Code = "notes_required"

	// Routing and payment
	CodeRouteNotEligible Code = "route_not_eligible"
	CodeNoRouteAssigned  Code = "no_route_assigned"
	CodePaymentLocked    Code = "payment_locked"
)

// Error is a coded domain error. Details carries a structured payload for kinds
// that need one (for example the offending invoices of an IncompleteInvoices).
type Error struct {
	Code    Code
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithDetails returns a copy of e carrying the given structured details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status used by transport adapters.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput, CodeInvariantViolation, CodeUnknownItem, CodeNotesRequired:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeDuplicateCode, CodeConflict, CodeAlreadyAssigned:
		return http.StatusConflict
	case CodeNotOpen, CodeContainerClosedForEditing, CodeInvalidState, CodeNotReceived,
		CodeIncompleteInvoices, CodeUnroutedInvoices, CodeNotAMember,
		CodeRouteNotEligible, CodeNoRouteAssigned, CodePaymentLocked:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
