package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "freightdesk/pkg/domain-errors"
)

// ContainerID identifies a consolidation container. It is generated by this
// service and is always a non-nil UUID.
type ContainerID uuid.UUID

// InvoiceID identifies a shipment record owned by the invoicing subsystem.
// It is opaque to this service.
type InvoiceID string

// RouteID identifies a last-mile delivery run owned by the dispatch subsystem.
type RouteID string

const maxExternalIDLength = 128

func NewContainerID() ContainerID {
	return ContainerID(uuid.New())
}

// ParseContainerID validates s and returns a ContainerID.
func ParseContainerID(s string) (ContainerID, error) {
	if s == "" {
		return ContainerID{}, dErrors.New(dErrors.CodeInvalidInput, "container id cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ContainerID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid container id format")
	}
	if parsed == uuid.Nil {
		return ContainerID{}, dErrors.New(dErrors.CodeInvalidInput, "container id cannot be nil")
	}
	return ContainerID(parsed), nil
}

func (id ContainerID) String() string {
	return uuid.UUID(id).String()
}

func (id ContainerID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id ContainerID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ContainerID) UnmarshalText(b []byte) error {
	parsed, err := ParseContainerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseInvoiceID trims and validates an externally supplied invoice id.
func ParseInvoiceID(s string) (InvoiceID, error) {
	v, err := parseExternalID("invoice id", s)
	return InvoiceID(v), err
}

func (id InvoiceID) String() string {
	return string(id)
}

// ParseRouteID trims and validates a route id. The dispatch subsystem owns
// route existence; only shape is checked here.
func ParseRouteID(s string) (RouteID, error) {
	v, err := parseExternalID("route id", s)
	return RouteID(v), err
}

func (id RouteID) String() string {
	return string(id)
}

func parseExternalID(kind, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxExternalIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, kind+" contains control characters")
		}
	}
	return s, nil
}
