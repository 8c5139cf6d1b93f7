package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCustody covers changes of physical custody: containers closing,
	// departing, arriving and being worked. These are kept for claims handling.
	CategoryCustody EventCategory = "custody"

	// CategoryFinance covers payment changes.
	CategoryFinance EventCategory = "finance"

	// CategoryOperations covers routine floor activity (scans, membership, routes).
	CategoryOperations EventCategory = "operations"
)

// Event is emitted after a warehouse unit of work commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category    EventCategory     `json:"category"`
	Timestamp   time.Time         `json:"timestamp"`
	Action      string            `json:"action"`
	ContainerID string            `json:"container_id,omitempty"`
	InvoiceID   string            `json:"invoice_id,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	ActorID     string            `json:"actor_id,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Key is the partitioning key used by ordered sinks: events of one container
// stay in order.
func (e Event) Key() string {
	if e.ContainerID != "" {
		return e.ContainerID
	}
	return e.InvoiceID
}

type AuditEvent string

const (
	// Container events
	EventContainerCreated  AuditEvent = "container_created"
	EventContainerDeleted  AuditEvent = "container_deleted"
	EventContainerClosed   AuditEvent = "container_closed"
	EventContainerDeparted AuditEvent = "container_departed"
	EventContainerReceived AuditEvent = "container_received"
	EventContainerWorked   AuditEvent = "container_worked"

	// Membership and item events
	EventInvoiceAdded       AuditEvent = "invoice_added"
	EventInvoiceRemoved     AuditEvent = "invoice_removed"
	EventItemMarked         AuditEvent = "item_marked"
	EventItemDamaged        AuditEvent = "item_damaged"
	EventIncompleteReported AuditEvent = "incomplete_reported"

	// Route events
	EventRouteAssigned   AuditEvent = "route_assigned"
	EventRouteReassigned AuditEvent = "route_reassigned"
	EventRouteUnassigned AuditEvent = "route_unassigned"

	// Payment events
	EventPaymentUpdated AuditEvent = "payment_updated"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventContainerCreated:   CategoryCustody,
	EventContainerDeleted:   CategoryCustody,
	EventContainerClosed:    CategoryCustody,
	EventContainerDeparted:  CategoryCustody,
	EventContainerReceived:  CategoryCustody,
	EventContainerWorked:    CategoryCustody,
	EventItemDamaged:        CategoryCustody,
	EventIncompleteReported: CategoryCustody,

	EventPaymentUpdated: CategoryFinance,

	EventInvoiceAdded:    CategoryOperations,
	EventInvoiceRemoved:  CategoryOperations,
	EventItemMarked:      CategoryOperations,
	EventRouteAssigned:   CategoryOperations,
	EventRouteReassigned: CategoryOperations,
	EventRouteUnassigned: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
